package sntp

import "time"

const (
	DefaultPort    = 123
	DefaultTimeout = 2 * time.Second
	// MinTimeout is the shortest receive window accepted.
	MinTimeout = 100 * time.Millisecond
	// DefaultRefID is the reference tag placed in requests.
	DefaultRefID = "SYSC"
	// DefaultFallbackIP is time-a-g.nist.gov, used when no hostname
	// resolves.
	DefaultFallbackIP = "129.6.15.28"
)

// DefaultServers are tried in order when resolving a server address.
var DefaultServers = []string{"time.google.com", "time.apple.com"}

// Config configures the SNTP client and resolver.
type Config struct {
	Servers    []string `yaml:"servers"`
	FallbackIP string   `yaml:"fallback_ip"`
	Port       int      `yaml:"port"`
	TimeoutMS  int      `yaml:"timeout_ms"`
	RefID      string   `yaml:"ref_id"`
}

// Defaults returns the default SNTP configuration.
func (Config) Defaults() Config {
	return Config{
		Servers:    append([]string(nil), DefaultServers...),
		FallbackIP: DefaultFallbackIP,
		Port:       DefaultPort,
		TimeoutMS:  int(DefaultTimeout / time.Millisecond),
		RefID:      DefaultRefID,
	}
}

// Timeout returns the receive window, raised to MinTimeout if needed. A
// zero value selects DefaultTimeout.
func (c Config) Timeout() time.Duration {
	if c.TimeoutMS == 0 {
		return DefaultTimeout
	}
	return max(time.Duration(c.TimeoutMS)*time.Millisecond, MinTimeout)
}
