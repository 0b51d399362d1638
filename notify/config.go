package notify

import "time"

// DiscordConfig holds Discord-specific configuration. An empty Token
// disables Discord alerts.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// Config holds staleness alert configuration.
type Config struct {
	Discord           DiscordConfig `yaml:"discord"`
	StaleAfterMinutes int           `yaml:"stale_after_minutes"`
}

// Defaults returns the default notify configuration.
func (Config) Defaults() Config {
	return Config{StaleAfterMinutes: 180}
}

// StaleAfter returns how long the clock may go without a successful sync
// before an alert is sent.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(max(c.StaleAfterMinutes, 1)) * time.Minute
}
