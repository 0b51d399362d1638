package sntp

import (
	"net"
	"strconv"
	"sync"
	"time"

	bntp "github.com/beevik/ntp"
	"github.com/tnicklin/sysclock/clock"
	"github.com/tnicklin/sysclock/logger"
)

// QueryFunc performs a full NTP query.
type QueryFunc func(address string, opt bntp.QueryOptions) (*bntp.Response, error)

// Reference is an independent clock backed by a full NTP implementation.
// It is used to cross-check offsets measured by Client.
type Reference struct {
	address string
	timeout time.Duration
	query   QueryFunc
	logger  logger.Logger

	mu     sync.RWMutex
	offset time.Duration
	resp   *bntp.Response
}

// ReferenceParams configures a Reference.
type ReferenceParams struct {
	Server  string
	Port    int
	Timeout time.Duration
	Query   QueryFunc
	Logger  logger.Logger
}

var _ clock.Clock = (*Reference)(nil)

// NewReference creates a Reference for server.
func NewReference(p ReferenceParams) *Reference {
	r := &Reference{
		timeout: p.Timeout,
		query:   p.Query,
		logger:  p.Logger,
	}
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	r.address = net.JoinHostPort(p.Server, strconv.Itoa(port))
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.query == nil {
		r.query = bntp.QueryWithOptions
	}
	if r.logger == nil {
		r.logger = logger.NewNop()
	}
	return r
}

// Sync queries the server and stores the validated clock offset. On error
// the previous offset is kept.
func (r *Reference) Sync() error {
	resp, err := r.query(r.address, bntp.QueryOptions{Timeout: r.timeout})
	if err == nil {
		err = resp.Validate()
	}
	if err != nil {
		r.logger.WarnW("reference ntp query failed, keeping last offset", "server", r.address, "error", err)
		return err
	}

	r.mu.Lock()
	r.offset = resp.ClockOffset
	r.resp = resp
	r.mu.Unlock()

	r.logger.InfoW("reference ntp query", "server", r.address, "offset", resp.ClockOffset, "rtt", resp.RTT)
	return nil
}

// Offset returns the last measured offset.
func (r *Reference) Offset() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.offset
}

// Stratum returns the stratum of the last successful reply, or zero.
func (r *Reference) Stratum() uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.resp == nil {
		return 0
	}
	return r.resp.Stratum
}

// Now returns the system time corrected by the last measured offset.
func (r *Reference) Now() time.Time {
	return time.Now().Add(r.Offset())
}
