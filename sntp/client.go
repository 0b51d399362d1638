// Package sntp implements a single-exchange SNTP client that measures the
// offset between a local Timestamp and a time server.
//
// The client never retries and never fails loudly: every outcome other
// than Success yields a zero offset, so applying the Result to the local
// clock leaves it unchanged.
package sntp

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tnicklin/sysclock/clock"
	"github.com/tnicklin/sysclock/instant"
	"github.com/tnicklin/sysclock/logger"
)

// Result describes one exchange.
type Result struct {
	ID     uuid.UUID
	Server string
	Status Status
	Err    error

	// Packet is the decoded reply, zero unless Status is Success.
	Packet Packet

	T1, T2, T3, T4 instant.Instant
	Offset         instant.Instant

	// Updated is T4 corrected by Offset and captured at T4's local reading.
	Updated clock.Timestamp
}

// Client exchanges SNTP packets with one configured server.
type Client struct {
	transport Transport
	src       clock.Local
	logger    logger.Logger

	server  string
	port    int
	timeout time.Duration
	refID   string
}

// Params configures a Client. Transport defaults to UDPTransport and Clock
// to clock.Monotonic.
type Params struct {
	Config    Config
	Transport Transport
	Clock     clock.Local
	Logger    logger.Logger
}

// New creates a Client. The initial server is the first configured
// hostname, or the fallback address when none is configured; callers that
// resolve addresses themselves use SetServer.
func New(p Params) *Client {
	c := &Client{
		transport: p.Transport,
		src:       p.Clock,
		logger:    p.Logger,
		port:      p.Config.Port,
		timeout:   p.Config.Timeout(),
		refID:     p.Config.RefID,
	}
	if c.transport == nil {
		c.transport = UDPTransport{}
	}
	if c.src == nil {
		c.src = clock.Monotonic()
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	if c.port == 0 {
		c.port = DefaultPort
	}
	if c.refID == "" {
		c.refID = DefaultRefID
	}
	switch {
	case len(p.Config.Servers) > 0:
		c.server = p.Config.Servers[0]
	default:
		c.server = p.Config.FallbackIP
	}
	return c
}

// SetServer changes the server address used by subsequent exchanges.
func (c *Client) SetServer(addr string) { c.server = addr }

// Server returns the current server address.
func (c *Client) Server() string { return c.server }

// Port returns the server port.
func (c *Client) Port() int { return c.port }

// Timeout returns the receive window.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Sync runs one exchange. T1 is ref materialized immediately before the
// request and T4 is T1 materialized immediately after the reply, so both
// follow the local clock from the same base.
func (c *Client) Sync(ref clock.Timestamp) Result {
	res := Result{ID: uuid.New(), Server: c.server}

	stamp1 := ref.Restamp(c.src)
	pkt, status, err := c.exchange(res.ID)
	stamp4 := stamp1.Restamp(c.src)

	res.Status, res.Err = status, err
	res.T1, res.T4 = stamp1.Instant(), stamp4.Instant()
	if status == Success {
		res.Packet = pkt
		res.T2 = ResolveEra(res.T1, pkt.ReceiveSeconds, pkt.ReceiveFraction)
		res.T3 = ResolveEra(res.T4, pkt.TransmitSeconds, pkt.TransmitFraction)
	} else {
		res.T2, res.T3 = res.T1, res.T4
	}
	res.Offset = Offset(res.T1, res.T2, res.T3, res.T4)
	res.Updated = stamp4.Shift(res.Offset)

	c.logger.DebugW("sntp exchange complete",
		"session", res.ID.String(),
		"server", res.Server,
		"status", res.Status.String(),
		"stratum", pkt.Stratum,
		"offset", res.Offset.Duration(),
	)
	return res
}

// Offset runs one exchange and returns only the clock offset.
func (c *Client) Offset(ref clock.Timestamp) (instant.Instant, Status) {
	res := c.Sync(ref)
	return res.Offset, res.Status
}

func (c *Client) exchange(id uuid.UUID) (Packet, Status, error) {
	conn, err := c.transport.Open()
	if err != nil {
		return Packet{}, TransportInitError, fmt.Errorf("%w: %w", ErrTransportInit, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.DebugW("sntp close failed", "session", id.String(), "error", err)
		}
	}()

	if err := conn.Send(NewRequest(c.refID).Marshal(), c.server, c.port); err != nil {
		return Packet{}, SendError, fmt.Errorf("%w: %w", ErrSend, err)
	}

	deadline := c.src.Millis() + c.timeout.Milliseconds()
	for {
		remaining := deadline - c.src.Millis()
		if remaining <= 0 {
			return Packet{}, Timeout, ErrTimeout
		}
		b, err := conn.Receive(time.Duration(remaining) * time.Millisecond)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return Packet{}, Timeout, err
			}
			return Packet{}, Timeout, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		pkt, err := Parse(b)
		if err != nil {
			c.logger.DebugW("sntp discarding reply", "session", id.String(), "error", err)
			continue
		}
		return pkt, Success, nil
	}
}
