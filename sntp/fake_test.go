package sntp

import (
	"errors"
	"time"

	"github.com/tnicklin/sysclock/clock/clocktest"
)

type sentPacket struct {
	data []byte
	host string
	port int
}

// fakeConn replays scripted replies and advances the manual clock to
// simulate network latency.
type fakeConn struct {
	src     *clocktest.Manual
	rtt     time.Duration
	replies [][]byte
	sendErr error
	recvErr error

	sent   []sentPacket
	closed bool
}

func (c *fakeConn) Send(p []byte, host string, port int) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentPacket{data: p, host: host, port: port})
	return nil
}

func (c *fakeConn) Receive(timeout time.Duration) ([]byte, error) {
	if c.recvErr != nil {
		c.src.Advance(timeout)
		return nil, c.recvErr
	}
	if len(c.replies) == 0 {
		c.src.Advance(timeout)
		return nil, ErrTimeout
	}
	c.src.Advance(c.rtt)
	b := c.replies[0]
	c.replies = c.replies[1:]
	return b, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeTransport struct {
	conn    *fakeConn
	openErr error
	opens   int
}

func (t *fakeTransport) Open() (Conn, error) {
	t.opens++
	if t.openErr != nil {
		return nil, t.openErr
	}
	return t.conn, nil
}

var errNetDown = errors.New("network is down")

func serverReply(rcvSecs, rcvFrac, xmtSecs, xmtFrac uint32) []byte {
	return Packet{
		Version:          Version,
		Mode:             ModeServer,
		Stratum:          1,
		RefID:            [4]byte{'G', 'P', 'S', 0},
		ReceiveSeconds:   rcvSecs,
		ReceiveFraction:  rcvFrac,
		TransmitSeconds:  xmtSecs,
		TransmitFraction: xmtFrac,
	}.Marshal()
}
