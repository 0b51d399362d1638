package sntp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Transport opens datagram channels for exchanges. A new Conn is opened for
// every exchange and closed when it completes.
type Transport interface {
	Open() (Conn, error)
}

// Conn is one open datagram channel.
type Conn interface {
	// Send writes p to host:port.
	Send(p []byte, host string, port int) error
	// Receive waits at most timeout for the next datagram. It returns an
	// error wrapping ErrTimeout when nothing arrives in time.
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

// UDPTransport is a Transport over the host network stack.
type UDPTransport struct{}

var _ Transport = UDPTransport{}

// Open binds an ephemeral local UDP port.
func (UDPTransport) Open() (Conn, error) {
	c, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}
	return &udpConn{conn: c, buf: make([]byte, 512)}, nil
}

type udpConn struct {
	conn *net.UDPConn
	buf  []byte
}

func (u *udpConn) Send(p []byte, host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	_, err = u.conn.WriteToUDP(p, addr)
	return err
}

func (u *udpConn) Receive(timeout time.Duration) ([]byte, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, _, err := u.conn.ReadFromUDP(u.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, err
	}
	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, nil
}

func (u *udpConn) Close() error {
	return u.conn.Close()
}
