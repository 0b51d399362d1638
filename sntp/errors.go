package sntp

import "errors"

var (
	// ErrTransportInit is returned when the transport cannot be opened.
	ErrTransportInit = errors.New("sntp: transport init failed")
	// ErrSend is returned when the request cannot be written.
	ErrSend = errors.New("sntp: send failed")
	// ErrTimeout is returned when no full reply arrives in time.
	ErrTimeout = errors.New("sntp: timed out waiting for reply")
	// ErrShortPacket is returned when a reply is shorter than PacketSize.
	ErrShortPacket = errors.New("sntp: short packet")
)

// Status is the outcome of one exchange.
type Status int

const (
	Success Status = iota + 1
	TransportInitError
	SendError
	Timeout
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case TransportInitError:
		return "transport_init_error"
	case SendError:
		return "send_error"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// Err returns the sentinel error for s, or nil for Success.
func (s Status) Err() error {
	switch s {
	case Success:
		return nil
	case TransportInitError:
		return ErrTransportInit
	case SendError:
		return ErrSend
	case Timeout:
		return ErrTimeout
	}
	return errors.New("sntp: unknown status")
}
