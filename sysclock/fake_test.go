package sysclock

import (
	"time"

	"github.com/google/uuid"

	"github.com/tnicklin/sysclock/clock"
	"github.com/tnicklin/sysclock/clock/clocktest"
	"github.com/tnicklin/sysclock/instant"
	"github.com/tnicklin/sysclock/sntp"
)

// fakeSyncer answers every exchange with a fixed offset, or fails with
// status when it is set.
type fakeSyncer struct {
	src    *clocktest.Manual
	offset instant.Instant
	status sntp.Status
	rtt    time.Duration

	calls int
	refs  []clock.Timestamp
}

func (f *fakeSyncer) Sync(ref clock.Timestamp) sntp.Result {
	f.calls++
	f.refs = append(f.refs, ref)

	t1 := ref.Restamp(f.src)
	f.src.Advance(f.rtt)
	t4 := t1.Restamp(f.src)

	res := sntp.Result{
		ID:     uuid.New(),
		Server: "192.0.2.1",
		T1:     t1.Instant(),
		T4:     t4.Instant(),
	}
	if f.status != 0 && f.status != sntp.Success {
		res.Status = f.status
		res.Err = f.status.Err()
		res.T2, res.T3 = res.T1, res.T4
		res.Updated = t4
		return res
	}
	res.Status = sntp.Success
	res.Offset = f.offset
	res.T2 = res.T1.Add(f.offset)
	res.T3 = res.T4.Add(f.offset)
	res.Updated = t4.Shift(f.offset)
	return res
}

// serverTransport is an sntp.Transport that answers from a simulated
// server clock reading base at local millisecond 0.
type serverTransport struct {
	src   *clocktest.Manual
	base  instant.Instant // server time at local millisecond 0
	delay time.Duration   // one-way network delay

	opens int
}

func (s *serverTransport) Open() (sntp.Conn, error) {
	s.opens++
	return s, nil
}

func (s *serverTransport) Send([]byte, string, int) error { return nil }

func (s *serverTransport) Receive(time.Duration) ([]byte, error) {
	s.src.Advance(s.delay)
	now := s.base.AddMillis(s.src.Millis())
	s.src.Advance(s.delay)
	return sntp.Packet{
		Version:          sntp.Version,
		Mode:             sntp.ModeServer,
		Stratum:          2,
		ReceiveSeconds:   now.EraOffset(),
		ReceiveFraction:  now.Fraction(),
		TransmitSeconds:  now.EraOffset(),
		TransmitFraction: now.Fraction(),
	}.Marshal(), nil
}

func (s *serverTransport) Close() error { return nil }
