package sntp

import (
	"errors"
	"testing"
)

func TestNewRequestWireFormat(t *testing.T) {
	b := NewRequest(DefaultRefID).Marshal()
	if len(b) != PacketSize {
		t.Fatalf("len = %d, want %d", len(b), PacketSize)
	}
	if b[0] != 0b00100011 {
		t.Fatalf("byte 0 = %08b, want LI 0 VN 4 mode 3", b[0])
	}
	if b[1] != 0 || b[2] != 6 || b[3] != 0xEC {
		t.Fatalf("stratum/poll/precision = %d/%d/%#x", b[1], b[2], b[3])
	}
	if string(b[12:16]) != "SYSC" {
		t.Fatalf("reference tag = %q", b[12:16])
	}
	for i := 16; i < PacketSize; i++ {
		if b[i] != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b[i])
		}
	}
}

func TestNewRequestTagTruncated(t *testing.T) {
	p := NewRequest("LSCLONG")
	if p.Reference() != "LSCL" {
		t.Fatalf("Reference() = %q, want LSCL", p.Reference())
	}
	if NewRequest("LSC").Reference() != "LSC" {
		t.Fatal("short tag not trimmed of NULs")
	}
}

func TestParseReply(t *testing.T) {
	b := make([]byte, 60)
	b[0] = 0b11_100_100 // LI 3, VN 4, mode 4
	b[1] = 2
	b[2] = 0xFA // -6
	b[3] = 0xE9 // -23
	copy(b[12:], "NIST")
	copy(b[32:], []byte{0xE9, 0x3C, 0x7F, 0x00, 0x80, 0, 0, 0})
	copy(b[40:], []byte{0xE9, 0x3C, 0x7F, 0x01, 0x40, 0, 0, 0})

	p, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := Packet{
		Leap: 3, Version: 4, Mode: 4, Stratum: 2, Poll: -6, Precision: -23,
		RefID:            [4]byte{'N', 'I', 'S', 'T'},
		ReceiveSeconds:   3913056000,
		ReceiveFraction:  1 << 31,
		TransmitSeconds:  3913056001,
		TransmitFraction: 1 << 30,
	}
	if p != want {
		t.Fatalf("Parse() = %+v, want %+v", p, want)
	}
}

func TestParseShortPacket(t *testing.T) {
	_, err := Parse(make([]byte, PacketSize-1))
	if !errors.Is(err, ErrShortPacket) {
		t.Fatalf("Parse() error = %v, want ErrShortPacket", err)
	}
}

func TestStatusErr(t *testing.T) {
	tests := []struct {
		status Status
		want   error
		name   string
	}{
		{Success, nil, "success"},
		{TransportInitError, ErrTransportInit, "transport_init_error"},
		{SendError, ErrSend, "send_error"},
		{Timeout, ErrTimeout, "timeout"},
	}
	for _, tt := range tests {
		if got := tt.status.Err(); got != tt.want {
			t.Errorf("%v.Err() = %v, want %v", tt.status, got, tt.want)
		}
		if got := tt.status.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
	}
	if Status(0).Err() == nil {
		t.Error("zero Status must not report success")
	}
}
