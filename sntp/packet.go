package sntp

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// PacketSize is the length of an SNTP header without extensions.
const PacketSize = 48

const (
	ModeClient = 3
	ModeServer = 4

	// Version is the protocol version sent in requests.
	Version = 4

	requestPoll      = 6
	requestPrecision = -20 // 0xEC, about one microsecond
)

// Packet is the subset of the 48-byte SNTP header this client reads and
// writes. Timestamps are raw era offsets; their era is resolved against the
// local clock after the exchange.
type Packet struct {
	Leap      uint8
	Version   uint8
	Mode      uint8
	Stratum   uint8
	Poll      int8
	Precision int8
	RefID     [4]byte

	ReceiveSeconds   uint32
	ReceiveFraction  uint32
	TransmitSeconds  uint32
	TransmitFraction uint32
}

// NewRequest returns a client request carrying tag as its reference
// identifier. Tags longer than four bytes are truncated.
func NewRequest(tag string) Packet {
	p := Packet{
		Version:   Version,
		Mode:      ModeClient,
		Poll:      requestPoll,
		Precision: requestPrecision,
	}
	copy(p.RefID[:], tag)
	return p
}

// Marshal encodes p into a PacketSize buffer. Fields the client never sets
// (delays, reference and origin timestamps) are zero.
func (p Packet) Marshal() []byte {
	b := make([]byte, PacketSize)
	b[0] = (p.Leap&0x3)<<6 | (p.Version&0x7)<<3 | p.Mode&0x7
	b[1] = p.Stratum
	b[2] = byte(p.Poll)
	b[3] = byte(p.Precision)
	copy(b[12:16], p.RefID[:])
	binary.BigEndian.PutUint32(b[32:], p.ReceiveSeconds)
	binary.BigEndian.PutUint32(b[36:], p.ReceiveFraction)
	binary.BigEndian.PutUint32(b[40:], p.TransmitSeconds)
	binary.BigEndian.PutUint32(b[44:], p.TransmitFraction)
	return b
}

// Parse decodes the header of an SNTP reply. Bytes past PacketSize are
// ignored.
func Parse(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	p := Packet{
		Leap:             b[0] >> 6 & 0x3,
		Version:          b[0] >> 3 & 0x7,
		Mode:             b[0] & 0x7,
		Stratum:          b[1],
		Poll:             int8(b[2]),
		Precision:        int8(b[3]),
		ReceiveSeconds:   binary.BigEndian.Uint32(b[32:]),
		ReceiveFraction:  binary.BigEndian.Uint32(b[36:]),
		TransmitSeconds:  binary.BigEndian.Uint32(b[40:]),
		TransmitFraction: binary.BigEndian.Uint32(b[44:]),
	}
	copy(p.RefID[:], b[12:16])
	return p, nil
}

// Reference returns the reference identifier as text with trailing NULs
// removed. Stratum 1 servers use it for a source code such as "GPS".
func (p Packet) Reference() string {
	return strings.TrimRight(string(p.RefID[:]), "\x00")
}
