package krpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/dpeckham/go-krpc/bencode"
)

// ErrIPv6Unsupported is returned when an Address wraps an IPv6 socket
// address. The wire format only defines a 6-byte compact IPv4
// encoding; rather than silently emitting nothing for an IPv6 address
// (as the reference implementation this engine is based on does),
// this package fails loudly.
var ErrIPv6Unsupported = errors.New("krpc: compact IPv6 addresses are not supported")

// Address is a compact-encoded IPv4 UDP socket address: 4 octets
// followed by a big-endian port.
type Address struct {
	net.UDPAddr
}

// NewAddress wraps a *net.UDPAddr.
func NewAddress(addr *net.UDPAddr) *Address {
	if addr == nil {
		return nil
	}
	return &Address{UDPAddr: *addr}
}

// UDP returns the underlying *net.UDPAddr.
func (a *Address) UDP() *net.UDPAddr {
	if a == nil {
		return nil
	}
	u := a.UDPAddr
	return &u
}

// MarshalBencode encodes the address as a 6-byte compact bencode
// string.
func (a Address) MarshalBencode() ([]byte, error) {
	ip4 := a.IP.To4()
	if ip4 == nil {
		return nil, ErrIPv6Unsupported
	}
	buf := make([]byte, 6)
	copy(buf[:4], ip4)
	binary.BigEndian.PutUint16(buf[4:6], uint16(a.Port))
	return bencode.Marshal(string(buf))
}

// UnmarshalBencode decodes a 6-byte compact bencode string into the
// address. Any other length is malformed.
func (a *Address) UnmarshalBencode(data []byte) error {
	var s string
	if err := bencode.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s) != 6 {
		return fmt.Errorf("krpc: malformed compact address: want 6 bytes, got %d", len(s))
	}
	b := []byte(s)
	a.IP = net.IPv4(b[0], b[1], b[2], b[3])
	a.Port = int(binary.BigEndian.Uint16(b[4:6]))
	return nil
}

func (a *Address) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.UDPAddr.String()
}
