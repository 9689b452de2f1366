package krpc

import (
	"fmt"
	"net"

	"github.com/dpeckham/go-krpc/bencode"
)

// MaxDatagramSize bounds a single read from the UDP socket. KRPC
// messages are small; this is generous headroom over any realistic
// compact node list.
const MaxDatagramSize = 4096

// DecodeDatagram parses a single inbound UDP datagram into an Item.
// A decode failure here is non-fatal to the caller's event loop — per
// the error-handling policy, the packet should be logged and dropped,
// not treated as a fatal error.
func DecodeDatagram[Q ~string, A QueryArg[Q], R any](data []byte, from *net.UDPAddr) (Item[Q, A, R], error) {
	var msg Message[Q, A, R]
	if err := bencode.Unmarshal(data, &msg); err != nil {
		return Item[Q, A, R]{}, fmt.Errorf("krpc: decode from %s: %w", from, err)
	}
	return Item[Q, A, R]{Addr: from, Msg: msg}, nil
}

// EncodeDatagram serializes a Message to bytes ready for
// WriteToUDP. Unlike decode failures, an encode failure here is a
// programming bug (an unrepresentable value was constructed) and
// should be treated as fatal by the caller.
func EncodeDatagram[Q ~string, A QueryArg[Q], R any](msg Message[Q, A, R]) ([]byte, error) {
	return bencode.Marshal(msg)
}
