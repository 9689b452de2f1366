package krpc

import "net"

// Item pairs a decoded Message with the peer address it was read
// from (or is destined to). The transaction table keys waiters by
// (peer address, transaction id); Item is what the frame codec hands
// the event loop for every inbound datagram.
type Item[Q ~string, A QueryArg[Q], R any] struct {
	Addr *net.UDPAddr
	Msg  Message[Q, A, R]
}
