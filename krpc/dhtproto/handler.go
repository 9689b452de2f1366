package dhtproto

import (
	"context"

	"github.com/dpeckham/go-krpc/krpc"
	"github.com/dpeckham/go-krpc/krpc/service"
	"github.com/dpeckham/go-krpc/krpcid"
)

// Handler answers an inbound query with either a result or a
// protocol-level error. It is the external collaborator this engine
// never supplies an implementation of beyond the reference
// PingHandler below — routing-table maintenance, token issuance, and
// peer storage for a real DHT node belong to the application, not to
// the RPC engine.
type Handler = service.Handler[Arg, Res]

// PingHandler answers ping and refuses every other method with a
// method error. It exists for tests and as the worked example
// cmd/krpc-dht-node runs; it deliberately does not implement
// find_node, get_peers or announce_peer.
type PingHandler struct {
	ID krpcid.Sha1ID
}

// Handle implements Handler.
func (h PingHandler) Handle(_ context.Context, arg Arg) (Res, *krpc.Error) {
	if arg.Query() != MethodPing {
		return Res{}, &krpc.Error{Kind: krpc.ErrorMethod, Message: "unsupported method"}
	}
	return Res{ID: h.ID}, nil
}
