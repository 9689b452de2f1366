package service

import (
	"context"

	"github.com/dpeckham/go-krpc/krpc"
)

// Handler answers an inbound query. It is supplied by the
// application instantiating the engine with its own Q/A/R schema
// (krpc/dhtproto.PingHandler is the one reference implementation
// this repo ships).
type Handler[A any, R any] interface {
	Handle(ctx context.Context, arg A) (R, *krpc.Error)
}
