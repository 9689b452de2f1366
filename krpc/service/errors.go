package service

import (
	"errors"
	"fmt"

	"github.com/dpeckham/go-krpc/krpc"
)

// ErrTimeout is returned by Call when no response arrives within
// Options.Timeout.
var ErrTimeout = errors.New("krpc/service: call timed out")

// ErrClosed is returned by Call when the service has been shut down.
var ErrClosed = errors.New("krpc/service: service is closed")

// PeerError wraps a typed krpc.Error a remote peer returned in
// response to a query this service sent.
type PeerError struct {
	Err krpc.Error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("krpc/service: peer error: %s", e.Err.Error())
}

func (e *PeerError) Unwrap() error { return e.Err }

// IOError wraps a socket, channel or codec failure that means the
// call could not be completed locally.
type IOError struct {
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("krpc/service: io error: %v", e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
