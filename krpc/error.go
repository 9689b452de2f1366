package krpc

import (
	"fmt"

	"github.com/dpeckham/go-krpc/bencode"
)

// ErrorKind is the integer-tagged error category carried in a KRPC
// error message's first list element.
type ErrorKind int64

// The four error kinds defined by the wire format.
const (
	ErrorGeneric  ErrorKind = 201
	ErrorServer   ErrorKind = 202
	ErrorProtocol ErrorKind = 203
	ErrorMethod   ErrorKind = 204
)

func (k ErrorKind) valid() bool {
	switch k {
	case ErrorGeneric, ErrorServer, ErrorProtocol, ErrorMethod:
		return true
	default:
		return false
	}
}

// MarshalBencode encodes the kind as a bencode integer.
func (k ErrorKind) MarshalBencode() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("krpc: unknown error kind value: %d", int64(k))
	}
	return bencode.Marshal(int64(k))
}

// UnmarshalBencode decodes a bencode integer into the kind, rejecting
// any value outside the four declared kinds.
func (k *ErrorKind) UnmarshalBencode(data []byte) error {
	var n int64
	if err := bencode.Unmarshal(data, &n); err != nil {
		return err
	}
	candidate := ErrorKind(n)
	if !candidate.valid() {
		return fmt.Errorf("krpc: unknown error kind value: %d", n)
	}
	*k = candidate
	return nil
}

func (k ErrorKind) String() string {
	switch k {
	case ErrorGeneric:
		return "generic"
	case ErrorServer:
		return "server"
	case ErrorProtocol:
		return "protocol"
	case ErrorMethod:
		return "method"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int64(k))
	}
}

// Error is a KRPC error message body: a kind and a human-readable
// message, carried on the wire as a two-element list.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// MarshalBencode encodes the error as a bencode list [kind, message].
func (e Error) MarshalBencode() ([]byte, error) {
	return bencode.Marshal([]any{e.Kind, e.Message})
}

// UnmarshalBencode decodes a bencode list [kind, message] into the
// error.
func (e *Error) UnmarshalBencode(data []byte) error {
	var list []any
	if err := bencode.Unmarshal(data, &list); err != nil {
		return err
	}
	if len(list) != 2 {
		return fmt.Errorf("krpc: malformed error: want 2 elements, got %d", len(list))
	}
	n, ok := list[0].(int64)
	if !ok {
		return fmt.Errorf("krpc: malformed error: kind must be an integer")
	}
	kind := ErrorKind(n)
	if !kind.valid() {
		return fmt.Errorf("krpc: unknown error kind value: %d", n)
	}
	msg, ok := list[1].(string)
	if !ok {
		return fmt.Errorf("krpc: malformed error: message must be a string")
	}
	e.Kind = kind
	e.Message = msg
	return nil
}
