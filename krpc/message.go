// Package krpc implements the generic KRPC envelope: a bencoded
// request/response message shaped like
//
//	d1:ad2:id20:...e1:q4:ping1:t2:aa1:y1:qe
//
// parameterized over an application-defined query name type, argument
// type and result type. It does not know anything about BitTorrent;
// see krpc/dhtproto for the one concrete instantiation this repo
// ships.
package krpc

import (
	"fmt"

	"github.com/dpeckham/go-krpc/bencode"
)

// QueryArg is implemented by an application's query-argument type. Query
// returns the method name the argument variant belongs to; decoding a
// Message cross-checks this against the envelope's declared method
// name and fails if they disagree.
type QueryArg[Q ~string] interface {
	Query() Q
}

// Kind discriminates the three KRPC message shapes.
type Kind uint8

const (
	KindQuery Kind = iota
	KindResponse
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is the KRPC envelope. Exactly one of Arg, Res or Err is
// meaningful, selected by Kind — mirroring the flat, all-fields-present
// struct shape used elsewhere in this codebase for wire messages,
// rather than a Rust-style tagged enum Go has no syntax for.
type Message[Q ~string, A QueryArg[Q], R any] struct {
	TransID []byte
	Kind    Kind
	IP      *Address // set on outbound Response/Error; observed peer addr
	Query   Q
	Arg     A
	Res     R
	Err     Error
}

// NewQuery builds a query message. The method name is taken from
// arg.Query().
func NewQuery[Q ~string, A QueryArg[Q], R any](tid []byte, arg A) Message[Q, A, R] {
	return Message[Q, A, R]{TransID: tid, Kind: KindQuery, Query: arg.Query(), Arg: arg}
}

// NewResponse builds a response message.
func NewResponse[Q ~string, A QueryArg[Q], R any](tid []byte, res R) Message[Q, A, R] {
	return Message[Q, A, R]{TransID: tid, Kind: KindResponse, Res: res}
}

// NewError builds an error message.
func NewError[Q ~string, A QueryArg[Q], R any](tid []byte, kerr Error) Message[Q, A, R] {
	return Message[Q, A, R]{TransID: tid, Kind: KindError, Err: kerr}
}

// MarshalBencode encodes the message with dict keys in lexicographic
// order at every level (delegated to bencode.Marshal, which sorts map
// keys unconditionally).
func (m Message[Q, A, R]) MarshalBencode() ([]byte, error) {
	dict := map[string]any{
		"t": string(m.TransID),
	}
	if m.IP != nil {
		dict["ip"] = m.IP
	}
	switch m.Kind {
	case KindQuery:
		dict["y"] = "q"
		dict["q"] = string(m.Query)
		dict["a"] = m.Arg
	case KindResponse:
		dict["y"] = "r"
		dict["r"] = m.Res
	case KindError:
		dict["y"] = "e"
		dict["e"] = m.Err
	default:
		return nil, fmt.Errorf("krpc: message has no kind set")
	}
	return bencode.Marshal(dict)
}

type wireEnvelope struct {
	T  string             `bencode:"t"`
	Y  string             `bencode:"y"`
	Q  string             `bencode:"q,omitempty"`
	A  bencode.RawMessage `bencode:"a,omitempty"`
	R  bencode.RawMessage `bencode:"r,omitempty"`
	E  bencode.RawMessage `bencode:"e,omitempty"`
	IP bencode.RawMessage `bencode:"ip,omitempty"`
}

// UnmarshalBencode decodes data into the message. For a query, it
// validates that the argument's own Query() agrees with the declared
// method name, per the wire invariant that the two never disagree.
func (m *Message[Q, A, R]) UnmarshalBencode(data []byte) error {
	var env wireEnvelope
	if err := bencode.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("krpc: malformed message: %w", err)
	}

	m.TransID = []byte(env.T)

	if len(env.IP) > 0 {
		var addr Address
		if err := bencode.Unmarshal(env.IP, &addr); err != nil {
			return fmt.Errorf("krpc: malformed ip field: %w", err)
		}
		m.IP = &addr
	}

	switch env.Y {
	case "q":
		if len(env.A) == 0 {
			return fmt.Errorf("krpc: query message missing \"a\"")
		}
		var arg A
		if err := bencode.Unmarshal(env.A, &arg); err != nil {
			return fmt.Errorf("krpc: malformed query args: %w", err)
		}
		q := Q(env.Q)
		if arg.Query() != q {
			return fmt.Errorf("krpc: declared method %q does not match argument variant %q", q, arg.Query())
		}
		m.Kind = KindQuery
		m.Query = q
		m.Arg = arg
	case "r":
		if len(env.R) == 0 {
			return fmt.Errorf("krpc: response message missing \"r\"")
		}
		var res R
		if err := bencode.Unmarshal(env.R, &res); err != nil {
			return fmt.Errorf("krpc: malformed response: %w", err)
		}
		m.Kind = KindResponse
		m.Res = res
	case "e":
		if len(env.E) == 0 {
			return fmt.Errorf("krpc: error message missing \"e\"")
		}
		var kerr Error
		if err := bencode.Unmarshal(env.E, &kerr); err != nil {
			return fmt.Errorf("krpc: malformed error: %w", err)
		}
		m.Kind = KindError
		m.Err = kerr
	default:
		return fmt.Errorf("krpc: unknown message type %q", env.Y)
	}
	return nil
}
