// Package dhtproto instantiates the generic krpc engine with the
// BitTorrent mainline DHT's query schema (BEP 5). It defines only the
// wire-level envelope types — query/argument/result shapes, compact
// node and peer lists, the implied_port convention — not the routing
// table, bootstrapping, or the find_node/get_peers/announce_peer
// algorithms themselves, which stay out of scope for this engine.
package dhtproto

import (
	"github.com/dpeckham/go-krpc/bencode"
	"github.com/dpeckham/go-krpc/krpc"
	"github.com/dpeckham/go-krpc/krpcid"
)

// Method is the KRPC "q" field for this schema.
type Method string

const (
	MethodPing         Method = "ping"
	MethodFindNode     Method = "find_node"
	MethodGetPeers     Method = "get_peers"
	MethodAnnouncePeer Method = "announce_peer"
)

// ImpliedPort implements the wire's option-bool convention: true
// encodes as the integer 1; false is omitted from the dict entirely
// (via the struct's omitempty tag) and any other present value, or
// absence, decodes back to false.
type ImpliedPort bool

// MarshalBencode is only ever invoked for a true value — omitempty
// causes the struct encoder to skip the field when false.
func (p ImpliedPort) MarshalBencode() ([]byte, error) {
	return bencode.Marshal(int64(1))
}

// UnmarshalBencode decodes the integer 1 to true; every other value
// decodes to false, matching the documented boundary behavior.
func (p *ImpliedPort) UnmarshalBencode(data []byte) error {
	var n int64
	if err := bencode.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = ImpliedPort(n == 1)
	return nil
}

// Arg is the flattened union of all four query argument shapes,
// mirroring the way the teacher's own Message type flattens "a" into
// one map rather than a tagged enum — Go has no sum types, and this
// keeps the bencode struct tags doing the work instead of a custom
// reflection-based discriminator.
type Arg struct {
	ID          krpcid.Sha1ID  `bencode:"id"`
	Target      *krpcid.Sha1ID `bencode:"target,omitempty"`
	InfoHash    *krpcid.Sha1ID `bencode:"info_hash,omitempty"`
	ImpliedPort ImpliedPort    `bencode:"implied_port,omitempty"`
	Port        int            `bencode:"port,omitempty"`
	Token       string         `bencode:"token,omitempty"`
}

// Query reports which method this argument variant belongs to,
// satisfying krpc.QueryArg[Method]. announce_peer is checked before
// get_peers since both carry InfoHash; the presence of Token and Port
// is what disambiguates them.
func (a Arg) Query() Method {
	switch {
	case a.Token != "" || a.Port != 0:
		return MethodAnnouncePeer
	case a.InfoHash != nil:
		return MethodGetPeers
	case a.Target != nil:
		return MethodFindNode
	default:
		return MethodPing
	}
}

// Res is the flattened union of all four response shapes
// (Pong/FindNode/GetPeersNodes/GetPeersValues). Exactly which fields
// are populated depends on which query produced it; callers know
// which shape to expect from the method they called, but Kind lets a
// caller that only has a Res (e.g. a logging or debug path) resolve
// it to one variant without guessing.
type Res struct {
	ID     krpcid.Sha1ID `bencode:"id"`
	Token  string        `bencode:"token,omitempty"`
	Nodes  NodeInfoList  `bencode:"nodes,omitempty"`
	Values PeerInfoList  `bencode:"values,omitempty"`
}

// ResKind identifies which of the four response shapes a Res carries.
type ResKind uint8

const (
	ResKindPong ResKind = iota
	ResKindFindNode
	ResKindGetPeersNodes
	ResKindGetPeersValues
)

func (k ResKind) String() string {
	switch k {
	case ResKindFindNode:
		return "find_node"
	case ResKindGetPeersNodes:
		return "get_peers(nodes)"
	case ResKindGetPeersValues:
		return "get_peers(values)"
	default:
		return "pong"
	}
}

// Kind resolves Res to exactly one variant, in the declared order
// GetPeersNodes, GetPeersValues, FindNode, Pong — the first matching
// shape wins. Nodes-with-Token comes first: get_peers' node-only
// reply always carries the token it was asked to echo back on a later
// announce_peer, while find_node's reply never does. A wire response
// populating more than one shape (not produced by this package's own
// constructors, but not rejected by decode either) resolves
// deterministically to the earliest-matching case here rather than
// leaving more than one field "live".
func (r Res) Kind() ResKind {
	switch {
	case len(r.Nodes) > 0 && r.Token != "":
		return ResKindGetPeersNodes
	case len(r.Values) > 0:
		return ResKindGetPeersValues
	case len(r.Nodes) > 0:
		return ResKindFindNode
	default:
		return ResKindPong
	}
}

// resWire is Res's underlying struct shape, decoded into directly so
// UnmarshalBencode below can post-process without recursing back into
// itself.
type resWire Res

// UnmarshalBencode decodes the flattened wire dict and then applies
// Kind's resolution, clearing whichever of Nodes/Values lost the
// tie-break. Without this, a dict carrying both "nodes" and "values"
// (malformed, or from a non-conforming peer) would leave both fields
// populated instead of resolving to the one variant Kind reports.
func (r *Res) UnmarshalBencode(data []byte) error {
	var w resWire
	if err := bencode.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Res(w)

	switch r.Kind() {
	case ResKindGetPeersValues:
		r.Nodes = nil
	case ResKindGetPeersNodes, ResKindFindNode:
		r.Values = nil
	case ResKindPong:
		r.Nodes = nil
		r.Values = nil
	}
	return nil
}

// Message is the concrete krpc envelope type for this schema.
type Message = krpc.Message[Method, Arg, Res]

// NewPingQuery, NewFindNodeQuery, NewGetPeersQuery and
// NewAnnouncePeerQuery build the four query variants.

func NewPingQuery(tid []byte, id krpcid.Sha1ID) Message {
	return krpc.NewQuery[Method, Arg, Res](tid, Arg{ID: id})
}

func NewFindNodeQuery(tid []byte, id, target krpcid.Sha1ID) Message {
	return krpc.NewQuery[Method, Arg, Res](tid, Arg{ID: id, Target: &target})
}

func NewGetPeersQuery(tid []byte, id, infoHash krpcid.Sha1ID) Message {
	return krpc.NewQuery[Method, Arg, Res](tid, Arg{ID: id, InfoHash: &infoHash})
}

func NewAnnouncePeerQuery(tid []byte, id krpcid.Sha1ID, impliedPort bool, infoHash krpcid.Sha1ID, port int, token string) Message {
	return krpc.NewQuery[Method, Arg, Res](tid, Arg{
		ID:          id,
		InfoHash:    &infoHash,
		ImpliedPort: ImpliedPort(impliedPort),
		Port:        port,
		Token:       token,
	})
}

func NewPongResponse(tid []byte, id krpcid.Sha1ID) Message {
	return krpc.NewResponse[Method, Arg, Res](tid, Res{ID: id})
}

func NewFindNodeResponse(tid []byte, id krpcid.Sha1ID, nodes NodeInfoList) Message {
	return krpc.NewResponse[Method, Arg, Res](tid, Res{ID: id, Nodes: nodes})
}

func NewGetPeersNodesResponse(tid []byte, id krpcid.Sha1ID, token string, nodes NodeInfoList) Message {
	return krpc.NewResponse[Method, Arg, Res](tid, Res{ID: id, Token: token, Nodes: nodes})
}

// NewGetPeersValuesResponse dedupes values (a peer store returning
// hits gathered from repeated announce_peer calls easily produces
// repeats) before building the response.
func NewGetPeersValuesResponse(tid []byte, id krpcid.Sha1ID, token string, values PeerInfoList) Message {
	deduped := DedupePeers(values)
	return krpc.NewResponse[Method, Arg, Res](tid, Res{ID: id, Token: token, Values: PeerInfoList(deduped)})
}

// NewMethodError builds the standard "unsupported method" error this
// schema's reference handler returns for anything it doesn't
// implement.
func NewMethodError(tid []byte, message string) Message {
	return krpc.NewError[Method, Arg, Res](tid, krpc.Error{Kind: krpc.ErrorMethod, Message: message})
}

// Decoding a query whose "q" field is not one of the four known
// method names fails at the krpc.Message layer: no Arg field
// combination produces that method name from Query(), so the
// declared-method-vs-variant check in Message.UnmarshalBencode
// rejects it the same way the reference implementation's custom
// deserializer rejects an unrecognized method with "Unsupported
// method".
