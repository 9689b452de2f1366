package dhtproto

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/samber/lo"

	"github.com/dpeckham/go-krpc/bencode"
	"github.com/dpeckham/go-krpc/krpc"
	"github.com/dpeckham/go-krpc/krpcid"
)

// NodeInfo is one entry of a compact node list: a 20-byte node id
// followed by a 6-byte compact IPv4 address (26 bytes total).
type NodeInfo struct {
	ID   krpcid.Sha1ID
	Addr *net.UDPAddr
}

func (n NodeInfo) compactBytes() ([]byte, error) {
	ip4 := n.Addr.IP.To4()
	if ip4 == nil {
		return nil, krpc.ErrIPv6Unsupported
	}
	buf := make([]byte, 26)
	copy(buf[:20], n.ID[:])
	copy(buf[20:24], ip4)
	binary.BigEndian.PutUint16(buf[24:26], uint16(n.Addr.Port))
	return buf, nil
}

func (n *NodeInfo) fromCompactBytes(b []byte) error {
	if len(b) != 26 {
		return fmt.Errorf("dhtproto: malformed compact node info: want 26 bytes, got %d", len(b))
	}
	copy(n.ID[:], b[:20])
	ip := net.IPv4(b[20], b[21], b[22], b[23])
	port := binary.BigEndian.Uint16(b[24:26])
	n.Addr = &net.UDPAddr{IP: ip, Port: int(port)}
	return nil
}

func (n NodeInfo) String() string {
	return fmt.Sprintf("%s@%s", n.ID, n.Addr)
}

// NodeInfoList is the concatenated compact encoding of zero or more
// NodeInfo records; the total length must be a multiple of 26.
type NodeInfoList []NodeInfo

// MarshalBencode concatenates every entry's 26-byte compact form into
// one bencode byte string.
func (l NodeInfoList) MarshalBencode() ([]byte, error) {
	buf := make([]byte, 0, 26*len(l))
	for _, n := range l {
		b, err := n.compactBytes()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return bencode.Marshal(string(buf))
}

// UnmarshalBencode splits a bencode byte string into 26-byte records.
// A length of 0 decodes to an empty list; any length not a multiple
// of 26 is malformed.
func (l *NodeInfoList) UnmarshalBencode(data []byte) error {
	var raw string
	if err := bencode.Unmarshal(data, &raw); err != nil {
		return err
	}
	b := []byte(raw)
	if len(b)%26 != 0 {
		return fmt.Errorf("dhtproto: compact node list length %d not a multiple of 26", len(b))
	}
	out := make(NodeInfoList, len(b)/26)
	for i := range out {
		if err := out[i].fromCompactBytes(b[i*26 : (i+1)*26]); err != nil {
			return err
		}
	}
	*l = out
	return nil
}

// PeerInfo is one entry of a compact peer list: a 6-byte compact
// IPv4 address with no node id, used by get_peers "values".
type PeerInfo struct {
	Addr *net.UDPAddr
}

func (p PeerInfo) String() string {
	return p.Addr.String()
}

// DedupePeers drops duplicate entries (same IP and port) from a list
// of get_peers "values" candidates, preserving first-seen order. A
// storage layer accumulating announce_peer hits for the same
// info_hash from several directions easily ends up with repeats;
// NewGetPeersValuesResponse applies it to the values it is given.
func DedupePeers(peers []PeerInfo) []PeerInfo {
	return lo.UniqBy(peers, func(p PeerInfo) string { return p.Addr.String() })
}

// PeerInfoList is the bencode list-of-byte-strings encoding BEP 5
// uses for get_peers "values": each element is its own independently
// length-prefixed 6-byte compact address, unlike NodeInfoList's flat
// concatenation.
type PeerInfoList []PeerInfo

// MarshalBencode encodes the list as a bencode list of 6-byte compact
// address strings.
func (l PeerInfoList) MarshalBencode() ([]byte, error) {
	items := make([]any, len(l))
	for i, p := range l {
		addr := krpc.NewAddress(p.Addr)
		items[i] = addr
	}
	return bencode.Marshal(items)
}

// UnmarshalBencode decodes a bencode list of 6-byte compact address
// strings.
func (l *PeerInfoList) UnmarshalBencode(data []byte) error {
	var raws []string
	if err := bencode.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(PeerInfoList, len(raws))
	for i, raw := range raws {
		var addr krpc.Address
		encoded, err := bencode.Marshal(raw)
		if err != nil {
			return err
		}
		if err := addr.UnmarshalBencode(encoded); err != nil {
			return fmt.Errorf("dhtproto: malformed peer info: %w", err)
		}
		out[i] = PeerInfo{Addr: addr.UDP()}
	}
	*l = out
	return nil
}
