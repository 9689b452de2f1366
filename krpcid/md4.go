package krpcid

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/md4"

	"github.com/dpeckham/go-krpc/bencode"
)

// Md4ID is a 128-bit node identifier, the narrower flavor some
// non-BitTorrent KRPC applications of this engine use.
type Md4ID [16]byte

// NewMd4ID generates a random id the same way NewSha1ID does, but
// through the narrower MD4 digest. The standard library has no MD4
// implementation, so this is the one flavor that pulls in
// golang.org/x/crypto.
func NewMd4ID() (Md4ID, error) {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return Md4ID{}, fmt.Errorf("krpcid: generate md4 id: %w", err)
	}
	h := md4.New()
	h.Write(seed[:])
	var id Md4ID
	copy(id[:], h.Sum(nil))
	return id, nil
}

// Md4IDFromString builds an id from an exact 16-byte string.
func Md4IDFromString(s string) (Md4ID, error) {
	var id Md4ID
	if len(s) != len(id) {
		return id, fmt.Errorf("krpcid: md4 id must be %d bytes, got %d", len(id), len(s))
	}
	copy(id[:], s)
	return id, nil
}

// Bytes returns the id's raw bytes.
func (id Md4ID) Bytes() []byte { return id[:] }

// XOR returns the elementwise XOR distance between two ids.
func (id Md4ID) XOR(other Md4ID) Md4ID {
	var out Md4ID
	xorBytes(out[:], id[:], other[:])
	return out
}

// EqualBits returns the length of the common most-significant bit
// prefix shared with other, satisfying the ID interface.
func (id Md4ID) EqualBits(other ID) int {
	o, ok := other.(Md4ID)
	if !ok {
		return 0
	}
	return equalBits(id[:], o[:])
}

// MarshalBencode encodes the id as a fixed 16-byte bencode string.
func (id Md4ID) MarshalBencode() ([]byte, error) {
	return bencode.Marshal(string(id[:]))
}

// UnmarshalBencode decodes a fixed 16-byte bencode string into the id.
func (id *Md4ID) UnmarshalBencode(data []byte) error {
	var s string
	if err := bencode.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s) != len(*id) {
		return fmt.Errorf("krpcid: malformed compact node info: want %d bytes, got %d", len(*id), len(s))
	}
	copy(id[:], s)
	return nil
}

func (id Md4ID) String() string {
	return fmt.Sprintf("%x", id[:])
}
