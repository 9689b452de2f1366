package krpcid

import (
	"crypto/rand"
	"crypto/sha1"
	"fmt"

	"github.com/dpeckham/go-krpc/bencode"
)

// Sha1ID is a 160-bit node identifier, the flavor used by the
// BitTorrent mainline DHT.
type Sha1ID [20]byte

// NewSha1ID generates a random id: it fills the array with
// crypto/rand bytes and then hashes the result once through SHA-1,
// so an id is not trivially distinguishable from "freshly seeded
// random bytes" by a peer that only observes the wire bytes.
func NewSha1ID() (Sha1ID, error) {
	var seed [20]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return Sha1ID{}, fmt.Errorf("krpcid: generate sha1 id: %w", err)
	}
	sum := sha1.Sum(seed[:])
	return Sha1ID(sum), nil
}

// Sha1IDFromString builds an id from an exact 20-byte string, useful
// for test fixtures and literals.
func Sha1IDFromString(s string) (Sha1ID, error) {
	var id Sha1ID
	if len(s) != len(id) {
		return id, fmt.Errorf("krpcid: sha1 id must be %d bytes, got %d", len(id), len(s))
	}
	copy(id[:], s)
	return id, nil
}

// Bytes returns the id's raw bytes.
func (id Sha1ID) Bytes() []byte { return id[:] }

// XOR returns the elementwise XOR distance between two ids.
func (id Sha1ID) XOR(other Sha1ID) Sha1ID {
	var out Sha1ID
	xorBytes(out[:], id[:], other[:])
	return out
}

// EqualBits returns the length of the common most-significant bit
// prefix shared with other, satisfying the ID interface.
func (id Sha1ID) EqualBits(other ID) int {
	o, ok := other.(Sha1ID)
	if !ok {
		return 0
	}
	return equalBits(id[:], o[:])
}

// MarshalBencode encodes the id as a fixed 20-byte bencode string.
func (id Sha1ID) MarshalBencode() ([]byte, error) {
	return bencode.Marshal(string(id[:]))
}

// UnmarshalBencode decodes a fixed 20-byte bencode string into the id.
// Any other length is "Malformed compact node info" per the wire spec.
func (id *Sha1ID) UnmarshalBencode(data []byte) error {
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

func (id Sha1ID) String() string {
	return fmt.Sprintf("%x", id[:])
}
