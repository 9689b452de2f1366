package krpcid

import (
	"bytes"
	"testing"
)

func mustSha1(b [20]byte) Sha1ID { return Sha1ID(b) }

func TestSha1IDRoundTrip(t *testing.T) {
	id, err := NewSha1ID()
	if err != nil {
		t.Fatalf("NewSha1ID: %v", err)
	}
	s, err := Sha1IDFromString(string(id.Bytes()))
	if err != nil {
		t.Fatalf("Sha1IDFromString: %v", err)
	}
	if s != id {
		t.Errorf("round trip mismatch: got %x, want %x", s, id)
	}
}

func TestSha1IDFromStringWrongLength(t *testing.T) {
	if _, err := Sha1IDFromString("short"); err == nil {
		t.Error("expected error for short string, got nil")
	}
}

func TestSha1XORSelfIsZero(t *testing.T) {
	id, err := NewSha1ID()
	if err != nil {
		t.Fatalf("NewSha1ID: %v", err)
	}
	zero := id.XOR(id)
	if zero != (Sha1ID{}) {
		t.Errorf("id XOR itself should be all zero, got %x", zero)
	}
}

func TestSha1EqualBitsIdentical(t *testing.T) {
	a := mustSha1([20]byte{1, 2, 3})
	if got := a.EqualBits(a); got != 160 {
		t.Errorf("identical ids: got %d, want 160", got)
	}
}

func TestSha1EqualBitsFirstBitDiffers(t *testing.T) {
	a := mustSha1([20]byte{0x00})
	b := mustSha1([20]byte{0x80})
	if got := a.EqualBits(b); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestSha1EqualBitsSecondByteBoundary(t *testing.T) {
	a := mustSha1([20]byte{0x00, 0x00})
	b := mustSha1([20]byte{0x00, 0x40}) // 0b01000000: 1 leading zero bit
	if got := a.EqualBits(b); got != 9 {
		t.Errorf("got %d, want 9", got)
	}
}

func TestSha1EqualBitsLastByteDiffers(t *testing.T) {
	var a, b [20]byte
	b[19] = 0x01 // 0b00000001: 7 leading zero bits
	if got := mustSha1(a).EqualBits(mustSha1(b)); got != 159 {
		t.Errorf("got %d, want 159", got)
	}
}

func TestNearestOf(t *testing.T) {
	self := mustSha1([20]byte{0x00})
	near := mustSha1([20]byte{0x00, 0x00, 0x01}) // agrees 23 bits
	far := mustSha1([20]byte{0x80})              // agrees 0 bits
	if !NearestOf(self, near, far) {
		t.Error("expected near to be nearer than far")
	}
	if NearestOf(self, far, near) {
		t.Error("expected far to not be nearer than near")
	}
}

func TestMd4IDRoundTrip(t *testing.T) {
	id, err := NewMd4ID()
	if err != nil {
		t.Fatalf("NewMd4ID: %v", err)
	}
	m, err := Md4IDFromString(string(id.Bytes()))
	if err != nil {
		t.Fatalf("Md4IDFromString: %v", err)
	}
	if m != id {
		t.Errorf("round trip mismatch: got %x, want %x", m, id)
	}
}

func TestMd4EqualBitsWidth(t *testing.T) {
	var a, b Md4ID
	if got := a.EqualBits(b); got != 128 {
		t.Errorf("got %d, want 128", got)
	}
}

func TestSha1BencodeRoundTrip(t *testing.T) {
	id, err := NewSha1ID()
	if err != nil {
		t.Fatalf("NewSha1ID: %v", err)
	}
	enc, err := id.MarshalBencode()
	if err != nil {
		t.Fatalf("MarshalBencode: %v", err)
	}
	var out Sha1ID
	if err := out.UnmarshalBencode(enc); err != nil {
		t.Fatalf("UnmarshalBencode: %v", err)
	}
	if out != id {
		t.Errorf("round trip mismatch: got %x, want %x", out, id)
	}
}

func TestSha1BencodeWrongLength(t *testing.T) {
	var out Sha1ID
	if err := out.UnmarshalBencode([]byte("4:abcd")); err == nil {
		t.Error("expected error for wrong-length id, got nil")
	}
}

func TestEqualBitsSeedScenario(t *testing.T) {
	a16 := mustSha1Prefix(t, []byte{0x01, 0x23, 0x45})
	b16 := mustSha1Prefix(t, []byte{0x01, 0x23, 0x41})
	if got := a16.EqualBits(b16); got != 21 {
		t.Errorf("20-byte ids: got %d, want 21", got)
	}

	var a, b Md4ID
	copy(a[:], []byte{0x01, 0x23, 0x45})
	copy(b[:], []byte{0x01, 0x23, 0x41})
	if got := a.EqualBits(b); got != 21 {
		t.Errorf("16-byte ids: got %d, want 21", got)
	}
}

func mustSha1Prefix(t *testing.T, prefix []byte) Sha1ID {
	t.Helper()
	var id Sha1ID
	copy(id[:], prefix)
	return id
}

func TestEqualBitsHelperAgreesWithBytesPrefix(t *testing.T) {
	a := []byte{0xFF, 0xFF, 0xFF}
	b := []byte{0xFF, 0xFF, 0xFF}
	if equalBits(a, b) != 24 {
		t.Errorf("identical 3-byte slices should agree on all 24 bits")
	}
	if !bytes.Equal(a, b) {
		t.Fatal("sanity: slices should be equal")
	}
}
