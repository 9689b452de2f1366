package krpc

import (
	"bytes"
	"testing"
)

type testMethod string

const testMethodPing testMethod = "ping"

type testArg struct {
	ID string `bencode:"id"`
}

func (a testArg) Query() testMethod { return testMethodPing }

type testRes struct {
	ID string `bencode:"id"`
}

type testMsg = Message[testMethod, testArg, testRes]

// S1: encode a Ping query with tid="aa", id="0123456789abcdefghij".
func TestSeedS1EncodePingQuery(t *testing.T) {
	msg := NewQuery[testMethod, testArg, testRes]([]byte("aa"), testArg{ID: "0123456789abcdefghij"})
	got, err := EncodeDatagram(msg)
	if err != nil {
		t.Fatalf("EncodeDatagram: %v", err)
	}
	want := []byte("d1:ad2:id20:0123456789abcdefghije1:q4:ping1:t2:aa1:y1:qe")
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

// S2: decode an error frame with a method error.
func TestSeedS2DecodeMethodError(t *testing.T) {
	data := []byte("d1:eli204e18:Unsupported methode1:t2:551:y1:ee")
	var msg testMsg
	if err := msg.UnmarshalBencode(data); err != nil {
		t.Fatalf("UnmarshalBencode: %v", err)
	}
	if msg.Kind != KindError {
		t.Fatalf("got kind %v, want error", msg.Kind)
	}
	if string(msg.TransID) != "55" {
		t.Errorf("got tid %q, want %q", msg.TransID, "55")
	}
	if msg.Err.Kind != ErrorMethod || msg.Err.Message != "Unsupported method" {
		t.Errorf("got error %+v, want {Method, \"Unsupported method\"}", msg.Err)
	}
	if msg.IP != nil {
		t.Errorf("expected no ip field, got %v", msg.IP)
	}
}

// S3: decode a response carrying ip = 1.2.3.4:56789.
func TestSeedS3DecodeResponseIP(t *testing.T) {
	data := []byte("d2:ip6:\x01\x02\x03\x04\xdd\xd51:rd2:id20:0123456789abcdefghije1:t2:aa1:y1:re")
	var msg testMsg
	if err := msg.UnmarshalBencode(data); err != nil {
		t.Fatalf("UnmarshalBencode: %v", err)
	}
	if msg.IP == nil {
		t.Fatal("expected ip field to be set")
	}
	if got := msg.IP.String(); got != "1.2.3.4:56789" {
		t.Errorf("got %q, want %q", got, "1.2.3.4:56789")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	orig := NewResponse[testMethod, testArg, testRes]([]byte("xy"), testRes{ID: "abcdefghij0123456789"})
	encoded, err := EncodeDatagram(orig)
	if err != nil {
		t.Fatalf("EncodeDatagram: %v", err)
	}
	var decoded testMsg
	if err := decoded.UnmarshalBencode(encoded); err != nil {
		t.Fatalf("UnmarshalBencode: %v", err)
	}
	if decoded.Kind != KindResponse || decoded.Res.ID != orig.Res.ID || string(decoded.TransID) != string(orig.TransID) {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, orig)
	}
}

func TestQueryArgMethodMismatchRejected(t *testing.T) {
	// a "q" field that disagrees with the argument variant's own
	// Query() must be rejected at decode time.
	data := []byte("d1:ad2:id20:0123456789abcdefghije1:q9:find_node1:t2:aa1:y1:qe")
	var msg testMsg
	if err := msg.UnmarshalBencode(data); err == nil {
		t.Error("expected mismatch error, got nil")
	}
}

func TestUnknownMessageTypeRejected(t *testing.T) {
	data := []byte("d1:t2:aa1:y1:ze")
	var msg testMsg
	if err := msg.UnmarshalBencode(data); err == nil {
		t.Error("expected error for unknown message type, got nil")
	}
}

func TestErrorRoundTrip(t *testing.T) {
	e := Error{Kind: ErrorProtocol, Message: "bad token"}
	encoded, err := e.MarshalBencode()
	if err != nil {
		t.Fatalf("MarshalBencode: %v", err)
	}
	var decoded Error
	if err := decoded.UnmarshalBencode(encoded); err != nil {
		t.Fatalf("UnmarshalBencode: %v", err)
	}
	if decoded != e {
		t.Errorf("got %+v, want %+v", decoded, e)
	}
}

func TestUnknownErrorKindRejected(t *testing.T) {
	var k ErrorKind
	if err := k.UnmarshalBencode([]byte("i999e")); err == nil {
		t.Error("expected error for unknown error kind, got nil")
	}
}
