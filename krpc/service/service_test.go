package service_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dpeckham/go-krpc/krpc"
	"github.com/dpeckham/go-krpc/krpc/dhtproto"
	"github.com/dpeckham/go-krpc/krpc/service"
	"github.com/dpeckham/go-krpc/krpcid"
)

func mustLoopback(t *testing.T) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("resolve loopback: %v", err)
	}
	return addr
}

func mustSha1ID(t *testing.T) krpcid.Sha1ID {
	t.Helper()
	id, err := krpcid.NewSha1ID()
	if err != nil {
		t.Fatalf("NewSha1ID: %v", err)
	}
	return id
}

func newTestService(t *testing.T, id krpcid.Sha1ID, opts service.Options) *service.Service[dhtproto.Method, dhtproto.Arg, dhtproto.Res, dhtproto.PingHandler] {
	t.Helper()
	s, err := service.New[dhtproto.Method, dhtproto.Arg, dhtproto.Res](
		dhtproto.PingHandler{ID: id}, mustLoopback(t), opts,
	)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCallPingRoundTrip(t *testing.T) {
	idA := mustSha1ID(t)
	idB := mustSha1ID(t)
	nodeA := newTestService(t, idA, service.DefaultOptions())
	nodeB := newTestService(t, idB, service.DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := nodeA.Call(ctx, nodeB.LocalAddr(), dhtproto.Arg{ID: idA})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.ID != idB {
		t.Fatalf("pong id = %x, want %x", res.ID.Bytes(), idB.Bytes())
	}
	if n := nodeA.Active(); n != 0 {
		t.Fatalf("nodeA.Active() = %d after completed call, want 0", n)
	}
	if n := nodeB.Active(); n != 0 {
		t.Fatalf("nodeB.Active() = %d after answering call, want 0", n)
	}
}

func TestCallTimeoutReturnsTableToZero(t *testing.T) {
	// a socket that accepts datagrams but never answers them.
	blackhole, err := net.ListenUDP("udp", mustLoopback(t))
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer blackhole.Close()

	id := mustSha1ID(t)
	node := newTestService(t, id, service.Options{Timeout: 50 * time.Millisecond, SubmitQueueDepth: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = node.Call(ctx, blackhole.LocalAddr().(*net.UDPAddr), dhtproto.Arg{ID: id})
	if err != service.ErrTimeout {
		t.Fatalf("Call err = %v, want ErrTimeout", err)
	}

	// the cancellation is a message to the event loop, not a direct
	// table mutation, so give the loop a moment to process it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if node.Active() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Active() = %d after timeout, want 0", node.Active())
}

func TestCallContextCancellation(t *testing.T) {
	blackhole, err := net.ListenUDP("udp", mustLoopback(t))
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer blackhole.Close()

	id := mustSha1ID(t)
	node := newTestService(t, id, service.Options{Timeout: 10 * time.Second, SubmitQueueDepth: 1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = node.Call(ctx, blackhole.LocalAddr().(*net.UDPAddr), dhtproto.Arg{ID: id})
	if err != context.Canceled {
		t.Fatalf("Call err = %v, want context.Canceled", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if node.Active() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Active() never returned to 0 after cancellation")
}

func TestCloseIsIdempotent(t *testing.T) {
	node := newTestService(t, mustSha1ID(t), service.DefaultOptions())
	if err := node.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := node.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCallAfterCloseReturnsErrClosed(t *testing.T) {
	idA := mustSha1ID(t)
	idB := mustSha1ID(t)
	nodeA := newTestService(t, idA, service.DefaultOptions())
	nodeB := newTestService(t, idB, service.DefaultOptions())
	nodeA.Close()

	_, err := nodeA.Call(context.Background(), nodeB.LocalAddr(), dhtproto.Arg{ID: idA})
	if err != service.ErrClosed {
		t.Fatalf("Call err = %v, want ErrClosed", err)
	}
}

func TestForeignResponseIsSilentlyDropped(t *testing.T) {
	id := mustSha1ID(t)
	node := newTestService(t, id, service.DefaultOptions())

	raw, err := net.ListenUDP("udp", mustLoopback(t))
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer raw.Close()

	stray := dhtproto.NewPongResponse([]byte{0xAB, 0xCD}, id)
	data, err := krpc.EncodeDatagram(stray)
	if err != nil {
		t.Fatalf("encode stray response: %v", err)
	}
	if _, err := raw.WriteToUDP(data, node.LocalAddr()); err != nil {
		t.Fatalf("write stray datagram: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if n := node.Active(); n != 0 {
		t.Fatalf("Active() = %d after stray datagram, want 0", n)
	}
}
