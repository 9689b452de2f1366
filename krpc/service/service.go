// Package service implements the generic KRPC event loop: a single
// task that owns a UDP socket, the frame codec, and the transaction
// table, multiplexing inbound datagrams, outbound application calls,
// cancellations, and per-call timeouts. All table mutation happens on
// that one goroutine; the public Call API and the inbound handler may
// run from any number of other goroutines.
package service

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/dpeckham/go-krpc/krpc"
	"github.com/dpeckham/go-krpc/krpc/trans"
)

type submitKind uint8

const (
	submitQuery submitKind = iota
	submitCancel
)

type callResult[R any] struct {
	res R
	err error
}

type waiter[R any] struct {
	resCh chan callResult[R]
}

type submission[Q ~string, A krpc.QueryArg[Q], R any] struct {
	kind     submitKind
	addr     *net.UDPAddr
	arg      A
	idCh     chan trans.ID
	resCh    chan callResult[R]
	cancelID trans.ID
}

type outboundFrame struct {
	addr *net.UDPAddr
	data []byte
}

// Service is the generic KRPC engine, parameterized the same way
// krpc.Message is: Q is the query-name type, A the argument type, R
// the result type, and H the application handler type answering
// inbound queries.
type Service[Q ~string, A krpc.QueryArg[Q], R any, H Handler[A, R]] struct {
	conn    *net.UDPConn
	handler H
	options Options
	log     *logrus.Entry

	table *trans.Table[waiter[R]]

	submitCh  chan submission[Q, A, R]
	inboundCh chan krpc.Item[Q, A, R]
	sendCh    chan outboundFrame
	done      chan struct{}
	closeOnce sync.Once

	wg sync.WaitGroup

	instanceID  uuid.UUID
	sentTotal   *expvar.Int
	recvTotal   *expvar.Int
	decodeErrs  *expvar.Int
	activeTrans *expvar.Int

	mu       sync.Mutex
	closeErr error
	shutdown error
}

// New binds a UDP socket at bindAddr and starts the service's
// goroutines: the event loop (owns the transaction table), a reader
// goroutine (decodes datagrams off the socket), and a writer
// goroutine (serializes outbound sends so per-peer ordering is
// preserved even though handlers may run concurrently).
func New[Q ~string, A krpc.QueryArg[Q], R any, H Handler[A, R]](handler H, bindAddr *net.UDPAddr, options Options) (*Service[Q, A, R, H], error) {
	conn, err := net.ListenUDP("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("krpc/service: listen %s: %w", bindAddr, err)
	}
	options = options.withDefaults()
	id := uuid.New()

	s := &Service[Q, A, R, H]{
		conn:       conn,
		handler:    handler,
		options:    options,
		log:        logrus.WithField("krpc_service", id.String()[:8]),
		table:      trans.New[waiter[R]](),
		submitCh:   make(chan submission[Q, A, R], options.SubmitQueueDepth),
		inboundCh:  make(chan krpc.Item[Q, A, R]),
		sendCh:     make(chan outboundFrame),
		done:       make(chan struct{}),
		instanceID: id,
		sentTotal:   expvar.NewInt(fmt.Sprintf("krpc_sent_total_%s", id)),
		recvTotal:   expvar.NewInt(fmt.Sprintf("krpc_received_total_%s", id)),
		decodeErrs:  expvar.NewInt(fmt.Sprintf("krpc_decode_errors_total_%s", id)),
		activeTrans: expvar.NewInt(fmt.Sprintf("krpc_active_transactions_%s", id)),
	}

	s.wg.Add(3)
	go s.readLoop()
	go s.sendLoop()
	go s.eventLoop()

	s.log.WithField("addr", conn.LocalAddr()).Info("krpc service listening")
	return s, nil
}

// LocalAddr returns the socket's bound address.
func (s *Service[Q, A, R, H]) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Active returns the number of in-flight transactions, for
// diagnostics and tests. It reads the expvar gauge the event loop
// maintains rather than the table itself — the table is owned by the
// loop goroutine and must not be touched from outside it.
func (s *Service[Q, A, R, H]) Active() int {
	return int(s.activeTrans.Value())
}

// Call sends arg as a query to addr and waits for a response, an
// error, ctx cancellation, or Options.Timeout, whichever comes first.
// On a non-nil error the returned result is the zero value.
func (s *Service[Q, A, R, H]) Call(ctx context.Context, addr *net.UDPAddr, arg A) (R, error) {
	var zero R

	idCh := make(chan trans.ID, 1)
	resCh := make(chan callResult[R], 1)
	sub := submission[Q, A, R]{kind: submitQuery, addr: addr, arg: arg, idCh: idCh, resCh: resCh}

	select {
	case s.submitCh <- sub:
	case <-s.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	var id trans.ID
	select {
	case id = <-idCh:
	case <-s.done:
		// an outbound encode failure leaves this caller's *IOError in
		// resCh before shutting the service down.
		select {
		case result := <-resCh:
			return result.res, result.err
		default:
		}
		return zero, ErrClosed
	}

	timer := time.NewTimer(s.options.Timeout)
	defer timer.Stop()

	select {
	case result := <-resCh:
		return result.res, result.err
	case <-timer.C:
		s.requestCancel(id)
		return zero, ErrTimeout
	case <-ctx.Done():
		s.requestCancel(id)
		return zero, ctx.Err()
	case <-s.done:
		return zero, ErrClosed
	}
}

// requestCancel tells the event loop to drop a transaction whose
// waiter is no longer listening (timed out, or its context was
// cancelled) — the resolution the design notes describe for the
// cyclic back-reference between Call and the loop: the loop is the
// only goroutine allowed to mutate the table, so cancellation is a
// message, not a direct map delete.
func (s *Service[Q, A, R, H]) requestCancel(id trans.ID) {
	select {
	case s.submitCh <- submission[Q, A, R]{kind: submitCancel, cancelID: id}:
	case <-s.done:
	}
}

// shutdownNow signals the goroutines to stop and releases the socket,
// exactly once; later calls are no-ops so Close stays idempotent.
func (s *Service[Q, A, R, H]) shutdownNow() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.mu.Lock()
			s.closeErr = fmt.Errorf("closing socket: %w", err)
			s.mu.Unlock()
		}
	})
}

// Close stops the event loop and all goroutines, and releases the
// socket. It blocks until shutdown completes.
func (s *Service[Q, A, R, H]) Close() error {
	s.shutdownNow()
	s.wg.Wait()

	var result *multierror.Error
	s.mu.Lock()
	if s.closeErr != nil {
		result = multierror.Append(result, s.closeErr)
	}
	if s.shutdown != nil {
		result = multierror.Append(result, s.shutdown)
	}
	s.mu.Unlock()

	return result.ErrorOrNil()
}

// fatal records an unrecoverable local error — an outbound message
// that could not be encoded, which the error-handling policy treats
// as a programming bug rather than something to retry — and begins
// shutting the service down.
func (s *Service[Q, A, R, H]) fatal(err error) {
	s.mu.Lock()
	if s.shutdown == nil {
		s.shutdown = err
	}
	s.mu.Unlock()
	s.log.WithError(err).Error("krpc service: fatal codec error, shutting down")
	s.shutdownNow()
}
