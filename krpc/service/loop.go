package service

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dpeckham/go-krpc/krpc"
)

// peerKey normalizes a UDP address into the transaction table's key
// form. Unmap matters: depending on the socket family, the same IPv4
// peer can surface as either a plain v4 address or a v4-mapped v6
// address, and the two compare unequal as netip values — which would
// make a response from the very peer a query was sent to miss its
// table entry.
func peerKey(addr *net.UDPAddr) netip.AddrPort {
	ap := addr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// readLoop owns the socket's read side. It only decodes and forwards
// — it never touches the transaction table, so it can run
// concurrently with the event loop without violating single-goroutine
// ownership of the table.
func (s *Service[Q, A, R, H]) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, krpc.MaxDatagramSize)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.done:
				return
			default:
				s.log.WithError(err).Warn("krpc service: read error")
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		item, err := krpc.DecodeDatagram[Q, A, R](data, addr)
		if err != nil {
			// decode errors on inbound packets are non-fatal: log and
			// drop the packet, keep the loop running.
			s.decodeErrs.Add(1)
			s.log.WithError(err).Debug("krpc service: dropping malformed datagram")
			continue
		}
		s.recvTotal.Add(1)

		select {
		case s.inboundCh <- item:
		case <-s.done:
			return
		}
	}
}

// sendLoop is the service's single writer, so that outbound sends to
// the same peer are never reordered by concurrent handler goroutines.
func (s *Service[Q, A, R, H]) sendLoop() {
	defer s.wg.Done()
	for {
		select {
		case frame, ok := <-s.sendCh:
			if !ok {
				return
			}
			if _, err := s.conn.WriteToUDP(frame.data, frame.addr); err != nil {
				s.log.WithError(err).Warn("krpc service: write failed")
				continue
			}
			s.sentTotal.Add(1)
		case <-s.done:
			return
		}
	}
}

// eventLoop is the single task that owns the transaction table. It
// multiplexes inbound items and application submissions (queries and
// cancellations); per-call timeouts are armed by Call itself, not
// here, per the design notes.
func (s *Service[Q, A, R, H]) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case item, ok := <-s.inboundCh:
			if !ok {
				return
			}
			s.handleInbound(item)
		case sub, ok := <-s.submitCh:
			if !ok {
				return
			}
			s.handleSubmit(sub)
		}
	}
}

func (s *Service[Q, A, R, H]) handleInbound(item krpc.Item[Q, A, R]) {
	switch item.Msg.Kind {
	case krpc.KindQuery:
		go s.dispatchQuery(item)
	case krpc.KindResponse:
		s.deliverToWaiter(item.Addr, item.Msg.TransID, callResult[R]{res: item.Msg.Res})
	case krpc.KindError:
		s.deliverToWaiter(item.Addr, item.Msg.TransID, callResult[R]{err: &PeerError{Err: item.Msg.Err}})
	}
}

func (s *Service[Q, A, R, H]) deliverToWaiter(addr *net.UDPAddr, tid []byte, result callResult[R]) {
	w, ok := s.table.EndRaw(peerKey(addr), tid)
	s.activeTrans.Set(int64(s.table.Active()))
	if !ok {
		// late or foreign message: silently dropped per the
		// error-handling policy.
		return
	}
	select {
	case w.resCh <- result:
	default:
		// the caller already gave up (timeout/ctx) and the channel is
		// unbuffered-full or abandoned; nothing to deliver to.
	}
}

// dispatchQuery runs the application handler for one inbound query.
// It is invoked in its own goroutine so a slow handler cannot stall
// the event loop or other in-flight handlers, while outbound framing
// still goes through the single sendLoop to preserve per-peer order.
func (s *Service[Q, A, R, H]) dispatchQuery(item krpc.Item[Q, A, R]) {
	s.log.WithFields(logrus.Fields{
		"peer":   item.Addr,
		"tid":    item.Msg.TransID,
		"method": item.Msg.Query,
	}).Debug("krpc service: query received")

	res, kerr := s.handler.Handle(context.Background(), item.Msg.Arg)

	var out krpc.Message[Q, A, R]
	if kerr != nil {
		out = krpc.NewError[Q, A, R](item.Msg.TransID, *kerr)
	} else {
		out = krpc.NewResponse[Q, A, R](item.Msg.TransID, res)
	}
	// echo the address the query was actually observed from; a peer
	// whose address has no compact IPv4 form just doesn't get the
	// advisory field.
	if item.Addr.IP.To4() != nil {
		out.IP = krpc.NewAddress(item.Addr)
	}

	data, err := krpc.EncodeDatagram(out)
	if err != nil {
		s.fatal(err)
		return
	}

	select {
	case s.sendCh <- outboundFrame{addr: item.Addr, data: data}:
	case <-s.done:
	}
}

func (s *Service[Q, A, R, H]) handleSubmit(sub submission[Q, A, R]) {
	switch sub.kind {
	case submitQuery:
		s.handleSubmitQuery(sub)
	case submitCancel:
		s.handleSubmitCancel(sub)
	}
}

func (s *Service[Q, A, R, H]) handleSubmitQuery(sub submission[Q, A, R]) {
	id := s.table.Start(peerKey(sub.addr), waiter[R]{resCh: sub.resCh})
	s.activeTrans.Set(int64(s.table.Active()))

	msg := krpc.NewQuery[Q, A, R](id.Bytes(), sub.arg)
	data, err := krpc.EncodeDatagram(msg)
	if err != nil {
		s.table.End(id)
		s.activeTrans.Set(int64(s.table.Active()))
		select {
		case sub.resCh <- callResult[R]{err: &IOError{Err: err}}:
		default:
		}
		s.fatal(err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"peer":   sub.addr,
		"tid":    id.TID,
		"method": sub.arg.Query(),
	}).Debug("krpc service: query sent")

	select {
	case sub.idCh <- id:
	case <-s.done:
		return
	}

	select {
	case s.sendCh <- outboundFrame{addr: sub.addr, data: data}:
	case <-s.done:
	}
}

func (s *Service[Q, A, R, H]) handleSubmitCancel(sub submission[Q, A, R]) {
	w, ok := s.table.End(sub.cancelID)
	s.activeTrans.Set(int64(s.table.Active()))
	if !ok {
		return
	}
	select {
	case w.resCh <- callResult[R]{err: ErrTimeout}:
	default:
	}
}
