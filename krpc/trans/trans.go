// Package trans implements the transaction table that correlates an
// outgoing query to the waiter expecting its response. It is owned
// exclusively by the service event loop — every method here assumes
// single-goroutine access, the same way the original reference
// implementation's transaction manager is only ever touched from the
// loop task.
package trans

import (
	"encoding/binary"
	"net/netip"
)

// ID identifies one in-flight transaction: the peer it was sent to
// (or received from) and the 2-byte transaction id assigned to it.
type ID struct {
	Peer netip.AddrPort
	TID  uint16
}

type key struct {
	peer netip.AddrPort
	tid  uint16
}

// Table is a generic transaction table: Data is whatever the service
// layer needs to remember about a pending call (a response channel,
// the deadline, the original query method, ...).
type Table[Data any] struct {
	lastTID uint16
	pool    map[key]Data
}

// New returns an empty transaction table. The first transaction id
// issued by Start is 1, never 0 — mirroring the reference
// implementation's counter, which is pre-incremented before use.
func New[Data any]() *Table[Data] {
	return &Table[Data]{pool: make(map[key]Data)}
}

// Start assigns a new transaction id for peer, registers data under
// it, and returns the resulting ID. If the next counter value
// happens to collide with a still-pending entry for the same peer
// (the counter wrapped around a u16), Start probes forward until it
// finds a free id — the reference implementation assumes this never
// happens in practice, but a generic, long-lived service should not
// silently misattribute a response.
func (t *Table[Data]) Start(peer netip.AddrPort, data Data) ID {
	for {
		t.lastTID++
		k := key{peer: peer, tid: t.lastTID}
		if _, exists := t.pool[k]; exists {
			continue
		}
		t.pool[k] = data
		return ID{Peer: peer, TID: t.lastTID}
	}
}

// End looks up and removes the entry for id, returning ok=false if
// there is none (unknown, expired, or already-delivered transaction).
func (t *Table[Data]) End(id ID) (Data, bool) {
	k := key{peer: id.Peer, tid: id.TID}
	data, ok := t.pool[k]
	if ok {
		delete(t.pool, k)
	}
	return data, ok
}

// EndRaw is End's counterpart for inbound wire messages, whose tid is
// an opaque byte slice rather than a typed ID. A tid of any length
// other than 2 bytes can never match a Start-assigned id and is
// therefore a clean miss, not an error — this is the wire-level rule
// from the boundary cases ("tid bytes of length != 2 on response:
// entry lookup returns None").
func (t *Table[Data]) EndRaw(peer netip.AddrPort, tid []byte) (Data, bool) {
	var zero Data
	if len(tid) != 2 {
		return zero, false
	}
	return t.End(ID{Peer: peer, TID: binary.BigEndian.Uint16(tid)})
}

// Active returns the number of pending transactions.
func (t *Table[Data]) Active() int {
	return len(t.pool)
}

// Bytes renders a transaction id as the 2-byte big-endian wire
// representation used in the "t" field.
func (id ID) Bytes() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, id.TID)
	return b
}
