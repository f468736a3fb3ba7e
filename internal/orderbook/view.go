// Package orderbook reconciles an exchange's (possibly stale) view of our
// resting orders with orders we know we just placed or cancelled, so the
// control loop never double-places or double-cancels during the window
// before an exchange's own book catches up.
package orderbook

import (
	"sync"

	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// View tracks the last snapshot received from the exchange plus any orders
// placed or cancelled since that snapshot was taken. EffectiveBook() merges
// them into the keeper's best guess at the true current state.
type View struct {
	mu sync.Mutex

	snapshot domain.OrderBookSnapshot

	// inFlightPlaced holds orders we've submitted but that may not yet
	// appear in a freshly-fetched snapshot.
	inFlightPlaced map[string]placedEntry

	// inFlightCancelled holds order IDs we've cancelled but that may still
	// appear in a freshly-fetched snapshot.
	inFlightCancelled map[string]int

	// maxCycles bounds how many cycles an in-flight entry survives before
	// being dropped even without snapshot confirmation, so a misreported
	// exchange response can't wedge the view forever.
	maxCycles int
}

type placedEntry struct {
	order  domain.Order
	cycles int
}

// NewView creates an empty View. maxCycles is the number of control-loop
// cycles an in-flight entry is kept before being aged out unconditionally;
// the spec's default is 10.
func NewView(maxCycles int) *View {
	return &View{
		inFlightPlaced:    make(map[string]placedEntry),
		inFlightCancelled: make(map[string]int),
		maxCycles:         maxCycles,
	}
}

// UpdateSnapshot replaces the base snapshot from the exchange and reconciles
// in-flight entries against it: a placed order that now appears in the
// snapshot is no longer in-flight, and likewise for a cancelled order that
// has disappeared.
func (v *View) UpdateSnapshot(snap domain.OrderBookSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	present := make(map[string]bool, len(snap.Orders))
	for _, o := range snap.Orders {
		present[o.ID] = true
	}

	for id := range v.inFlightPlaced {
		if present[id] {
			delete(v.inFlightPlaced, id)
		}
	}
	for id := range v.inFlightCancelled {
		if !present[id] {
			delete(v.inFlightCancelled, id)
		}
	}

	v.snapshot = snap
	v.ageOutLocked()
}

// RecordPlaced marks order as in-flight until it is confirmed by a
// subsequent snapshot.
func (v *View) RecordPlaced(order domain.Order) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inFlightPlaced[order.ID] = placedEntry{order: order}
}

// RecordCancelled marks orderID as in-flight-cancelled until its absence is
// confirmed by a subsequent snapshot.
func (v *View) RecordCancelled(orderID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inFlightCancelled[orderID] = 0
}

// ageOutLocked increments the cycle counter on every in-flight entry and
// drops any whose counter has reached maxCycles. Must be called with v.mu held.
func (v *View) ageOutLocked() {
	for id, e := range v.inFlightPlaced {
		e.cycles++
		if e.cycles >= v.maxCycles {
			delete(v.inFlightPlaced, id)
			continue
		}
		v.inFlightPlaced[id] = e
	}
	for id, c := range v.inFlightCancelled {
		c++
		if c >= v.maxCycles {
			delete(v.inFlightCancelled, id)
			continue
		}
		v.inFlightCancelled[id] = c
	}
}

// EffectiveBook returns the snapshot's orders, minus any still marked
// in-flight-cancelled, plus any still-unconfirmed in-flight-placed orders.
func (v *View) EffectiveBook() domain.OrderBookSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := domain.OrderBookSnapshot{
		Pair:      v.snapshot.Pair,
		Timestamp: v.snapshot.Timestamp,
	}
	for _, o := range v.snapshot.Orders {
		if _, cancelled := v.inFlightCancelled[o.ID]; cancelled {
			continue
		}
		out.Orders = append(out.Orders, o)
	}
	for _, e := range v.inFlightPlaced {
		out.Orders = append(out.Orders, e.order)
	}
	return out
}
