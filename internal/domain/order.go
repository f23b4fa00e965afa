package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an order. The set is closed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// validNext lists the legal edges of the order state machine. Terminal
// states have no outgoing edges.
var validNext = map[Status]map[Status]bool{
	StatusPending: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// ParseStatus converts s into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", NewInvalidArgument("unknown order status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// OrderItem is one line of an order. UnitPriceCents is the product price at
// the moment the order was placed and is never recomputed.
type OrderItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

func (i OrderItem) SubtotalCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// ClaimTTL is how long a claim blocks other callers after its holder stops
// making progress.
const ClaimTTL = time.Minute

// Order is placed by a customer and moves pending -> completed | cancelled.
//
// ClaimID names the caller allowed to apply ledger operations for the order.
// A pending order with a claim is being finalized; a terminal order keeps the
// claim of whoever finalized it.
type Order struct {
	Record
	CustomerID uuid.UUID   `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	Status     Status      `json:"status"`
	ClaimID    uuid.UUID   `json:"-"`
}

// NewOrder creates a pending order. Items must already carry their snapshotted prices.
func NewOrder(id, customerID uuid.UUID, items []OrderItem) (*Order, error) {
	o := &Order{
		Record:     Record{ID: id},
		CustomerID: customerID,
		Items:      append([]OrderItem(nil), items...),
		Status:     StatusPending,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// TotalCents is the sum of quantity x snapshotted unit price.
func (o *Order) TotalCents() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.SubtotalCents()
	}
	return total
}

// References reports whether any item of the order is for productID.
func (o *Order) References(productID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// Claimed reports whether a finalization of the pending order is under way.
func (o *Order) Claimed() bool {
	return o.Status == StatusPending && o.ClaimID != uuid.Nil
}

// ClaimExpired reports whether the claim is older than ttl. The claim is the
// last write to a claimed order, so UpdatedAt is the claim time.
func (o *Order) ClaimExpired(now time.Time, ttl time.Duration) bool {
	return o.Claimed() && now.Sub(o.UpdatedAt) > ttl
}

// Transition moves the order to status to if the edge is legal.
func (o *Order) Transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return NewInvalidTransition(o.Status, to)
	}
	o.Status = to
	return nil
}

func (o *Order) Validate() error {
	if o.CustomerID == uuid.Nil {
		return NewInvalidArgument("order customer is required")
	}
	if len(o.Items) == 0 {
		return NewInvalidArgument("order must contain at least one item")
	}
	for _, item := range o.Items {
		if item.ProductID == uuid.Nil {
			return NewInvalidArgument("order item product is required")
		}
		if item.Quantity <= 0 {
			return NewInvalidArgument("order item quantity must be positive, got %d", item.Quantity)
		}
		if item.UnitPriceCents < 0 {
			return NewInvalidArgument("order item price must be non-negative, got %d", item.UnitPriceCents)
		}
	}
	if !o.Status.Valid() {
		return NewInvalidArgument("unknown order status %q", o.Status)
	}
	return nil
}

// CheckOrderChange validates an update of before into after. Customer and
// items are fixed at placement and status may only move along a legal edge.
func CheckOrderChange(before, after *Order) error {
	if after.CustomerID != before.CustomerID {
		return NewInvalidArgument("order customer cannot change")
	}
	if !sameItems(before.Items, after.Items) {
		return NewInvalidArgument("order items are immutable")
	}
	if after.Status != before.Status && !CanTransition(before.Status, after.Status) {
		return NewInvalidTransition(before.Status, after.Status)
	}
	if after.ClaimID != before.ClaimID && before.Status.Terminal() {
		return NewInvalidArgument("claim of a %s order cannot change", before.Status)
	}
	return after.Validate()
}

func sameItems(a, b []OrderItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}
