package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerOp is the ledger operation an order transition applies per item.
type LedgerOp string

const (
	LedgerCommit  LedgerOp = "commit"
	LedgerRelease LedgerOp = "release"
)

type AuditState string

const (
	AuditOpen     AuditState = "open"
	AuditResolved AuditState = "resolved"
	AuditManual   AuditState = "manual"
)

// AuditEntry records a ledger/order discrepancy: ledger operations that were
// applied for an order whose status update did not go through.
//
// Applied holds the quantities the ledger actually moved, Remaining the
// operations not yet attempted. Shortfall holds release quantities that found
// no reservation to drop. ClaimID is the order claim the operations were
// applied under. LeaseID is set while a reconciler works on the entry.
type AuditEntry struct {
	Record
	OrderID      uuid.UUID   `json:"order_id"`
	ClaimID      uuid.UUID   `json:"claim_id"`
	Operation    LedgerOp    `json:"operation"`
	TargetStatus Status      `json:"target_status"`
	Applied      []OrderItem `json:"applied"`
	Remaining    []OrderItem `json:"remaining"`
	Shortfall    []OrderItem `json:"shortfall,omitempty"`
	Cause        string      `json:"cause"`
	State        AuditState  `json:"state"`
	Resolution   string      `json:"resolution,omitempty"`
	Attempts     int         `json:"attempts"`
	LeaseID      uuid.UUID   `json:"-"`
}

func NewAuditEntry(orderID, claimID uuid.UUID, op LedgerOp, target Status, applied, remaining []OrderItem, cause error) *AuditEntry {
	e := &AuditEntry{
		OrderID:      orderID,
		ClaimID:      claimID,
		Operation:    op,
		TargetStatus: target,
		Applied:      append([]OrderItem(nil), applied...),
		Remaining:    append([]OrderItem(nil), remaining...),
		State:        AuditOpen,
	}
	if cause != nil {
		e.Cause = cause.Error()
	}
	return e
}

func (e *AuditEntry) Open() bool {
	return e.State == AuditOpen
}

// Leased reports whether a reconciler holds an unexpired lease. Every write
// under the lease refreshes UpdatedAt.
func (e *AuditEntry) Leased(now time.Time, ttl time.Duration) bool {
	return e.LeaseID != uuid.Nil && now.Sub(e.UpdatedAt) <= ttl
}

func (e *AuditEntry) Validate() error {
	if e.OrderID == uuid.Nil {
		return NewInvalidArgument("audit entry order is required")
	}
	switch e.Operation {
	case LedgerCommit, LedgerRelease:
	default:
		return NewInvalidArgument("unknown ledger operation %q", e.Operation)
	}
	switch e.State {
	case AuditOpen, AuditResolved, AuditManual:
	default:
		return NewInvalidArgument("unknown audit state %q", e.State)
	}
	return nil
}

func (e *AuditEntry) Clone() *AuditEntry {
	c := *e
	c.Applied = append([]OrderItem(nil), e.Applied...)
	c.Remaining = append([]OrderItem(nil), e.Remaining...)
	c.Shortfall = append([]OrderItem(nil), e.Shortfall...)
	return &c
}
