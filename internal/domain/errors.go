package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies a DomainError. Callers branch on the kind, never on the message.
type Kind string

const (
	KindNotFound             Kind = "NotFound"
	KindVersionConflict      Kind = "VersionConflict"
	KindInsufficientStock    Kind = "InsufficientStock"
	KindInvalidTransition    Kind = "InvalidTransition"
	KindReferentialConflict  Kind = "ReferentialConflict"
	KindPartialCommitFailure Kind = "PartialCommitFailure"
	KindDuplicate            Kind = "Duplicate"
	KindInvalidArgument      Kind = "InvalidArgument"
	KindForbidden            Kind = "Forbidden"
)

// Domain errors. errors.Is matches any DomainError of the same kind.
var (
	ErrNotFound             = &DomainError{Kind: KindNotFound, Message: "entity not found"}
	ErrVersionConflict      = &DomainError{Kind: KindVersionConflict, Message: "version conflict"}
	ErrInsufficientStock    = &DomainError{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrInvalidTransition    = &DomainError{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrReferentialConflict  = &DomainError{Kind: KindReferentialConflict, Message: "entity is still referenced"}
	ErrPartialCommitFailure = &DomainError{Kind: KindPartialCommitFailure, Message: "partial commit failure"}
	ErrDuplicate            = &DomainError{Kind: KindDuplicate, Message: "duplicate value"}
	ErrInvalidArgument      = &DomainError{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrForbidden            = &DomainError{Kind: KindForbidden, Message: "operation not permitted"}
)

// DomainError represents a tagged domain error.
//
// EntityID names the entity the error is about: the offending product for
// InsufficientStock, the audit entry for PartialCommitFailure.
type DomainError struct {
	Kind     Kind
	Message  string
	EntityID uuid.UUID
	Err      error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError of the same kind.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost DomainError in err's chain, or "".
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func NewNotFound(entity string, id uuid.UUID) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), EntityID: id}
}

func NewVersionConflict(entity string, id uuid.UUID, expected, actual int) *DomainError {
	return &DomainError{
		Kind:     KindVersionConflict,
		Message:  fmt.Sprintf("%s %s version conflict: expected %d, stored %d", entity, id, expected, actual),
		EntityID: id,
	}
}

// NewBusy reports an entity another caller is currently working on. It is a
// VersionConflict: the caller should re-read and retry later.
func NewBusy(entity string, id uuid.UUID) *DomainError {
	return &DomainError{
		Kind:     KindVersionConflict,
		Message:  fmt.Sprintf("%s %s is being modified by another caller", entity, id),
		EntityID: id,
	}
}

func NewInsufficientStock(productID uuid.UUID, available, requested int) *DomainError {
	return &DomainError{
		Kind:     KindInsufficientStock,
		Message:  fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", productID, available, requested),
		EntityID: productID,
	}
}

func NewInvalidTransition(from, to Status) *DomainError {
	return &DomainError{Kind: KindInvalidTransition, Message: fmt.Sprintf("cannot transition order from %s to %s", from, to)}
}

func NewReferentialConflict(entity string, id uuid.UUID, reason string) *DomainError {
	return &DomainError{
		Kind:     KindReferentialConflict,
		Message:  fmt.Sprintf("%s %s cannot be deleted: %s", entity, id, reason),
		EntityID: id,
	}
}

func NewPartialCommitFailure(orderID, auditID uuid.UUID, cause error) *DomainError {
	return &DomainError{
		Kind:     KindPartialCommitFailure,
		Message:  fmt.Sprintf("order %s left partially applied, audit entry %s", orderID, auditID),
		EntityID: auditID,
		Err:      cause,
	}
}

func NewDuplicate(field, value string) *DomainError {
	return &DomainError{Kind: KindDuplicate, Message: fmt.Sprintf("%s %q already exists", field, value)}
}

func NewInvalidArgument(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NewForbidden(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}
