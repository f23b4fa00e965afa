package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record carries the identity and concurrency bookkeeping shared by every
// persisted entity. The store owns these fields: it assigns ID and CreatedAt on
// create and bumps Version and UpdatedAt on every successful update.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta gives generic code access to the embedded record.
func (r *Record) Meta() *Record {
	return r
}

// Product is the aggregate root for sellable stock.
//
// Stock is the quantity on hand, Reserved the part of it held by pending
// orders. Reserved never exceeds Stock, so Available is never negative.
type Product struct {
	Record
	Name        string     `json:"name"`
	Description string     `json:"description"`
	PriceCents  int64      `json:"price_cents"`
	Stock       int        `json:"stock"`
	Reserved    int        `json:"reserved"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	SupplierID  *uuid.UUID `json:"supplier_id,omitempty"`
}

// NewProduct creates a product with initial stock and nothing reserved.
func NewProduct(name, description string, priceCents int64, stock int, categoryID, supplierID *uuid.UUID) (*Product, error) {
	if name == "" {
		return nil, NewInvalidArgument("product name is required")
	}
	if priceCents < 0 {
		return nil, NewInvalidArgument("price must be non-negative, got %d", priceCents)
	}
	if stock < 0 {
		return nil, NewInvalidArgument("stock must be non-negative, got %d", stock)
	}
	return &Product{
		Name:        name,
		Description: description,
		PriceCents:  priceCents,
		Stock:       stock,
		CategoryID:  categoryID,
		SupplierID:  supplierID,
	}, nil
}

// Available returns the sellable quantity (stock - reserved).
func (p *Product) Available() int {
	return p.Stock - p.Reserved
}

// Reserve holds qty units for a pending order.
func (p *Product) Reserve(qty int) error {
	if qty <= 0 {
		return NewInvalidArgument("reserve quantity must be positive, got %d", qty)
	}
	if p.Available() < qty {
		return NewInsufficientStock(p.ID, p.Available(), qty)
	}
	p.Reserved += qty
	return nil
}

// Release drops up to qty units of reservation and returns how many were
// actually released. Releasing more than is reserved is not an error.
func (p *Product) Release(qty int) (int, error) {
	if qty <= 0 {
		return 0, NewInvalidArgument("release quantity must be positive, got %d", qty)
	}
	released := qty
	if released > p.Reserved {
		released = p.Reserved
	}
	p.Reserved -= released
	return released, nil
}

// Commit turns qty reserved units into a permanent stock reduction.
func (p *Product) Commit(qty int) error {
	if qty <= 0 {
		return NewInvalidArgument("commit quantity must be positive, got %d", qty)
	}
	if p.Reserved < qty {
		return NewInsufficientStock(p.ID, p.Reserved, qty)
	}
	p.Stock -= qty
	p.Reserved -= qty
	return nil
}

// Adjust changes the quantity on hand. Stock can never drop below what is
// already reserved.
func (p *Product) Adjust(delta int) error {
	if delta == 0 {
		return NewInvalidArgument("adjustment must be non-zero")
	}
	if p.Stock+delta < p.Reserved {
		return NewInsufficientStock(p.ID, p.Available(), -delta)
	}
	p.Stock += delta
	return nil
}

// Restore reverses a Commit of qty units.
func (p *Product) Restore(qty int) error {
	if qty <= 0 {
		return NewInvalidArgument("restore quantity must be positive, got %d", qty)
	}
	p.Stock += qty
	p.Reserved += qty
	return nil
}

// Validate checks the stock invariants.
func (p *Product) Validate() error {
	if p.Name == "" {
		return NewInvalidArgument("product name is required")
	}
	if p.PriceCents < 0 {
		return NewInvalidArgument("price must be non-negative, got %d", p.PriceCents)
	}
	if p.Stock < 0 || p.Reserved < 0 || p.Reserved > p.Stock {
		return NewInvalidArgument("invalid stock state: stock %d, reserved %d", p.Stock, p.Reserved)
	}
	return nil
}

func (p *Product) Clone() *Product {
	c := *p
	if p.CategoryID != nil {
		id := *p.CategoryID
		c.CategoryID = &id
	}
	if p.SupplierID != nil {
		id := *p.SupplierID
		c.SupplierID = &id
	}
	return &c
}
