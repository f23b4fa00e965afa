package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestProduct(stock int) *Product {
	p, _ := NewProduct("Widget", "A widget", 1000, stock, nil, nil)
	p.ID = uuid.New()
	return p
}

func TestNewProduct(t *testing.T) {
	p, err := NewProduct("Widget", "A widget", 1000, 5, nil, nil)

	assert.NoError(t, err)
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, int64(1000), p.PriceCents)
	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, 0, p.Reserved)
}

func TestNewProduct_Error_InvalidFields(t *testing.T) {
	tests := []struct {
		name  string
		pname string
		price int64
		stock int
	}{
		{"missing name", "", 100, 1},
		{"negative price", "Widget", -1, 1},
		{"negative stock", "Widget", 100, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProduct(tt.pname, "", tt.price, tt.stock, nil, nil)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestReserve_Success(t *testing.T) {
	p := newTestProduct(10)
	p.Reserved = 2

	err := p.Reserve(3)

	assert.NoError(t, err)
	assert.Equal(t, 5, p.Reserved)
	assert.Equal(t, 10, p.Stock)
	assert.Equal(t, 5, p.Available())
}

func TestReserve_Error_InsufficientStock(t *testing.T) {
	p := newTestProduct(5)
	p.Reserved = 4

	err := p.Reserve(2)

	assert.ErrorIs(t, err, ErrInsufficientStock)
	var de *DomainError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, p.ID, de.EntityID)
	assert.Equal(t, 4, p.Reserved)
}

func TestRelease_ClampsToReserved(t *testing.T) {
	p := newTestProduct(5)
	p.Reserved = 2

	released, err := p.Release(5)

	assert.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.Equal(t, 0, p.Reserved)
	assert.Equal(t, 5, p.Stock)

	released, err = p.Release(1)
	assert.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.Equal(t, 0, p.Reserved)
}

func TestCommit_Success(t *testing.T) {
	p := newTestProduct(5)
	p.Reserved = 5

	err := p.Commit(5)

	assert.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, 0, p.Reserved)
}

func TestCommit_Error_MoreThanReserved(t *testing.T) {
	p := newTestProduct(5)
	p.Reserved = 1

	err := p.Commit(2)

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, 1, p.Reserved)
}

func TestAdjust(t *testing.T) {
	p := newTestProduct(5)
	p.Reserved = 3

	assert.NoError(t, p.Adjust(10))
	assert.Equal(t, 15, p.Stock)

	assert.NoError(t, p.Adjust(-12))
	assert.Equal(t, 3, p.Stock)

	err := p.Adjust(-1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, p.Stock)

	assert.ErrorIs(t, p.Adjust(0), ErrInvalidArgument)
}

func TestRestore_ReversesCommit(t *testing.T) {
	p := newTestProduct(5)
	p.Reserved = 3

	assert.NoError(t, p.Commit(2))
	assert.NoError(t, p.Restore(2))

	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, 3, p.Reserved)
}

func TestLedgerOperations_NeverGoNegative(t *testing.T) {
	p := newTestProduct(3)
	ops := []func() error{
		func() error { return p.Reserve(2) },
		func() error { return p.Reserve(2) },
		func() error { _, err := p.Release(5); return err },
		func() error { return p.Commit(1) },
		func() error { return p.Reserve(3) },
		func() error { return p.Commit(3) },
		func() error { return p.Commit(3) },
		func() error { return p.Adjust(-1) },
		func() error { _, err := p.Release(1); return err },
	}

	for _, op := range ops {
		_ = op()
		assert.GreaterOrEqual(t, p.Stock, 0)
		assert.GreaterOrEqual(t, p.Reserved, 0)
		assert.LessOrEqual(t, p.Reserved, p.Stock)
		assert.NoError(t, p.Validate())
	}
}

func TestQuantitiesMustBePositive(t *testing.T) {
	p := newTestProduct(3)

	assert.ErrorIs(t, p.Reserve(0), ErrInvalidArgument)
	_, err := p.Release(-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, p.Commit(0), ErrInvalidArgument)
	assert.ErrorIs(t, p.Restore(0), ErrInvalidArgument)
}

func TestProductClone_Independent(t *testing.T) {
	cat := uuid.New()
	p := newTestProduct(3)
	p.CategoryID = &cat

	c := p.Clone()
	*c.CategoryID = uuid.New()
	c.Stock = 99

	assert.Equal(t, cat, *p.CategoryID)
	assert.Equal(t, 3, p.Stock)
}
