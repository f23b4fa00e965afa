package store

import (
	"context"

	"inventory-service/internal/domain"

	"github.com/google/uuid"
)

// Repository is the compare-and-swap record store for one entity type.
//
// Update reads the stored record, fails with VersionConflict when its version
// differs from expectedVersion, applies patch to a copy and writes it back with
// the version incremented. Nothing is written when patch or validation fails.
// Records returned by any method are copies owned by the caller.
type Repository[E any, F any] interface {
	Create(ctx context.Context, entity *E) (*E, error)
	Get(ctx context.Context, id uuid.UUID) (*E, error)
	Update(ctx context.Context, id uuid.UUID, expectedVersion int, patch func(*E) error) (*E, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter F) ([]*E, error)
}

type (
	ProductRepository  = Repository[domain.Product, ProductFilter]
	CategoryRepository = Repository[domain.Category, CategoryFilter]
	SupplierRepository = Repository[domain.Supplier, SupplierFilter]
	OrderRepository    = Repository[domain.Order, OrderFilter]
	AuditRepository    = Repository[domain.AuditEntry, AuditFilter]
)

type UserRepository interface {
	Repository[domain.User, UserFilter]
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Store is the entity store of record.
type Store interface {
	Products() ProductRepository
	Categories() CategoryRepository
	Suppliers() SupplierRepository
	Orders() OrderRepository
	Users() UserRepository
	Audit() AuditRepository
	Ping(ctx context.Context) error
	Close() error
}

type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByName      SortField = "name"
	SortByStock     SortField = "stock"
)

// Sort orders a listing. The zero value sorts by creation time, oldest first.
// Ties keep insertion order.
type Sort struct {
	Field SortField
	Desc  bool
}

type ProductFilter struct {
	CategoryID *uuid.UUID
	SupplierID *uuid.UUID
	Sort       Sort
}

type CategoryFilter struct {
	Sort Sort
}

type SupplierFilter struct {
	Sort Sort
}

type OrderFilter struct {
	CustomerID *uuid.UUID
	Status     domain.Status
	Sort       Sort
}

type UserFilter struct {
	Role domain.Role
	Sort Sort
}

type AuditFilter struct {
	OrderID *uuid.UUID
	State   domain.AuditState
	Sort    Sort
}

func (f ProductFilter) matches(p *domain.Product) bool {
	if f.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *f.CategoryID) {
		return false
	}
	if f.SupplierID != nil && (p.SupplierID == nil || *p.SupplierID != *f.SupplierID) {
		return false
	}
	return true
}

func (f OrderFilter) matches(o *domain.Order) bool {
	if f.CustomerID != nil && o.CustomerID != *f.CustomerID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

func (f UserFilter) matches(u *domain.User) bool {
	return f.Role == "" || u.Role == f.Role
}

func (f AuditFilter) matches(e *domain.AuditEntry) bool {
	if f.OrderID != nil && e.OrderID != *f.OrderID {
		return false
	}
	if f.State != "" && e.State != f.State {
		return false
	}
	return true
}

func (f ProductFilter) where() ([]string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.CategoryID != nil {
		clauses = append(clauses, "category_id = ?")
		args = append(args, f.CategoryID.String())
	}
	if f.SupplierID != nil {
		clauses = append(clauses, "supplier_id = ?")
		args = append(args, f.SupplierID.String())
	}
	return clauses, args
}

func (f OrderFilter) where() ([]string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.CustomerID != nil {
		clauses = append(clauses, "customer_id = ?")
		args = append(args, f.CustomerID.String())
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	return clauses, args
}

func (f UserFilter) where() ([]string, []interface{}) {
	if f.Role == "" {
		return nil, nil
	}
	return []string{"role = ?"}, []interface{}{string(f.Role)}
}

func (f AuditFilter) where() ([]string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.OrderID != nil {
		clauses = append(clauses, "order_id = ?")
		args = append(args, f.OrderID.String())
	}
	if f.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, string(f.State))
	}
	return clauses, args
}

// entity is satisfied by pointers to the domain record types.
type entity[E any] interface {
	*E
	Meta() *domain.Record
	Clone() *E
	Validate() error
}
