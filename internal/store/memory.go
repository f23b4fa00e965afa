package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"inventory-service/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore keeps every table in process. A single mutex guards all tables
// so cross-table reference checks see a consistent snapshot; it is held only
// for the duration of one call.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	products   *table[domain.Product, *domain.Product]
	categories *table[domain.Category, *domain.Category]
	suppliers  *table[domain.Supplier, *domain.Supplier]
	orders     *table[domain.Order, *domain.Order]
	users      *table[domain.User, *domain.User]
	audit      *table[domain.AuditEntry, *domain.AuditEntry]

	productRepo  *memoryRepo[domain.Product, *domain.Product, ProductFilter]
	categoryRepo *memoryRepo[domain.Category, *domain.Category, CategoryFilter]
	supplierRepo *memoryRepo[domain.Supplier, *domain.Supplier, SupplierFilter]
	orderRepo    *memoryRepo[domain.Order, *domain.Order, OrderFilter]
	userRepo     *memoryUsers
	auditRepo    *memoryRepo[domain.AuditEntry, *domain.AuditEntry, AuditFilter]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		now:        func() time.Time { return time.Now().UTC() },
		products:   newTable[domain.Product](),
		categories: newTable[domain.Category](),
		suppliers:  newTable[domain.Supplier](),
		orders:     newTable[domain.Order](),
		users:      newTable[domain.User](),
		audit:      newTable[domain.AuditEntry](),
	}

	s.productRepo = &memoryRepo[domain.Product, *domain.Product, ProductFilter]{
		s:       s,
		t:       s.products,
		name:    "product",
		match:   ProductFilter.matches,
		sortOf:  func(f ProductFilter) Sort { return f.Sort },
		nameOf:  func(p *domain.Product) string { return p.Name },
		stockOf: func(p *domain.Product) int { return p.Stock },
		prepare: func(_, after *domain.Product) error {
			if after.CategoryID != nil && !s.categories.has(*after.CategoryID) {
				return domain.NewNotFound("category", *after.CategoryID)
			}
			if after.SupplierID != nil && !s.suppliers.has(*after.SupplierID) {
				return domain.NewNotFound("supplier", *after.SupplierID)
			}
			return nil
		},
		deletable: func(p *domain.Product) error {
			for _, o := range s.orders.rows {
				if o.Status == domain.StatusPending && o.References(p.ID) {
					return domain.NewReferentialConflict("product", p.ID, "referenced by pending order "+o.ID.String())
				}
			}
			return nil
		},
	}
	s.categoryRepo = &memoryRepo[domain.Category, *domain.Category, CategoryFilter]{
		s:      s,
		t:      s.categories,
		name:   "category",
		sortOf: func(f CategoryFilter) Sort { return f.Sort },
		nameOf: func(c *domain.Category) string { return c.Name },
		deletable: func(c *domain.Category) error {
			for _, p := range s.products.rows {
				if p.CategoryID != nil && *p.CategoryID == c.ID {
					return domain.NewReferentialConflict("category", c.ID, "referenced by product "+p.ID.String())
				}
			}
			return nil
		},
	}
	s.supplierRepo = &memoryRepo[domain.Supplier, *domain.Supplier, SupplierFilter]{
		s:      s,
		t:      s.suppliers,
		name:   "supplier",
		sortOf: func(f SupplierFilter) Sort { return f.Sort },
		nameOf: func(sp *domain.Supplier) string { return sp.Name },
		deletable: func(sp *domain.Supplier) error {
			for _, p := range s.products.rows {
				if p.SupplierID != nil && *p.SupplierID == sp.ID {
					return domain.NewReferentialConflict("supplier", sp.ID, "referenced by product "+p.ID.String())
				}
			}
			return nil
		},
	}
	s.orderRepo = &memoryRepo[domain.Order, *domain.Order, OrderFilter]{
		s:      s,
		t:      s.orders,
		name:   "order",
		match:  OrderFilter.matches,
		sortOf: func(f OrderFilter) Sort { return f.Sort },
		prepare: func(before, after *domain.Order) error {
			if before != nil {
				return domain.CheckOrderChange(before, after)
			}
			if !s.users.has(after.CustomerID) {
				return domain.NewNotFound("user", after.CustomerID)
			}
			return nil
		},
		deletable: func(o *domain.Order) error {
			if o.Status == domain.StatusPending {
				return domain.NewReferentialConflict("order", o.ID, "order is pending and holds reservations")
			}
			return nil
		},
	}
	s.userRepo = &memoryUsers{memoryRepo[domain.User, *domain.User, UserFilter]{
		s:      s,
		t:      s.users,
		name:   "user",
		match:  UserFilter.matches,
		sortOf: func(f UserFilter) Sort { return f.Sort },
		nameOf: func(u *domain.User) string { return u.Name },
		prepare: func(_, after *domain.User) error {
			after.Email = domain.NormalizeEmail(after.Email)
			for _, u := range s.users.rows {
				if u.ID != after.ID && u.Email == after.Email {
					return domain.NewDuplicate("email", after.Email)
				}
			}
			return nil
		},
		deletable: func(u *domain.User) error {
			for _, o := range s.orders.rows {
				if o.CustomerID == u.ID {
					return domain.NewReferentialConflict("user", u.ID, "referenced by order "+o.ID.String())
				}
			}
			return nil
		},
	}}
	s.auditRepo = &memoryRepo[domain.AuditEntry, *domain.AuditEntry, AuditFilter]{
		s:      s,
		t:      s.audit,
		name:   "audit entry",
		match:  AuditFilter.matches,
		sortOf: func(f AuditFilter) Sort { return f.Sort },
	}
	return s
}

func (s *MemoryStore) Products() ProductRepository { return s.productRepo }
func (s *MemoryStore) Categories() CategoryRepository { return s.categoryRepo }
func (s *MemoryStore) Suppliers() SupplierRepository { return s.supplierRepo }
func (s *MemoryStore) Orders() OrderRepository { return s.orderRepo }
func (s *MemoryStore) Users() UserRepository { return s.userRepo }
func (s *MemoryStore) Audit() AuditRepository { return s.auditRepo }

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }
func (s *MemoryStore) Close() error { return nil }

type table[E any, P entity[E]] struct {
	rows  map[uuid.UUID]P
	order []uuid.UUID
}

func newTable[E any, P entity[E]]() *table[E, P] {
	return &table[E, P]{rows: make(map[uuid.UUID]P)}
}

func (t *table[E, P]) has(id uuid.UUID) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table[E, P]) remove(id uuid.UUID) {
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// memoryRepo implements Repository over one table. The hooks run under the
// store lock: prepare before every write (before is nil on create), deletable
// before a delete.
type memoryRepo[E any, P entity[E], F any] struct {
	s    *MemoryStore
	t    *table[E, P]
	name string

	match     func(F, P) bool
	sortOf    func(F) Sort
	nameOf    func(P) string
	stockOf   func(P) int
	prepare   func(before, after P) error
	deletable func(P) error
}

func (r *memoryRepo[E, P, F]) Create(ctx context.Context, entity *E) (*E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := P(P(entity).Clone())
	if err := row.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	meta := row.Meta()
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}
	if r.t.has(meta.ID) {
		return nil, domain.NewDuplicate(r.name+" id", meta.ID.String())
	}
	if r.prepare != nil {
		if err := r.prepare(nil, row); err != nil {
			return nil, err
		}
	}
	now := r.s.now()
	meta.Version = 1
	meta.CreatedAt = now
	meta.UpdatedAt = now

	r.t.rows[meta.ID] = row
	r.t.order = append(r.t.order, meta.ID)
	return row.Clone(), nil
}

func (r *memoryRepo[E, P, F]) Get(ctx context.Context, id uuid.UUID) (*E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	row, ok := r.t.rows[id]
	if !ok {
		return nil, domain.NewNotFound(r.name, id)
	}
	return row.Clone(), nil
}

func (r *memoryRepo[E, P, F]) Update(ctx context.Context, id uuid.UUID, expectedVersion int, patch func(*E) error) (*E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.t.rows[id]
	if !ok {
		return nil, domain.NewNotFound(r.name, id)
	}
	cur := current.Meta()
	if cur.Version != expectedVersion {
		return nil, domain.NewVersionConflict(r.name, id, expectedVersion, cur.Version)
	}

	next := P(current.Clone())
	if err := patch((*E)(next)); err != nil {
		return nil, err
	}
	meta := next.Meta()
	meta.ID = cur.ID
	meta.CreatedAt = cur.CreatedAt
	meta.Version = cur.Version
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if r.prepare != nil {
		if err := r.prepare(current, next); err != nil {
			return nil, err
		}
	}
	meta.Version = cur.Version + 1
	meta.UpdatedAt = r.s.now()

	r.t.rows[id] = next
	return next.Clone(), nil
}

func (r *memoryRepo[E, P, F]) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.t.rows[id]
	if !ok {
		return domain.NewNotFound(r.name, id)
	}
	if r.deletable != nil {
		if err := r.deletable(row); err != nil {
			return err
		}
	}
	r.t.remove(id)
	return nil
}

func (r *memoryRepo[E, P, F]) List(ctx context.Context, filter F) ([]*E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows := make([]P, 0, len(r.t.rows))
	for _, id := range r.t.order {
		row := r.t.rows[id]
		if r.match == nil || r.match(filter, row) {
			rows = append(rows, row)
		}
	}

	var order Sort
	if r.sortOf != nil {
		order = r.sortOf(filter)
	}
	r.sortRows(rows, order)

	out := make([]*E, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out, nil
}

func (r *memoryRepo[E, P, F]) sortRows(rows []P, order Sort) {
	var less func(a, b P) bool
	switch {
	case order.Field == SortByName && r.nameOf != nil:
		less = func(a, b P) bool { return strings.ToLower(r.nameOf(a)) < strings.ToLower(r.nameOf(b)) }
	case order.Field == SortByStock && r.stockOf != nil:
		less = func(a, b P) bool { return r.stockOf(a) < r.stockOf(b) }
	default:
		less = func(a, b P) bool { return a.Meta().CreatedAt.Before(b.Meta().CreatedAt) }
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if order.Desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

type memoryUsers struct {
	memoryRepo[domain.User, *domain.User, UserFilter]
}

func (r *memoryUsers) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = domain.NormalizeEmail(email)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.t.rows {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, &domain.DomainError{Kind: domain.KindNotFound, Message: "user with email " + email + " not found"}
}
