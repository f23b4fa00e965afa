package store

import (
	"context"
	"fmt"

	"inventory-service/internal/domain"
)

func (s *SQLStore) wire() {
	s.categories = &sqlRepo[domain.Category, *domain.Category, CategoryFilter]{
		s:       s,
		name:    "category",
		table:   "categories",
		columns: []string{"name", "description"},
		fields: func(c *domain.Category) []interface{} {
			return []interface{}{&c.Name, &c.Description}
		},
		values: func(c *domain.Category) ([]interface{}, error) {
			return []interface{}{c.Name, c.Description}, nil
		},
		sortOf:      func(f CategoryFilter) Sort { return f.Sort },
		sortColumns: map[SortField]string{SortByName: "name"},
		deletable: func(ctx context.Context, q querier, c *domain.Category) error {
			n, err := s.count(ctx, q, "SELECT COUNT(*) FROM products WHERE category_id = ?", c.ID.String())
			if err != nil {
				return fmt.Errorf("failed to check category references: %w", err)
			}
			if n > 0 {
				return domain.NewReferentialConflict("category", c.ID, fmt.Sprintf("referenced by %d products", n))
			}
			return nil
		},
	}

	s.suppliers = &sqlRepo[domain.Supplier, *domain.Supplier, SupplierFilter]{
		s:       s,
		name:    "supplier",
		table:   "suppliers",
		columns: []string{"name", "contact_person", "email", "phone", "address", "lat", "lng"},
		fields: func(sp *domain.Supplier) []interface{} {
			loc := &pointColumn{dst: &sp.Location}
			return []interface{}{&sp.Name, &sp.ContactPerson, &sp.Email, &sp.Phone, &sp.Address, &loc.lat, loc}
		},
		values: func(sp *domain.Supplier) ([]interface{}, error) {
			var lat, lng interface{}
			if sp.Location != nil {
				lat, lng = sp.Location.Lat, sp.Location.Lng
			}
			return []interface{}{sp.Name, sp.ContactPerson, sp.Email, sp.Phone, sp.Address, lat, lng}, nil
		},
		sortOf:      func(f SupplierFilter) Sort { return f.Sort },
		sortColumns: map[SortField]string{SortByName: "name"},
		deletable: func(ctx context.Context, q querier, sp *domain.Supplier) error {
			n, err := s.count(ctx, q, "SELECT COUNT(*) FROM products WHERE supplier_id = ?", sp.ID.String())
			if err != nil {
				return fmt.Errorf("failed to check supplier references: %w", err)
			}
			if n > 0 {
				return domain.NewReferentialConflict("supplier", sp.ID, fmt.Sprintf("referenced by %d products", n))
			}
			return nil
		},
	}

	s.products = &sqlRepo[domain.Product, *domain.Product, ProductFilter]{
		s:       s,
		name:    "product",
		table:   "products",
		columns: []string{"name", "description", "price_cents", "stock", "reserved", "category_id", "supplier_id"},
		fields: func(p *domain.Product) []interface{} {
			return []interface{}{&p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.Reserved,
				nullIDColumn{&p.CategoryID}, nullIDColumn{&p.SupplierID}}
		},
		values: func(p *domain.Product) ([]interface{}, error) {
			return []interface{}{p.Name, p.Description, p.PriceCents, p.Stock, p.Reserved,
				nullID(p.CategoryID), nullID(p.SupplierID)}, nil
		},
		where:       ProductFilter.where,
		sortOf:      func(f ProductFilter) Sort { return f.Sort },
		sortColumns: map[SortField]string{SortByName: "name", SortByStock: "stock"},
		prepare: func(ctx context.Context, q querier, _, after *domain.Product) error {
			if after.CategoryID != nil {
				n, err := s.count(ctx, q, "SELECT COUNT(*) FROM categories WHERE id = ?", after.CategoryID.String())
				if err != nil {
					return fmt.Errorf("failed to check category: %w", err)
				}
				if n == 0 {
					return domain.NewNotFound("category", *after.CategoryID)
				}
			}
			if after.SupplierID != nil {
				n, err := s.count(ctx, q, "SELECT COUNT(*) FROM suppliers WHERE id = ?", after.SupplierID.String())
				if err != nil {
					return fmt.Errorf("failed to check supplier: %w", err)
				}
				if n == 0 {
					return domain.NewNotFound("supplier", *after.SupplierID)
				}
			}
			return nil
		},
		deletable: func(ctx context.Context, q querier, p *domain.Product) error {
			rows, err := q.QueryContext(ctx, s.rebind("SELECT id, items FROM orders WHERE status = ?"), string(domain.StatusPending))
			if err != nil {
				return fmt.Errorf("failed to check product references: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				var o domain.Order
				if err := rows.Scan(&o.ID, jsonColumn{&o.Items}); err != nil {
					return fmt.Errorf("failed to check product references: %w", err)
				}
				if o.References(p.ID) {
					return domain.NewReferentialConflict("product", p.ID, "referenced by pending order "+o.ID.String())
				}
			}
			return rows.Err()
		},
	}

	s.users = &sqlUsers{&sqlRepo[domain.User, *domain.User, UserFilter]{
		s:       s,
		name:    "user",
		table:   "users",
		columns: []string{"name", "email", "role", "address", "password_hash", "deleted"},
		fields: func(u *domain.User) []interface{} {
			return []interface{}{&u.Name, &u.Email, &u.Role, &u.Address, &u.PasswordHash, boolColumn{&u.Deleted}}
		},
		values: func(u *domain.User) ([]interface{}, error) {
			return []interface{}{u.Name, u.Email, string(u.Role), u.Address, u.PasswordHash, boolValue(u.Deleted)}, nil
		},
		where:       UserFilter.where,
		sortOf:      func(f UserFilter) Sort { return f.Sort },
		sortColumns: map[SortField]string{SortByName: "name"},
		prepare: func(ctx context.Context, q querier, _, after *domain.User) error {
			after.Email = domain.NormalizeEmail(after.Email)
			n, err := s.count(ctx, q, "SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?", after.Email, after.ID.String())
			if err != nil {
				return fmt.Errorf("failed to check email: %w", err)
			}
			if n > 0 {
				return domain.NewDuplicate("email", after.Email)
			}
			return nil
		},
		deletable: func(ctx context.Context, q querier, u *domain.User) error {
			n, err := s.count(ctx, q, "SELECT COUNT(*) FROM orders WHERE customer_id = ?", u.ID.String())
			if err != nil {
				return fmt.Errorf("failed to check user references: %w", err)
			}
			if n > 0 {
				return domain.NewReferentialConflict("user", u.ID, fmt.Sprintf("referenced by %d orders", n))
			}
			return nil
		},
	}}

	s.orders = &sqlRepo[domain.Order, *domain.Order, OrderFilter]{
		s:       s,
		name:    "order",
		table:   "orders",
		columns: []string{"customer_id", "items", "status", "claim_id"},
		fields: func(o *domain.Order) []interface{} {
			return []interface{}{&o.CustomerID, jsonColumn{&o.Items}, &o.Status, &o.ClaimID}
		},
		values: func(o *domain.Order) ([]interface{}, error) {
			items, err := jsonValue(o.Items)
			if err != nil {
				return nil, err
			}
			return []interface{}{o.CustomerID.String(), items, string(o.Status), optionalID(o.ClaimID)}, nil
		},
		where:  OrderFilter.where,
		sortOf: func(f OrderFilter) Sort { return f.Sort },
		prepare: func(ctx context.Context, q querier, before, after *domain.Order) error {
			if before != nil {
				return domain.CheckOrderChange(before, after)
			}
			n, err := s.count(ctx, q, "SELECT COUNT(*) FROM users WHERE id = ?", after.CustomerID.String())
			if err != nil {
				return fmt.Errorf("failed to check customer: %w", err)
			}
			if n == 0 {
				return domain.NewNotFound("user", after.CustomerID)
			}
			return nil
		},
		deletable: func(_ context.Context, _ querier, o *domain.Order) error {
			if o.Status == domain.StatusPending {
				return domain.NewReferentialConflict("order", o.ID, "order is pending and holds reservations")
			}
			return nil
		},
	}

	s.audit = &sqlRepo[domain.AuditEntry, *domain.AuditEntry, AuditFilter]{
		s:       s,
		name:    "audit entry",
		table:   "ledger_audit",
		columns: []string{"order_id", "claim_id", "operation", "target_status", "applied", "remaining", "shortfall",
			"cause", "state", "resolution", "attempts", "lease_id"},
		fields: func(e *domain.AuditEntry) []interface{} {
			return []interface{}{&e.OrderID, &e.ClaimID, &e.Operation, &e.TargetStatus, jsonColumn{&e.Applied}, jsonColumn{&e.Remaining},
				jsonColumn{&e.Shortfall}, &e.Cause, &e.State, &e.Resolution, &e.Attempts, &e.LeaseID}
		},
		values: func(e *domain.AuditEntry) ([]interface{}, error) {
			applied, err := jsonValue(e.Applied)
			if err != nil {
				return nil, err
			}
			remaining, err := jsonValue(e.Remaining)
			if err != nil {
				return nil, err
			}
			shortfall, err := jsonValue(e.Shortfall)
			if err != nil {
				return nil, err
			}
			return []interface{}{e.OrderID.String(), optionalID(e.ClaimID), string(e.Operation), string(e.TargetStatus), applied, remaining,
				shortfall, e.Cause, string(e.State), e.Resolution, e.Attempts, optionalID(e.LeaseID)}, nil
		},
		where:  AuditFilter.where,
		sortOf: func(f AuditFilter) Sort { return f.Sort },
	}
}
