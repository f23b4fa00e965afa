package projection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"inventory-service/internal/domain"
	"inventory-service/internal/store"

	"github.com/google/uuid"
)

// DefaultMapCenter is used when no supplier has a location.
var DefaultMapCenter = domain.GeoPoint{Lat: 33.0354, Lng: 73.7239}

const unknownName = "Unknown"

// Views computes read-only projections from store snapshots. Nothing is
// cached; every call reflects the store as of that call.
type Views struct {
	store             store.Store
	lowStockThreshold int
}

func New(s store.Store, lowStockThreshold int) *Views {
	if lowStockThreshold <= 0 {
		lowStockThreshold = 5
	}
	return &Views{store: s, lowStockThreshold: lowStockThreshold}
}

// LowStock returns products with 0 < stock < threshold, lowest stock first.
// A threshold <= 0 uses the configured default.
func (v *Views) LowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	if threshold <= 0 {
		threshold = v.lowStockThreshold
	}
	products, err := v.store.Products().List(ctx, store.ProductFilter{Sort: store.Sort{Field: store.SortByStock}})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Product, 0)
	for _, p := range products {
		if p.Stock > 0 && p.Stock < threshold {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *Views) OutOfStock(ctx context.Context) ([]*domain.Product, error) {
	products, err := v.store.Products().List(ctx, store.ProductFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Product, 0)
	for _, p := range products {
		if p.Stock == 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// OrderTotal is the sum of quantity x unit price over the order's items.
func OrderTotal(o *domain.Order) int64 {
	return o.TotalCents()
}

// OrdersForCustomer returns the customer's orders, newest first.
func (v *Views) OrdersForCustomer(ctx context.Context, customerID uuid.UUID) ([]*domain.Order, error) {
	return v.orders(ctx, store.OrderFilter{CustomerID: &customerID})
}

// OrdersByStatus returns orders in status, newest first.
func (v *Views) OrdersByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.NewInvalidArgument("unknown order status %q", status)
	}
	return v.orders(ctx, store.OrderFilter{Status: status})
}

// AllOrders returns every order, newest first.
func (v *Views) AllOrders(ctx context.Context) ([]*domain.Order, error) {
	return v.orders(ctx, store.OrderFilter{})
}

func (v *Views) orders(ctx context.Context, filter store.OrderFilter) ([]*domain.Order, error) {
	orders, err := v.store.Orders().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if orders == nil {
		orders = make([]*domain.Order, 0)
	}
	return orders, nil
}

func (v *Views) ProductsByCategory(ctx context.Context, categoryID uuid.UUID) ([]*domain.Product, error) {
	products, err := v.store.Products().List(ctx, store.ProductFilter{CategoryID: &categoryID})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = make([]*domain.Product, 0)
	}
	return products, nil
}

// EnrichedProduct is a product joined with its category and supplier names.
type EnrichedProduct struct {
	*domain.Product
	CategoryName string `json:"category_name"`
	SupplierName string `json:"supplier_name"`
	Available    int    `json:"available"`
	LowStock     bool   `json:"low_stock"`
	OutOfStock   bool   `json:"out_of_stock"`
}

// EnrichedProducts lists products, optionally of one category, with names
// resolved. Dangling or missing references read as "Unknown".
func (v *Views) EnrichedProducts(ctx context.Context, categoryID *uuid.UUID) ([]EnrichedProduct, error) {
	products, err := v.store.Products().List(ctx, store.ProductFilter{CategoryID: categoryID})
	if err != nil {
		return nil, err
	}
	categories, err := v.store.Categories().List(ctx, store.CategoryFilter{})
	if err != nil {
		return nil, err
	}
	suppliers, err := v.store.Suppliers().List(ctx, store.SupplierFilter{})
	if err != nil {
		return nil, err
	}

	categoryNames := make(map[uuid.UUID]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Name
	}
	supplierNames := make(map[uuid.UUID]string, len(suppliers))
	for _, s := range suppliers {
		supplierNames[s.ID] = s.Name
	}

	out := make([]EnrichedProduct, 0, len(products))
	for _, p := range products {
		out = append(out, EnrichedProduct{
			Product:      p,
			CategoryName: lookup(categoryNames, p.CategoryID),
			SupplierName: lookup(supplierNames, p.SupplierID),
			Available:    p.Available(),
			LowStock:     p.Stock > 0 && p.Stock < v.lowStockThreshold,
			OutOfStock:   p.Stock == 0,
		})
	}
	return out, nil
}

func lookup(names map[uuid.UUID]string, id *uuid.UUID) string {
	if id == nil {
		return unknownName
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return unknownName
}

// SearchUsers matches query case-insensitively against name or email. An
// empty query matches everyone; an empty role matches every role.
func (v *Views) SearchUsers(ctx context.Context, query string, role domain.Role) ([]*domain.User, error) {
	users, err := v.store.Users().List(ctx, store.UserFilter{Role: role, Sort: store.Sort{Field: store.SortByName}})
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]*domain.User, 0, len(users))
	for _, u := range users {
		if q == "" || strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (v *Views) SuppliersByName(ctx context.Context) ([]*domain.Supplier, error) {
	suppliers, err := v.store.Suppliers().List(ctx, store.SupplierFilter{Sort: store.Sort{Field: store.SortByName}})
	if err != nil {
		return nil, err
	}
	if suppliers == nil {
		suppliers = make([]*domain.Supplier, 0)
	}
	return suppliers, nil
}

// MapCenter is the mean position of the located suppliers.
func MapCenter(suppliers []*domain.Supplier) domain.GeoPoint {
	var lat, lng float64
	n := 0
	for _, s := range suppliers {
		if s.Location == nil {
			continue
		}
		lat += s.Location.Lat
		lng += s.Location.Lng
		n++
	}
	if n == 0 {
		return DefaultMapCenter
	}
	return domain.GeoPoint{Lat: lat / float64(n), Lng: lng / float64(n)}
}

type SupplierMarker struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Address  string          `json:"address"`
	Location domain.GeoPoint `json:"location"`
}

type SupplierMap struct {
	Center  domain.GeoPoint  `json:"center"`
	Markers []SupplierMarker `json:"markers"`
}

// SuppliersMap returns a marker per located supplier and the map center.
func (v *Views) SuppliersMap(ctx context.Context) (*SupplierMap, error) {
	suppliers, err := v.SuppliersByName(ctx)
	if err != nil {
		return nil, err
	}
	m := &SupplierMap{Center: MapCenter(suppliers), Markers: make([]SupplierMarker, 0, len(suppliers))}
	for _, s := range suppliers {
		if s.Location == nil {
			continue
		}
		m.Markers = append(m.Markers, SupplierMarker{ID: s.ID, Name: s.Name, Address: s.Address, Location: *s.Location})
	}
	return m, nil
}

type DashboardStats struct {
	TotalProducts    int   `json:"total_products"`
	TotalCategories  int   `json:"total_categories"`
	TotalSuppliers   int   `json:"total_suppliers"`
	TotalCustomers   int   `json:"total_customers"`
	TotalStock       int   `json:"total_stock"`
	TotalReserved    int   `json:"total_reserved"`
	LowStock         int   `json:"low_stock"`
	OutOfStock       int   `json:"out_of_stock"`
	PendingOrders    int   `json:"pending_orders"`
	CompletedOrders  int   `json:"completed_orders"`
	CancelledOrders  int   `json:"cancelled_orders"`
	RevenueCents     int64 `json:"revenue_cents"`
	OpenAuditEntries int   `json:"open_audit_entries"`
}

// Dashboard aggregates the headline numbers of the admin dashboard.
func (v *Views) Dashboard(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats

	products, err := v.store.Products().List(ctx, store.ProductFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	stats.TotalProducts = len(products)
	for _, p := range products {
		stats.TotalStock += p.Stock
		stats.TotalReserved += p.Reserved
		switch {
		case p.Stock == 0:
			stats.OutOfStock++
		case p.Stock < v.lowStockThreshold:
			stats.LowStock++
		}
	}

	categories, err := v.store.Categories().List(ctx, store.CategoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	stats.TotalCategories = len(categories)

	suppliers, err := v.store.Suppliers().List(ctx, store.SupplierFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	stats.TotalSuppliers = len(suppliers)

	customers, err := v.store.Users().List(ctx, store.UserFilter{Role: domain.RoleCustomer})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for _, u := range customers {
		if !u.Deleted {
			stats.TotalCustomers++
		}
	}

	orders, err := v.store.Orders().List(ctx, store.OrderFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	for _, o := range orders {
		switch o.Status {
		case domain.StatusPending:
			stats.PendingOrders++
		case domain.StatusCompleted:
			stats.CompletedOrders++
			stats.RevenueCents += o.TotalCents()
		case domain.StatusCancelled:
			stats.CancelledOrders++
		}
	}

	open, err := v.store.Audit().List(ctx, store.AuditFilter{State: domain.AuditOpen})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	stats.OpenAuditEntries = len(open)

	return &stats, nil
}

// AuditEntries lists audit entries, newest first. An empty state lists all.
func (v *Views) AuditEntries(ctx context.Context, state domain.AuditState) ([]*domain.AuditEntry, error) {
	switch state {
	case "", domain.AuditOpen, domain.AuditResolved, domain.AuditManual:
	default:
		return nil, domain.NewInvalidArgument("unknown audit state %q", state)
	}
	entries, err := v.store.Audit().List(ctx, store.AuditFilter{State: state})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if entries == nil {
		entries = make([]*domain.AuditEntry, 0)
	}
	return entries, nil
}
