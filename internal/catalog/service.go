package catalog

import (
	"context"
	"time"

	"inventory-service/internal/coordinator"
	"inventory-service/internal/domain"
	"inventory-service/internal/events"
	"inventory-service/internal/ledger"
	"inventory-service/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductInput holds the editable fields of a product. Stock is only read on
// create; afterwards it changes through the ledger.
type ProductInput struct {
	Name        string
	Description string
	PriceCents  int64
	Stock       int
	CategoryID  *uuid.UUID
	SupplierID  *uuid.UUID
}

type SupplierInput struct {
	Name          string
	ContactPerson string
	Email         string
	Phone         string
	Address       string
	Location      *domain.GeoPoint
}

// DeleteResult reports the outcome of one id of a bulk delete.
type DeleteResult struct {
	ID      uuid.UUID `json:"id"`
	Deleted bool      `json:"deleted"`
	Error   string    `json:"error,omitempty"`
}

type Service struct {
	store    store.Store
	ledger   *ledger.Ledger
	coord    *coordinator.Coordinator
	eventBus events.EventPublisher
	logger   *zap.Logger
}

func NewService(s store.Store, l *ledger.Ledger, coord *coordinator.Coordinator, eventBus events.EventPublisher, logger *zap.Logger) *Service {
	return &Service{store: s, ledger: l, coord: coord, eventBus: eventBus, logger: logger}
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	p, err := domain.NewProduct(in.Name, in.Description, in.PriceCents, in.Stock, in.CategoryID, in.SupplierID)
	if err != nil {
		return nil, err
	}
	created, err := s.store.Products().Create(ctx, p)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ProductCreatedEvent{
		ProductID:  created.ID,
		Name:       created.Name,
		PriceCents: created.PriceCents,
		Stock:      created.Stock,
		OccurredAt: created.CreatedAt,
	})
	s.logger.Info("Product created", zap.String("product_id", created.ID.String()))
	return created, nil
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.store.Products().Get(ctx, id)
}

// UpdateProduct replaces the editable fields. The caller's version must be
// current; a conflict is returned, never retried.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, expectedVersion int, in ProductInput) (*domain.Product, error) {
	var updated *domain.Product
	err := s.coord.Run(ctx, "update_product", coordinator.NonIdempotent, func(ctx context.Context) error {
		var err error
		updated, err = s.store.Products().Update(ctx, id, expectedVersion, func(p *domain.Product) error {
			p.Name = in.Name
			p.Description = in.Description
			p.PriceCents = in.PriceCents
			p.CategoryID = in.CategoryID
			p.SupplierID = in.SupplierID
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ProductUpdatedEvent{
		ProductID:  updated.ID,
		Name:       updated.Name,
		PriceCents: updated.PriceCents,
		Version:    updated.Version,
		OccurredAt: updated.UpdatedAt,
	})
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Products().Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.ProductDeletedEvent{ProductID: id, OccurredAt: time.Now().UTC()})
	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

// DeleteProducts deletes each id independently and reports per id.
func (s *Service) DeleteProducts(ctx context.Context, ids []uuid.UUID) []DeleteResult {
	results := make([]DeleteResult, 0, len(ids))
	for _, id := range ids {
		result := DeleteResult{ID: id}
		if err := s.DeleteProduct(ctx, id); err != nil {
			result.Error = err.Error()
		} else {
			result.Deleted = true
		}
		results = append(results, result)
	}
	return results
}

// AdjustStock restocks or writes off units through the ledger.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*domain.Product, error) {
	return s.ledger.Adjust(ctx, id, delta)
}

func (s *Service) CreateCategory(ctx context.Context, name, description string) (*domain.Category, error) {
	c, err := domain.NewCategory(name, description)
	if err != nil {
		return nil, err
	}
	return s.store.Categories().Create(ctx, c)
}

func (s *Service) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return s.store.Categories().Get(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.store.Categories().List(ctx, store.CategoryFilter{Sort: store.Sort{Field: store.SortByName}})
}

func (s *Service) UpdateCategory(ctx context.Context, id uuid.UUID, expectedVersion int, name, description string) (*domain.Category, error) {
	var updated *domain.Category
	err := s.coord.Run(ctx, "update_category", coordinator.NonIdempotent, func(ctx context.Context) error {
		var err error
		updated, err = s.store.Categories().Update(ctx, id, expectedVersion, func(c *domain.Category) error {
			c.Name = name
			c.Description = description
			return nil
		})
		return err
	})
	return updated, err
}

func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return s.store.Categories().Delete(ctx, id)
}

func (s *Service) CreateSupplier(ctx context.Context, in SupplierInput) (*domain.Supplier, error) {
	sp, err := domain.NewSupplier(in.Name, in.ContactPerson, in.Email, in.Phone, in.Address, in.Location)
	if err != nil {
		return nil, err
	}
	return s.store.Suppliers().Create(ctx, sp)
}

func (s *Service) GetSupplier(ctx context.Context, id uuid.UUID) (*domain.Supplier, error) {
	return s.store.Suppliers().Get(ctx, id)
}

func (s *Service) UpdateSupplier(ctx context.Context, id uuid.UUID, expectedVersion int, in SupplierInput) (*domain.Supplier, error) {
	var updated *domain.Supplier
	err := s.coord.Run(ctx, "update_supplier", coordinator.NonIdempotent, func(ctx context.Context) error {
		var err error
		updated, err = s.store.Suppliers().Update(ctx, id, expectedVersion, func(sp *domain.Supplier) error {
			sp.Name = in.Name
			sp.ContactPerson = in.ContactPerson
			sp.Email = in.Email
			sp.Phone = in.Phone
			sp.Address = in.Address
			sp.Location = in.Location
			return nil
		})
		return err
	})
	return updated, err
}

func (s *Service) DeleteSupplier(ctx context.Context, id uuid.UUID) error {
	return s.store.Suppliers().Delete(ctx, id)
}

func (s *Service) publish(ctx context.Context, event interface{}) {
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("event-type", events.EventType(event)),
			zap.Error(err),
		)
	}
}
