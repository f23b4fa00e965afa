package handlers

import (
	"inventory-service/internal/domain"

	"github.com/google/uuid"
)

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message" example:"product deleted successfully"`
}

// ProductRequest is the body of POST /products and PUT /products/:id.
// Stock is only read on create.
type ProductRequest struct {
	Name        string     `json:"name" binding:"required" example:"Claw hammer"`
	Description string     `json:"description" example:"16oz steel claw hammer"`
	PriceCents  int64      `json:"price_cents" binding:"min=0" example:"1299"`
	Stock       int        `json:"stock" binding:"min=0" example:"25"`
	CategoryID  *uuid.UUID `json:"category_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	SupplierID  *uuid.UUID `json:"supplier_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	// Version of the product being updated; required on PUT
	Version int `json:"version" example:"3"`
}

type BulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

// AdjustStockRequest restocks (positive) or writes off (negative) units.
type AdjustStockRequest struct {
	Delta int `json:"delta" binding:"required" example:"10"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1" example:"2"`
	// Expected product version; reserve only
	Version int `json:"version" example:"3"`
}

type ReleaseResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Released  int       `json:"released" example:"2"`
}

type CategoryRequest struct {
	Name        string `json:"name" binding:"required" example:"Hand tools"`
	Description string `json:"description" example:"Hammers, screwdrivers and pliers"`
	Version     int    `json:"version" example:"1"`
}

type SupplierRequest struct {
	Name          string           `json:"name" binding:"required" example:"Acme Tools"`
	ContactPerson string           `json:"contact_person" example:"Wile E. Coyote"`
	Email         string           `json:"email" example:"sales@acme.example"`
	Phone         string           `json:"phone" example:"+1 555 0100"`
	Address       string           `json:"address" example:"1 Desert Rd"`
	Location      *domain.GeoPoint `json:"location"`
	Version       int              `json:"version" example:"1"`
}

type OrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1" example:"2"`
}

type PlaceOrderRequest struct {
	// Customer to place the order for; admins only, defaults to the caller
	CustomerID *uuid.UUID         `json:"customer_id"`
	Items      []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// VersionRequest carries the expected version of the order being finished.
type VersionRequest struct {
	Version int `json:"version" binding:"required,min=1" example:"1"`
}

// OrderResponse is an order with its computed total.
type OrderResponse struct {
	*domain.Order
	TotalCents int64 `json:"total_cents" example:"2598"`
}

type CreateUserRequest struct {
	Name     string      `json:"name" binding:"required" example:"Grace Hopper"`
	Email    string      `json:"email" binding:"required" example:"grace@example.com"`
	Password string      `json:"password" binding:"required" example:"secret123"`
	Address  string      `json:"address" example:"1 Navy Way"`
	Role     domain.Role `json:"role" example:"admin"`
}

// UpdateUserRequest changes only the fields present in the body.
type UpdateUserRequest struct {
	Name     *string      `json:"name" example:"Ada Lovelace"`
	Email    *string      `json:"email" example:"ada@example.com"`
	Address  *string      `json:"address" example:"12 Analytical St"`
	Password *string      `json:"password" example:"new-secret"`
	Role     *domain.Role `json:"role" example:"customer"`
	Version  int          `json:"version" binding:"required,min=1" example:"1"`
}

type DeleteUserResponse struct {
	ID         uuid.UUID `json:"id"`
	Anonymized bool      `json:"anonymized"`
}
