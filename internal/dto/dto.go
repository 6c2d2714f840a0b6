package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-marketplace-backoffice/internal/model"
)

// --- Product ---

// CreateProductRequest is bound from multipart form fields. Price is kept as
// text so malformed input surfaces as a validation error, not a bind error.
type CreateProductRequest struct {
	SupplierID  string `form:"supplier_id"`
	Name        string `form:"name"`
	Description string `form:"description"`
	Price       string `form:"price"`
	Quantity    int    `form:"quantity"`
}

// UpdateProductRequest is partial: nil fields keep their stored value.
type UpdateProductRequest struct {
	Name        *string `form:"name"`
	Description *string `form:"description"`
	Price       *string `form:"price"`
	Quantity    *int    `form:"quantity"`
}

type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	SupplierID  uuid.UUID       `json:"supplier_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImagePath   string          `json:"image_path,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity"`
}

type CartActionResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Quantity int    `json:"quantity,omitempty"`
}

type CartResponse struct {
	SessionID string             `json:"session_id"`
	Items     []CartItemResponse `json:"items"`
}

type CartItemResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// --- Order ---

type PlaceOrderRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OrderResponse struct {
	ID         uuid.UUID         `json:"id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	ProductID  uuid.UUID         `json:"product_id"`
	Quantity   int               `json:"quantity"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	Status     model.OrderStatus `json:"status"`
	OrderDate  time.Time         `json:"order_date"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

func ToProductResponse(p *model.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		SupplierID:  p.SupplierID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Quantity:    p.Quantity,
		ImagePath:   p.ImagePath,
		CreatedAt:   p.CreatedAt,
		DeletedAt:   p.DeletedAt,
	}
}

func ToOrderResponse(o *model.Order) OrderResponse {
	return OrderResponse{
		ID:         o.ID,
		BuyerID:    o.BuyerID,
		ProductID:  o.ProductID,
		Quantity:   o.Quantity,
		TotalPrice: o.TotalPrice,
		Status:     o.Status,
		OrderDate:  o.OrderDate,
		UpdatedAt:  o.UpdatedAt,
	}
}
