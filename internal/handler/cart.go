package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/flicky/go-marketplace-backoffice/internal/dto"
	"github.com/flicky/go-marketplace-backoffice/internal/middleware"
	"github.com/flicky/go-marketplace-backoffice/internal/service"
)

type CartHandler struct {
	svc *service.CartService
}

func NewCartHandler(svc *service.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.svc.GetItems(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]dto.CartItemResponse, 0, len(cart.Items))
	for pid, qty := range cart.Items {
		items = append(items, dto.CartItemResponse{ProductID: pid, Quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ProductID.String() < items[j].ProductID.String()
	})
	c.JSON(http.StatusOK, dto.CartResponse{SessionID: cart.SessionID, Items: items})
}

// AddItem answers with the quantity actually held. When the merged line had
// to be capped at available stock the message says so.
func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.CartActionResponse{Message: err.Error()})
		return
	}
	qty, clamped, err := h.svc.AddItem(c.Request.Context(), middleware.GetActor(c), req.ProductID, req.Quantity)
	if err != nil {
		writeCartError(c, err)
		return
	}

	msg := "added to cart"
	if clamped {
		msg = fmt.Sprintf("only %d available, cart quantity set to %d", qty, qty)
	}
	c.JSON(http.StatusOK, dto.CartActionResponse{Success: true, Message: msg, Quantity: qty})
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	pid, ok := parseID(c, "product_id")
	if !ok {
		return
	}
	if err := h.svc.RemoveItem(c.Request.Context(), middleware.GetActor(c), pid); err != nil {
		writeCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CartActionResponse{Success: true, Message: "removed from cart"})
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), middleware.GetActor(c)); err != nil {
		writeCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CartActionResponse{Success: true, Message: "cart cleared"})
}

func writeCartError(c *gin.Context, err error) {
	status, msg := errorMessage(c, err)
	c.JSON(status, dto.CartActionResponse{Success: false, Message: msg})
}
