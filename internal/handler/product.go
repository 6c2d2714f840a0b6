package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/go-marketplace-backoffice/internal/dto"
	"github.com/flicky/go-marketplace-backoffice/internal/middleware"
	"github.com/flicky/go-marketplace-backoffice/internal/service"
)

type ProductHandler struct {
	productService *service.ProductService
	maxUpload      int64
}

func NewProductHandler(productService *service.ProductService, maxUpload int64) *ProductHandler {
	return &ProductHandler{productService: productService, maxUpload: maxUpload}
}

func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	image, err := h.readImage(c)
	if err != nil {
		writeError(c, err)
		return
	}

	resp, err := h.productService.Create(c.Request.Context(), middleware.GetActor(c), req, image)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *ProductHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	resp, err := h.productService.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) List(c *gin.Context) {
	resp, err := h.productService.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) ListDeleted(c *gin.Context) {
	resp, err := h.productService.ListDeleted(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateProductRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	image, err := h.readImage(c)
	if err != nil {
		writeError(c, err)
		return
	}

	resp, err := h.productService.Update(c.Request.Context(), middleware.GetActor(c), id, req, image)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) SoftDelete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.productService.SoftDelete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ProductHandler) Restore(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.productService.Restore(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ProductHandler) HardDelete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.productService.HardDelete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// readImage returns nil when the form carries no image part. An oversized
// part is refused before it is read into memory.
func (h *ProductHandler) readImage(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", service.ErrUpload, err)
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", service.ErrUpload, h.maxUpload)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrUpload, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrUpload, err)
	}
	return data, nil
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}
