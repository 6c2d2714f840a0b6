package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-marketplace-backoffice/internal/dto"
	"github.com/flicky/go-marketplace-backoffice/internal/model"
	"github.com/flicky/go-marketplace-backoffice/internal/repository"
	"github.com/flicky/go-marketplace-backoffice/internal/storage"
)

func ProductCacheKey(id uuid.UUID) string { return "product:" + id.String() }

// ProductService is the product catalog: product records, stock and the
// active / soft-deleted / hard-deleted lifecycle.
type ProductService struct {
	tx          repository.Transactor
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	userRepo    repository.UserRepository
	images      storage.ImageStore
	redisClient *redis.Client
	cacheTTL    time.Duration
	log         *slog.Logger
}

func NewProductService(
	tx repository.Transactor,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	images storage.ImageStore,
	redisClient *redis.Client,
	cacheTTL time.Duration,
	log *slog.Logger,
) *ProductService {
	return &ProductService{
		tx:          tx,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		userRepo:    userRepo,
		images:      images,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		log:         log,
	}
}

// Create adds a product. A non-nil image, even an empty one, counts as an
// upload and must pass the image checks.
func (s *ProductService) Create(ctx context.Context, actor model.Actor, req dto.CreateProductRequest, image []byte) (*dto.ProductResponse, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleSupplier); err != nil {
		return nil, err
	}
	supplierID, err := s.resolveSupplier(ctx, actor, req.SupplierID)
	if err != nil {
		return nil, err
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, err
	}
	product := &model.Product{
		SupplierID:  supplierID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Price:       price,
		Quantity:    req.Quantity,
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if image != nil {
		if product.ImagePath, err = s.storeImage(image); err != nil {
			return nil, err
		}
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		s.removeImage(product.ImagePath)
		return nil, storageErr("create product", err)
	}

	s.log.Info("product created", "product_id", product.ID, "supplier_id", supplierID)
	resp := dto.ToProductResponse(product)
	return &resp, nil
}

func (s *ProductService) resolveSupplier(ctx context.Context, actor model.Actor, requested string) (uuid.UUID, error) {
	if actor.Role == model.RoleSupplier {
		if requested != "" && requested != actor.UserID.String() {
			return uuid.Nil, fmt.Errorf("%w: suppliers can only create their own products", ErrAuthorization)
		}
		return actor.UserID, nil
	}

	id, err := uuid.Parse(requested)
	if err != nil {
		return uuid.Nil, validationErr("supplier_id is required")
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, storageErr("get supplier", err)
	}
	if user == nil || user.Role != model.RoleSupplier {
		return uuid.Nil, validationErr("supplier_id does not name a supplier")
	}
	return id, nil
}

// GetByID resolves soft-deleted products too, for historical order display.
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	cacheKey := ProductCacheKey(id)

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var resp dto.ProductResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get product", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := dto.ToProductResponse(product)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, s.cacheTTL)
		}
	}
	return &resp, nil
}

func (s *ProductService) ListActive(ctx context.Context) (*dto.ProductListResponse, error) {
	products, err := s.productRepo.ListActive(ctx)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	return toProductList(products), nil
}

// ListDeleted lists soft-deleted products: all for an admin, own for a supplier.
func (s *ProductService) ListDeleted(ctx context.Context, actor model.Actor) (*dto.ProductListResponse, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleSupplier); err != nil {
		return nil, err
	}
	scope := actor.UserID
	if actor.IsAdmin() {
		scope = uuid.Nil
	}
	products, err := s.productRepo.ListDeleted(ctx, scope)
	if err != nil {
		return nil, storageErr("list deleted products", err)
	}
	return toProductList(products), nil
}

// Update applies a partial change under a row lock. A replacement image is
// written first and the previous file is removed only once the row commits.
func (s *ProductService) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req dto.UpdateProductRequest, image []byte) (*dto.ProductResponse, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleSupplier); err != nil {
		return nil, err
	}

	var (
		updated  *model.Product
		oldImage string
		newImage string
	)
	err := withTx(ctx, s.tx, func(tx pgx.Tx) error {
		product, err := s.productRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return storageErr("lock product", err)
		}
		if product == nil || product.Deleted() {
			return ErrProductNotFound
		}
		if err := requireOwnerOrAdmin(actor, product.SupplierID); err != nil {
			return err
		}
		if err := applyPatch(product, req); err != nil {
			return err
		}

		if image != nil {
			path, err := s.storeImage(image)
			if err != nil {
				return err
			}
			newImage, oldImage = path, product.ImagePath
			product.ImagePath = path
		}

		if err := s.productRepo.Update(ctx, tx, product); err != nil {
			return storageErr("update product", err)
		}
		updated = product
		return nil
	})
	if err != nil {
		s.removeImage(newImage)
		return nil, err
	}

	if newImage != "" {
		s.removeImage(oldImage)
	}
	s.invalidateCache(ctx, id)
	resp := dto.ToProductResponse(updated)
	return &resp, nil
}

// SoftDelete hides the product from active listings. Repeating it refreshes
// the deletion timestamp.
func (s *ProductService) SoftDelete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if err := s.authorizeOwner(ctx, actor, id); err != nil {
		return err
	}
	found, err := s.productRepo.SoftDelete(ctx, id)
	if err != nil {
		return storageErr("soft delete product", err)
	}
	if !found {
		return ErrProductNotFound
	}
	s.invalidateCache(ctx, id)
	s.log.Info("product soft-deleted", "product_id", id, "actor_id", actor.UserID)
	return nil
}

func (s *ProductService) Restore(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if err := s.authorizeOwner(ctx, actor, id); err != nil {
		return err
	}
	found, err := s.productRepo.Restore(ctx, id)
	if err != nil {
		return storageErr("restore product", err)
	}
	if !found {
		return ErrProductNotFound
	}
	s.invalidateCache(ctx, id)
	s.log.Info("product restored", "product_id", id, "actor_id", actor.UserID)
	return nil
}

// HardDelete removes the row and its image for good. Orders that reference
// the product are kept and become orphaned.
func (s *ProductService) HardDelete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return err
	}
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return storageErr("get product", err)
	}
	if product == nil {
		return ErrProductNotFound
	}

	refs, err := s.orderRepo.CountByProduct(ctx, id)
	if err != nil {
		s.log.Error("count orders for product", "product_id", id, "error", err)
	}

	found, err := s.productRepo.HardDelete(ctx, id)
	if err != nil {
		return storageErr("delete product", err)
	}
	if !found {
		return ErrProductNotFound
	}

	s.removeImage(product.ImagePath)
	s.invalidateCache(ctx, id)
	if refs > 0 {
		s.log.Warn("hard-deleted product still referenced by orders", "product_id", id, "orders", refs)
	}
	s.log.Info("product hard-deleted", "product_id", id, "actor_id", actor.UserID)
	return nil
}

// DecrementStock takes qty units from an active product inside tx. It never
// reads before writing: the guard lives in the UPDATE itself.
func (s *ProductService) DecrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return validationErr("quantity must be positive")
	}
	ok, err := s.productRepo.DecrementStock(ctx, tx, productID, qty)
	if err != nil {
		return storageErr("decrement stock", err)
	}
	if !ok {
		return fmt.Errorf("%w: product %s cannot supply %d", ErrInsufficientStock, productID, qty)
	}
	return nil
}

// Restock returns qty units inside tx. It reports false when the product row
// no longer exists.
func (s *ProductService) Restock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, qty int) (bool, error) {
	ok, err := s.productRepo.IncrementStock(ctx, tx, productID, qty)
	if err != nil {
		return false, storageErr("restock", err)
	}
	return ok, nil
}

func (s *ProductService) authorizeOwner(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if err := requireRole(actor, model.RoleAdmin, model.RoleSupplier); err != nil {
		return err
	}
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return storageErr("get product", err)
	}
	if product == nil {
		return ErrProductNotFound
	}
	return requireOwnerOrAdmin(actor, product.SupplierID)
}

func (s *ProductService) storeImage(data []byte) (string, error) {
	path, err := s.images.Store(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return path, nil
}

func (s *ProductService) removeImage(path string) {
	if path == "" {
		return
	}
	if err := s.images.Delete(path); err != nil {
		s.log.Error("remove product image", "path", path, "error", err)
	}
}

func (s *ProductService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redisClient != nil {
		s.redisClient.Del(ctx, ProductCacheKey(id))
	}
}

func applyPatch(p *model.Product, req dto.UpdateProductRequest) error {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			return err
		}
		p.Price = price
	}
	if req.Quantity != nil {
		p.Quantity = *req.Quantity
	}
	return validateProduct(p)
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, validationErr("price must be a decimal number")
	}
	return price, nil
}

func validateProduct(p *model.Product) error {
	switch {
	case p.Name == "":
		return validationErr("name is required")
	case !p.Price.IsPositive():
		return validationErr("price must be greater than zero")
	case !p.Price.Equal(p.Price.Round(2)):
		return validationErr("price has more than two decimal places")
	case p.Quantity < 0:
		return validationErr("quantity cannot be negative")
	}
	return nil
}

func toProductList(products []model.Product) *dto.ProductListResponse {
	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, dto.ToProductResponse(&products[i]))
	}
	return &dto.ProductListResponse{Products: items, Total: len(items)}
}
