package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/go-marketplace-backoffice/internal/model"
	"github.com/flicky/go-marketplace-backoffice/internal/repository"
)

var ErrNoSession = fmt.Errorf("%w: no cart session", ErrAuthorization)

// CartService keeps a buyer's advisory cart. Quantities are clamped to the
// stock seen at add time and are never reserved.
type CartService struct {
	store       repository.CartStore
	productRepo repository.ProductRepository
}

func NewCartService(store repository.CartStore, productRepo repository.ProductRepository) *CartService {
	return &CartService{store: store, productRepo: productRepo}
}

// AddItem adds qty units and returns the quantity now held in the cart. The
// flag is set when stock ran short and the merged quantity was capped.
func (s *CartService) AddItem(ctx context.Context, actor model.Actor, productID uuid.UUID, qty int) (int, bool, error) {
	if err := requireBuyerSession(actor); err != nil {
		return 0, false, err
	}
	if qty <= 0 {
		return 0, false, validationErr("quantity must be positive")
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return 0, false, storageErr("get product", err)
	}
	if product == nil || product.Deleted() {
		return 0, false, ErrProductNotFound
	}
	if product.Quantity == 0 {
		return 0, false, fmt.Errorf("%w: product %s is out of stock", ErrInsufficientStock, productID)
	}

	next, clamped, err := s.store.AddItem(ctx, actor.SessionID, productID, qty, product.Quantity)
	if err != nil {
		return 0, false, storageErr("write cart", err)
	}
	return next, clamped, nil
}

func (s *CartService) GetItems(ctx context.Context, actor model.Actor) (*model.Cart, error) {
	if err := requireBuyerSession(actor); err != nil {
		return nil, err
	}
	cart, err := s.store.Get(ctx, actor.SessionID)
	if err != nil {
		return nil, storageErr("read cart", err)
	}
	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, actor model.Actor, productID uuid.UUID) error {
	if err := requireBuyerSession(actor); err != nil {
		return err
	}
	if err := s.store.RemoveItem(ctx, actor.SessionID, productID); err != nil {
		return storageErr("write cart", err)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, actor model.Actor) error {
	if err := requireBuyerSession(actor); err != nil {
		return err
	}
	if err := s.store.Clear(ctx, actor.SessionID); err != nil {
		return storageErr("clear cart", err)
	}
	return nil
}

func requireBuyerSession(actor model.Actor) error {
	if err := requireRole(actor, model.RoleBuyer); err != nil {
		return err
	}
	if actor.SessionID == "" {
		return ErrNoSession
	}
	return nil
}
