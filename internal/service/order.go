package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-marketplace-backoffice/internal/events"
	"github.com/flicky/go-marketplace-backoffice/internal/model"
	"github.com/flicky/go-marketplace-backoffice/internal/repository"
)

// OrderService is the order ledger. An order row and its stock decrement are
// always written in the same transaction.
type OrderService struct {
	tx        repository.Transactor
	orderRepo repository.OrderRepository
	catalog   *ProductService
	carts     repository.CartStore
	publisher events.Publisher
	log       *slog.Logger
}

func NewOrderService(
	tx repository.Transactor,
	orderRepo repository.OrderRepository,
	catalog *ProductService,
	carts repository.CartStore,
	publisher events.Publisher,
	log *slog.Logger,
) *OrderService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &OrderService{
		tx:        tx,
		orderRepo: orderRepo,
		catalog:   catalog,
		carts:     carts,
		publisher: publisher,
		log:       log,
	}
}

func (s *OrderService) PlaceOrder(ctx context.Context, actor model.Actor, productID uuid.UUID, qty int) (*model.Order, error) {
	if err := requireRole(actor, model.RoleBuyer); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, validationErr("quantity must be positive")
	}

	var order *model.Order
	err := withTx(ctx, s.tx, func(tx pgx.Tx) error {
		var err error
		order, err = s.placeInTx(ctx, tx, actor.UserID, productID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterPlaced(ctx, order)
	return order, nil
}

// Checkout turns every cart line into an order, all or nothing. Lines are
// locked in product id order so two checkouts cannot deadlock each other.
func (s *OrderService) Checkout(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	if err := requireBuyerSession(actor); err != nil {
		return nil, err
	}
	cart, err := s.carts.Get(ctx, actor.SessionID)
	if err != nil {
		return nil, storageErr("read cart", err)
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	productIDs := make([]uuid.UUID, 0, len(cart.Items))
	for id := range cart.Items {
		productIDs = append(productIDs, id)
	}
	sort.Slice(productIDs, func(i, j int) bool {
		return bytes.Compare(productIDs[i][:], productIDs[j][:]) < 0
	})

	orders := make([]model.Order, 0, len(productIDs))
	err = withTx(ctx, s.tx, func(tx pgx.Tx) error {
		for _, pid := range productIDs {
			order, err := s.placeInTx(ctx, tx, actor.UserID, pid, cart.Items[pid])
			if err != nil {
				return fmt.Errorf("checkout line %s: %w", pid, err)
			}
			orders = append(orders, *order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, actor.SessionID); err != nil {
		s.log.Error("clear cart after checkout", "session_id", actor.SessionID, "error", err)
	}
	for i := range orders {
		s.afterPlaced(ctx, &orders[i])
	}
	return orders, nil
}

func (s *OrderService) placeInTx(ctx context.Context, tx pgx.Tx, buyerID, productID uuid.UUID, qty int) (*model.Order, error) {
	if qty <= 0 {
		return nil, validationErr("quantity must be positive")
	}
	product, err := s.catalog.productRepo.GetForUpdate(ctx, tx, productID)
	if err != nil {
		return nil, storageErr("lock product", err)
	}
	if product == nil || product.Deleted() {
		return nil, ErrProductNotFound
	}
	if qty > product.Quantity {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, qty, product.Quantity)
	}

	order := &model.Order{
		BuyerID:    buyerID,
		ProductID:  productID,
		Quantity:   qty,
		TotalPrice: product.Price.Mul(decimal.NewFromInt(int64(qty))),
		Status:     model.OrderStatusPending,
		SupplierID: product.SupplierID,
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, storageErr("create order", err)
	}
	if err := s.catalog.DecrementStock(ctx, tx, productID, qty); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatus moves an order along the lifecycle. Cancelling returns the
// ordered units to stock in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, actor model.Actor, orderID uuid.UUID, rawStatus string) (*model.Order, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleSupplier); err != nil {
		return nil, err
	}
	next, ok := model.ParseOrderStatus(rawStatus)
	if !ok {
		return nil, validationErr(fmt.Sprintf("unknown order status %q", rawStatus))
	}

	var (
		order    *model.Order
		previous model.OrderStatus
	)
	err := withTx(ctx, s.tx, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return storageErr("lock order", err)
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if !actor.IsAdmin() {
			if order.SupplierID == uuid.Nil {
				return fmt.Errorf("%w: product no longer exists, admin only", ErrAuthorization)
			}
			if err := requireOwnerOrAdmin(actor, order.SupplierID); err != nil {
				return err
			}
		}
		if order.Status.Terminal() {
			return fmt.Errorf("%w: order is %s and can no longer change", ErrInvalidTransition, order.Status)
		}
		if !model.CanTransition(order.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
		}

		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, next); err != nil {
			return storageErr("update order status", err)
		}
		if next == model.OrderStatusCancelled {
			restocked, err := s.catalog.Restock(ctx, tx, order.ProductID, order.Quantity)
			if err != nil {
				return err
			}
			if !restocked {
				s.log.Warn("cancelled order product is gone, restock skipped",
					"order_id", orderID, "product_id", order.ProductID, "quantity", order.Quantity)
			}
		}
		previous = order.Status
		order.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next == model.OrderStatusCancelled {
		s.catalog.invalidateCache(ctx, order.ProductID)
	}
	s.log.Info("order status changed", "order_id", orderID, "from", previous, "to", next, "actor_id", actor.UserID)
	s.publish(ctx, events.OrderStatusChanged(order, previous))
	return order, nil
}

// GetByID returns an order its buyer, its product's supplier or an admin may see.
func (s *OrderService) GetByID(ctx context.Context, actor model.Actor, orderID uuid.UUID) (*model.Order, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleSupplier, model.RoleBuyer); err != nil {
		return nil, err
	}
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	switch actor.Role {
	case model.RoleAdmin:
		return order, nil
	case model.RoleSupplier:
		if order.SupplierID != uuid.Nil && order.SupplierID == actor.UserID {
			return order, nil
		}
	case model.RoleBuyer:
		if order.BuyerID == actor.UserID {
			return order, nil
		}
	}
	return nil, fmt.Errorf("%w: order belongs to someone else", ErrAuthorization)
}

func (s *OrderService) List(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	if err := requireRole(actor, model.RoleAdmin, model.RoleSupplier, model.RoleBuyer); err != nil {
		return nil, err
	}

	var (
		orders []model.Order
		err    error
	)
	switch actor.Role {
	case model.RoleAdmin:
		orders, err = s.orderRepo.ListAll(ctx)
	case model.RoleSupplier:
		orders, err = s.orderRepo.ListBySupplier(ctx, actor.UserID)
	default:
		orders, err = s.orderRepo.ListByBuyer(ctx, actor.UserID)
	}
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) afterPlaced(ctx context.Context, order *model.Order) {
	s.catalog.invalidateCache(ctx, order.ProductID)
	s.log.Info("order placed",
		"order_id", order.ID, "product_id", order.ProductID, "buyer_id", order.BuyerID, "quantity", order.Quantity)
	s.publish(ctx, events.OrderPlaced(order))
}

// publish runs after commit, so failures are only logged.
func (s *OrderService) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Error("publish event", "type", ev.Type, "order_id", ev.OrderID, "error", err)
	}
}
