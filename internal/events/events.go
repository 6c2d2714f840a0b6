package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/go-marketplace-backoffice/internal/model"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
)

type Event struct {
	ID             uuid.UUID         `json:"id"`
	Type           string            `json:"type"`
	OccurredAt     time.Time         `json:"occurred_at"`
	OrderID        uuid.UUID         `json:"order_id"`
	ProductID      uuid.UUID         `json:"product_id"`
	BuyerID        uuid.UUID         `json:"buyer_id"`
	Quantity       int               `json:"quantity"`
	Status         model.OrderStatus `json:"status"`
	PreviousStatus model.OrderStatus `json:"previous_status,omitempty"`
}

// ChangesStock reports whether the event moved product quantity.
func (e Event) ChangesStock() bool {
	switch e.Type {
	case TypeOrderPlaced:
		return true
	case TypeOrderStatusChanged:
		return e.Status == model.OrderStatusCancelled
	}
	return false
}

func OrderPlaced(o *model.Order) Event {
	return Event{
		ID:         uuid.New(),
		Type:       TypeOrderPlaced,
		OccurredAt: time.Now().UTC(),
		OrderID:    o.ID,
		ProductID:  o.ProductID,
		BuyerID:    o.BuyerID,
		Quantity:   o.Quantity,
		Status:     o.Status,
	}
}

func OrderStatusChanged(o *model.Order, previous model.OrderStatus) Event {
	ev := OrderPlaced(o)
	ev.Type = TypeOrderStatusChanged
	ev.PreviousStatus = previous
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
