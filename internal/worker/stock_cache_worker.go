package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/go-marketplace-backoffice/internal/events"
	"github.com/flicky/go-marketplace-backoffice/internal/service"
)

const idempotencyTTL = 24 * time.Hour

// Consumer is the slice of *amqp.Channel the worker needs.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Cache is the slice of *redis.Client the worker needs.
type Cache interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// StockCacheWorker drops cached product views whenever an order event moved
// stock, so every API instance stops serving stale quantities.
type StockCacheWorker struct {
	channel Consumer
	queue   string
	cache   Cache
	log     *slog.Logger
	done    chan struct{}
}

func NewStockCacheWorker(ch Consumer, queue string, cache Cache, log *slog.Logger) *StockCacheWorker {
	return &StockCacheWorker{
		channel: ch,
		queue:   queue,
		cache:   cache,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start returns once consuming has begun. Deliveries are handled on a
// goroutine until Stop, ctx cancellation or channel close.
func (w *StockCacheWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.handle(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("stock cache worker started", "queue", w.queue)
	return nil
}

func (w *StockCacheWorker) Stop() { close(w.done) }

func (w *StockCacheWorker) handle(ctx context.Context, msg amqp.Delivery) {
	var ev events.Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		w.log.Error("unmarshal event", "error", err)
		_ = msg.Nack(false, false) // to the DLQ
		return
	}

	log := w.log.With("event_id", ev.ID, "type", ev.Type, "order_id", ev.OrderID)

	processedKey := "event_processed:" + ev.ID.String()
	fresh, err := w.cache.SetNX(ctx, processedKey, "1", idempotencyTTL).Result()
	if err != nil {
		log.Error("claim event", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if !fresh {
		log.Info("event already processed, skipping")
		_ = msg.Ack(false)
		return
	}

	if ev.ChangesStock() {
		if err := w.cache.Del(ctx, service.ProductCacheKey(ev.ProductID)).Err(); err != nil {
			log.Error("invalidate product cache", "product_id", ev.ProductID, "error", err)
			// release the claim so the redelivery is not skipped
			_ = w.cache.Del(ctx, processedKey).Err()
			_ = msg.Nack(false, true)
			return
		}
		log.Info("product cache invalidated", "product_id", ev.ProductID)
	}

	_ = msg.Ack(false)
}
