package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/go-marketplace-backoffice/internal/model"
)

// CartStore keeps session carts outside the relational store. Carts are not
// reservations and expire with the session.
type CartStore interface {
	Get(ctx context.Context, sessionID string) (*model.Cart, error)
	// AddItem merges quantity into the line and caps the result at limit. It
	// reports the quantity held afterwards and whether the cap cut the merge.
	AddItem(ctx context.Context, sessionID string, productID uuid.UUID, quantity, limit int) (int, bool, error)
	RemoveItem(ctx context.Context, sessionID string, productID uuid.UUID) error
	Clear(ctx context.Context, sessionID string) error
}

// cart:{session_id} -> hash(product_id -> quantity)
const keyCart = "cart:%s"

const maxCartRetries = 5

type redisCartStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCartStore(rdb *redis.Client, ttl time.Duration) CartStore {
	return &redisCartStore{rdb: rdb, ttl: ttl}
}

func cartKey(sessionID string) string { return fmt.Sprintf(keyCart, sessionID) }

func (s *redisCartStore) Get(ctx context.Context, sessionID string) (*model.Cart, error) {
	raw, err := s.rdb.HGetAll(ctx, cartKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	cart := &model.Cart{SessionID: sessionID, Items: make(map[uuid.UUID]int, len(raw))}
	for field, value := range raw {
		id, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(value)
		if err != nil || qty <= 0 {
			continue
		}
		cart.Items[id] = qty
	}
	return cart, nil
}

// AddItem runs as a WATCH transaction on the cart key so concurrent adds in
// one session never lose an increment.
func (s *redisCartStore) AddItem(ctx context.Context, sessionID string, productID uuid.UUID, quantity, limit int) (int, bool, error) {
	key := cartKey(sessionID)
	field := productID.String()

	var (
		next    int
		clamped bool
	)
	txf := func(tx *redis.Tx) error {
		existing, err := tx.HGet(ctx, key, field).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next = min(existing+quantity, limit)
		clamped = next < existing+quantity

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, next)
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxCartRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return next, clamped, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return 0, false, fmt.Errorf("add cart item: %w", err)
		}
	}
	return 0, false, fmt.Errorf("add cart item: %w", redis.TxFailedErr)
}

func (s *redisCartStore) RemoveItem(ctx context.Context, sessionID string, productID uuid.UUID) error {
	if err := s.rdb.HDel(ctx, cartKey(sessionID), productID.String()).Err(); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

func (s *redisCartStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
