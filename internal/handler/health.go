package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Check is one readiness probe against a backing service.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

func PostgresCheck(pool *pgxpool.Pool) Check {
	return Check{Name: "postgres", Ping: pool.Ping}
}

func RedisCheck(rdb *redis.Client) Check {
	return Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}
}

func RabbitMQCheck(conn *amqp.Connection) Check {
	return Check{Name: "rabbitmq", Ping: func(context.Context) error {
		if conn.IsClosed() {
			return amqp.ErrClosed
		}
		return nil
	}}
}

type HealthHandler struct {
	checks  []Check
	timeout time.Duration
}

func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz probes every dependency in parallel and reports each one.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		report = gin.H{}
		failed = errors.New("dependency unavailable")
	)
	var g errgroup.Group
	for _, check := range h.checks {
		check := check
		g.Go(func() error {
			err := check.Ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report[check.Name] = "unavailable"
				return failed
			}
			report[check.Name] = "connected"
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		report["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	report["status"] = "ok"
	c.JSON(http.StatusOK, report)
}
