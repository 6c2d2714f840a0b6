package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/flicky/go-marketplace-backoffice/internal/config"
	"github.com/flicky/go-marketplace-backoffice/internal/events"
	"github.com/flicky/go-marketplace-backoffice/internal/handler"
	"github.com/flicky/go-marketplace-backoffice/internal/middleware"
	"github.com/flicky/go-marketplace-backoffice/internal/model"
	"github.com/flicky/go-marketplace-backoffice/internal/repository"
	"github.com/flicky/go-marketplace-backoffice/internal/service"
	"github.com/flicky/go-marketplace-backoffice/internal/storage"
	"github.com/flicky/go-marketplace-backoffice/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if cfg.DB.AutoMigrate {
		if err := repository.Migrate(ctx, dbPool); err != nil {
			return err
		}
		log.Info("schema migrated")
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to Redis: %w", err)
	}
	log.Info("connected to Redis")

	// RabbitMQ: one channel publishes, one consumes.
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer amqpConn.Close()

	pubCh, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	defer pubCh.Close()

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	defer consumeCh.Close()

	if err := events.SetupRabbitMQ(consumeCh, cfg.RabbitMQ.EventsQueue); err != nil {
		return fmt.Errorf("setup RabbitMQ: %w", err)
	}
	log.Info("connected to RabbitMQ")

	publisher := events.Multi{events.NewAMQPPublisher(pubCh, cfg.RabbitMQ.EventsQueue)}
	if cfg.Kafka.Enabled() {
		kw := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer kw.Close()
		publisher = append(publisher, events.NewKafkaPublisher(kw))
		log.Info("kafka event stream enabled", "topic", cfg.Kafka.Topic)
	}

	images, err := storage.NewLocalImageStore(cfg.Upload.Dir, cfg.Upload.MaxBytes, storage.DefaultAllowedTypes)
	if err != nil {
		return err
	}

	// Repositories
	tx := repository.NewTransactor(dbPool)
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	cartStore := repository.NewCartStore(redisClient, cfg.Cart.TTL)

	// Services
	productSvc := service.NewProductService(tx, productRepo, orderRepo, userRepo, images, redisClient, cfg.Cache.ProductTTL, log)
	cartSvc := service.NewCartService(cartStore, productRepo)
	orderSvc := service.NewOrderService(tx, orderRepo, productSvc, cartStore, publisher, log)

	// Handlers
	productH := handler.NewProductHandler(productSvc, cfg.Upload.MaxBytes)
	cartH := handler.NewCartHandler(cartSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	healthH := handler.NewHealthHandler(
		handler.PostgresCheck(dbPool),
		handler.RedisCheck(redisClient),
		handler.RabbitMQCheck(amqpConn),
	)

	cacheWorker := worker.NewStockCacheWorker(consumeCh, cfg.RabbitMQ.EventsQueue, redisClient, log)

	// Router
	auth := middleware.Authenticate(cfg.JWT.Secret, userRepo)
	router := gin.Default()
	router.MaxMultipartMemory = cfg.Upload.MaxBytes
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)
	router.Static("/"+cfg.Upload.Dir, cfg.Upload.Dir)

	v1 := router.Group("/api/v1")
	{
		products := v1.Group("/products")
		products.GET("", productH.List)
		products.GET("/:id", productH.GetByID)

		manage := products.Group("", auth, middleware.RequireRole(model.RoleSupplier, model.RoleAdmin))
		manage.GET("/deleted", productH.ListDeleted)
		manage.POST("", productH.Create)
		manage.PUT("/:id", productH.Update)
		manage.DELETE("/:id", productH.SoftDelete)
		manage.POST("/:id/restore", productH.Restore)

		admin := products.Group("", auth, middleware.RequireRole(model.RoleAdmin))
		admin.DELETE("/:id/permanent", productH.HardDelete)

		cart := v1.Group("/cart", auth, middleware.RequireRole(model.RoleBuyer))
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.DELETE("/items/:product_id", cartH.RemoveItem)
		cart.DELETE("", cartH.Clear)
		cart.POST("/checkout", orderH.Checkout)

		orders := v1.Group("/orders", auth)
		orders.POST("", middleware.RequireRole(model.RoleBuyer), orderH.PlaceOrder)
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)
		orders.PATCH("/:id/status", middleware.RequireRole(model.RoleSupplier, model.RoleAdmin), orderH.UpdateStatus)
	}

	if err := cacheWorker.Start(ctx); err != nil {
		return fmt.Errorf("start stock cache worker: %w", err)
	}
	defer cacheWorker.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
