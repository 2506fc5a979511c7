package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-docservices/internal/auth"
	"ms-docservices/internal/catalog"
	"ms-docservices/internal/catalog/catalog_api"
	"ms-docservices/internal/config"
	"ms-docservices/internal/database/migrations"
	"ms-docservices/internal/docstore"
	internalkafka "ms-docservices/internal/kafka"
	"ms-docservices/internal/logger"
	"ms-docservices/internal/order"
	orderdb "ms-docservices/internal/order/db"
	orderkafka "ms-docservices/internal/order/kafka"
	"ms-docservices/internal/order/order_api"
	"ms-docservices/internal/order/receipt"
	orderredis "ms-docservices/internal/order/redis"
	"ms-docservices/internal/users"
	"ms-docservices/internal/users/users_api"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	// --- PostgreSQL ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DB", fmt.Sprintf("failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	// --- Migrations ---
	if cfg.Migration.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.Options{
			Dir:         cfg.Migration.Dir,
			AutoMigrate: cfg.Migration.AutoMigrate,
			SeedData:    cfg.Migration.SeedData,
		}, log)
		if err := runner.Run(); err != nil {
			log.Fatal("DB", fmt.Sprintf("migrations failed: %v", err))
		}
	}

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("failed to connect to Redis: %v", err))
	}

	// --- Kafka ---
	var events order.EventPublisher
	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		topics := []string{
			cfg.Kafka.Topics.OrderCreated,
			cfg.Kafka.Topics.OrderStatus,
			cfg.Kafka.Topics.PaymentCompleted,
		}
		if err := internalkafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("topic setup failed, continuing: %v", err))
		}
		producer := orderkafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		events = producer
	} else {
		log.Info("KAFKA", "running with mock event publisher")
		events = orderkafka.NewMockProducer(log)
	}

	// --- Stripe ---
	order.InitStripe(cfg.Stripe.SecretKey)
	gateway := &order.StripeGateway{Currency: cfg.Stripe.Currency, Logger: log}

	// --- Uploads ---
	docs, err := docstore.NewStore(cfg.Uploads.Dir)
	if err != nil {
		log.Fatal("UPLOAD", fmt.Sprintf("failed to init document store: %v", err))
	}

	// --- Services ---
	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	catalogDB := catalog.NewDB(bunDB)
	userSvc := users.NewUserService(users.NewDB(bunDB), issuer, log)

	orderSvc := order.NewOrderService(
		orderdb.NewDB(bunDB),
		orderredis.NewRedis(redisClient, log),
		events,
		gateway,
		catalogDB,
		log,
	)
	orderSvc.WebhookSecret = cfg.Stripe.WebhookSecret
	orderSvc.GatewayTimeout = cfg.Stripe.Timeout

	receipts := receipt.NewGenerator(cfg.Auth.JWTSecret)

	catalogHandler := catalog_api.NewHandler(catalogDB, log)
	userHandler := users_api.NewHandler(userSvc, log)
	orderHandler := order_api.NewHandler(orderSvc, docs, receipts, log)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Public routes
	r.Post("/api/register", userHandler.Register)
	r.Post("/api/login", userHandler.Login)
	r.Get("/api/services", catalogHandler.ListServices)
	r.Get("/api/services/category/{category}", catalogHandler.ListServices)
	r.Get("/api/services/{serviceId}", catalogHandler.GetService)
	r.Post("/api/payment/webhook", orderHandler.StripeWebhook)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer))

		r.Get("/api/user", userHandler.Me)

		r.Post("/api/orders", orderHandler.CreateOrder)
		r.Get("/api/orders", orderHandler.ListMyOrders)
		r.Get("/api/orders/{orderId}", orderHandler.GetOrder)
		r.Get("/api/orders/{orderId}/documents/{filename}", orderHandler.DownloadDocument)
		r.Get("/api/orders/{orderId}/receipt", orderHandler.Receipt)
		r.Post("/api/orders/{orderId}/payment-intent", orderHandler.CreatePaymentIntent)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Get("/api/admin/orders", orderHandler.ListAllOrders)
			r.Patch("/api/admin/orders/{orderId}/status", orderHandler.UpdateStatus)
			r.Patch("/api/admin/orders/{orderId}/payment", orderHandler.UpdatePaymentStatus)
		})
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("document services API listening on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "shutdown signal received")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "server exited gracefully")
}
