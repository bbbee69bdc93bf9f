// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"plugstore/internal/bundle/cache"
	bundlerepository "plugstore/internal/bundle/repository"
	bundleservice "plugstore/internal/bundle/service"
	bundlehttp "plugstore/internal/bundle/transport/http"
	categoryrepository "plugstore/internal/category/repository"
	categoryservice "plugstore/internal/category/service"
	categoryhttp "plugstore/internal/category/transport/http"
	"plugstore/internal/config"
	couponrepository "plugstore/internal/coupon/repository"
	couponservice "plugstore/internal/coupon/service"
	couponhttp "plugstore/internal/coupon/transport/http"
	"plugstore/internal/discount"
	"plugstore/internal/metrics"
	"plugstore/internal/notify"
	orderservice "plugstore/internal/order/service"
	orderhttp "plugstore/internal/order/transport/http"
	productrepository "plugstore/internal/product/repository"
	productservice "plugstore/internal/product/service"
	producthttp "plugstore/internal/product/transport/http"
	userrepository "plugstore/internal/user/repository"
	userservice "plugstore/internal/user/service"
	userhttp "plugstore/internal/user/transport/http"
	"plugstore/pkg/db"
	"plugstore/pkg/middleware"
)

var server *http.Server

func main() {
	fmt.Println("PlugStore API starting...")
	cfg := config.Load()
	fmt.Println("Config loaded")

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Database connected")

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx, database); err != nil {
		cancel()
		log.Fatalf("Database migration failed: %v", err)
	}
	cancel()
	log.Println("Database schema is up to date")

	metrics.InitMetrics()

	// --- ИНИЦИАЛИЗАЦИЯ СЛОЁВ ---
	userRepo := userrepository.NewPostgresUserRepository(database)
	userService := userservice.NewUserService(userRepo)
	userHandler := userhttp.NewHandler(userService)

	categoryRepo := categoryrepository.NewPostgresCategoryRepository(database)
	categoryService := categoryservice.NewService(categoryRepo)
	categoryHandler := categoryhttp.NewHandler(categoryService)

	productRepo := productrepository.NewPostgresProductRepository(database)
	productService := productservice.NewService(productRepo)
	productHandler := producthttp.NewHandler(productService)

	couponRepo := couponrepository.NewPostgresCouponRepository(database)
	bundleRepo := bundlerepository.NewPostgresBundleRepository(database)

	// Наборы: через Redis, если он настроен
	var (
		bundleStore       discount.BundleStore = bundleRepo
		bundleInvalidator bundleservice.Invalidator
		redisClient       *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: redis ping failed, bundle cache will fall back to Postgres: %v", err)
		}
		cancel()
		bundleCache := cache.NewActiveBundleCache(redisClient, bundleRepo, cfg.BundleCacheTTL)
		bundleStore = bundleCache
		bundleInvalidator = bundleCache
		log.Printf("Bundle cache enabled (%s, ttl %s)", cfg.RedisAddr, cfg.BundleCacheTTL)
	}

	couponService := couponservice.NewService(couponRepo, productService, discount.NewResolver(couponRepo, nil))
	couponHandler := couponhttp.NewHandler(couponService)

	bundleService := bundleservice.NewService(bundleRepo, bundleInvalidator, productService, discount.NewResolver(nil, bundleStore))
	bundleHandler := bundlehttp.NewHandler(bundleService)

	// Уведомления о заказах
	var (
		notifier      orderservice.Notifier = notify.LogNotifier{}
		kafkaNotifier *notify.KafkaNotifier
	)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
		notifier = kafkaNotifier
		log.Printf("Order notifications go to Kafka topic %s", cfg.KafkaOrderTopic)
	}

	orderService := orderservice.NewService(
		orderservice.NewPostgresStore(database),
		discount.NewResolver(couponRepo, bundleStore),
		notifier,
		cfg.GatewayMethods,
	)
	orderHandler := orderhttp.NewHandler(orderService)

	// --- РОУТЕР ---
	r := chi.NewRouter()

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware)
	r.Use(middleware.ValidateRequest)

	// Публичные роуты
	r.Get("/products", productHandler.List)
	r.Get("/products/{id}", productHandler.Get)
	r.Get("/categories", categoryHandler.List)
	r.Get("/categories/{id}", categoryHandler.Get)
	r.Post("/coupons/calculate-discount", couponHandler.CalculateDiscount)
	r.Post("/bundles/calculate-discount", bundleHandler.CalculateDiscount)

	if cfg.WebhookSecret != "" {
		r.With(middleware.SharedSecret("X-Webhook-Secret", cfg.WebhookSecret)).
			Post("/payments/webhook", orderHandler.PaymentWebhook)
	} else {
		log.Println("Warning: WEBHOOK_SECRET is not set, payment webhook is disabled")
	}

	// 🔐 Защищённая группа маршрутов
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.JWTAuth(cfg.JWTSecret))

		pr.Get("/me", userHandler.Me)

		pr.Post("/orders", orderHandler.CreateOrder)
		pr.Get("/orders", orderHandler.ListOrders)
		pr.Get("/orders/{id}", orderHandler.GetOrder)
		pr.Get("/orders/{id}/license", orderHandler.GetLicense)

		// Администрирование
		pr.Route("/admin", func(ar chi.Router) {
			ar.Use(middleware.RequireAdmin(userService))

			ar.Get("/categories", categoryHandler.List)
			ar.Post("/categories", categoryHandler.Create)
			ar.Put("/categories/{id}", categoryHandler.Update)

			ar.Get("/products", productHandler.AdminList)
			ar.Post("/products", productHandler.Create)
			ar.Put("/products/{id}", productHandler.Update)

			ar.Post("/users/{id}/balance", userHandler.TopUp)

			ar.Get("/coupons", couponHandler.List)
			ar.Post("/coupons", couponHandler.Create)
			ar.Get("/coupons/{id}", couponHandler.Get)
			ar.Put("/coupons/{id}", couponHandler.Update)
			ar.Delete("/coupons/{id}", couponHandler.Delete)

			ar.Get("/bundles", bundleHandler.List)
			ar.Post("/bundles", bundleHandler.Create)
			ar.Get("/bundles/{id}", bundleHandler.Get)
			ar.Put("/bundles/{id}", bundleHandler.Update)
			ar.Delete("/bundles/{id}", bundleHandler.Delete)
		})
	})

	if cfg.MetricsUser != "" {
		r.With(middleware.BasicAuth(cfg.MetricsUser, cfg.MetricsPassword)).Handle("/metrics", promhttp.Handler())
	} else {
		log.Println("Warning: METRICS_USER is not set, /metrics is disabled")
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Server running on %s", cfg.HTTPAddr)

	// Graceful shutdown на сигналы ОС
	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Println("Shutdown signal received, starting graceful shutdown")
		shutdownServer()
		close(done)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	<-done

	orderService.WaitNotifications()
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			log.Printf("Kafka writer close failed: %v", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("Redis close failed: %v", err)
		}
	}
	if err := database.Close(); err != nil {
		log.Printf("Database close failed: %v", err)
	}
	log.Println("Server stopped")
}

func shutdownServer() {
	log.Println("Starting server shutdown process")

	// Создаем контекст с таймаутом
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}
