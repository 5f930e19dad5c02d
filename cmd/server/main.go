package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/reekob/mendmyinewshop/internal/cache"
	"github.com/reekob/mendmyinewshop/internal/events"
	"github.com/reekob/mendmyinewshop/internal/gateway"
	"github.com/reekob/mendmyinewshop/internal/handlers"
	"github.com/reekob/mendmyinewshop/internal/messaging"
	"github.com/reekob/mendmyinewshop/internal/repository"
	"github.com/reekob/mendmyinewshop/internal/service"
)

func main() {
	log.Println("Commerce backend starting...")

	db, err := repository.Open(&repository.Credentials{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		DBName:   getEnvOrDefault("DB_NAME", "commerce"),
	})
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}
	defer db.Close()

	if err := repository.RunMigrations(db); err != nil {
		log.Fatalf("Migration error: %v", err)
	}

	rabbitConfig := messaging.NewRabbitMQConfig()
	rabbitClient := messaging.NewRabbitMQClient(rabbitConfig)
	if err := rabbitClient.Connect(); err != nil {
		log.Fatalf("RabbitMQ connection error: %v", err)
	}
	defer rabbitClient.Close()

	publisher := messaging.NewPublisher(rabbitClient)
	consumer := messaging.NewConsumer(rabbitClient, "notification-dispatcher", "commerce-backend")

	var idcache cache.Cache = cache.Noop{}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		idcache = cache.NewRedisCache(redisAddr, "commerce-backend")
	}

	cartRepo := repository.NewCartRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	discountRepo := repository.NewDiscountRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	processedRepo := repository.NewProcessedEventRepository(db)

	paymentGateway := gateway.NewMockPaymentGateway(0)

	checkoutService := service.NewCheckoutService(cartRepo, inventoryRepo, discountRepo, paymentGateway)
	settlementService := service.NewSettlementService(
		cartRepo, inventoryRepo, discountRepo, orderRepo, customerRepo,
		processedRepo, publisher, idcache)
	dispatcherService := service.NewDispatcherService(webhookRepo, nil, dispatcherConfigFromEnv())

	sweepInterval, err := time.ParseDuration(getEnvOrDefault("SWEEP_INTERVAL", "1m"))
	if err != nil {
		log.Fatalf("Invalid SWEEP_INTERVAL: %v", err)
	}
	sweeper := service.NewSweeper(cartRepo, inventoryRepo, discountRepo, publisher, sweepInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(ctx)

	err = consumer.ConsumeEvents(
		[]string{"order.*", "cart.*", "payment.*"},
		func(event events.DomainEvent) error {
			return dispatcherService.HandleEvent(ctx, event)
		},
	)
	if err != nil {
		log.Fatalf("Dispatcher consumer error: %v", err)
	}

	webhookSecret := getEnvOrDefault("PAYMENT_WEBHOOK_SECRET", "")
	if webhookSecret == "" {
		log.Fatal("PAYMENT_WEBHOOK_SECRET is required")
	}

	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	webhookHandler := handlers.NewPaymentWebhookHandler(settlementService, webhookSecret)
	deliveryHandler := handlers.NewDeliveryHandler(dispatcherService)

	app := setupFiberApp()
	setupRoutes(app, checkoutHandler, webhookHandler, deliveryHandler)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Commerce backend shutting down...")
		cancel()
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	port := getEnvOrDefault("PORT", "8000")
	log.Printf("Commerce backend listening on :%s", port)

	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Server start error: %v", err)
	}
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Commerce Backend v1.0",
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	return app
}

func setupRoutes(
	app *fiber.App,
	checkoutHandler *handlers.CheckoutHandler,
	webhookHandler *handlers.PaymentWebhookHandler,
	deliveryHandler *handlers.DeliveryHandler,
) {
	api := app.Group("/api/v1")

	api.Get("/health", checkoutHandler.HealthCheck)
	api.Post("/checkout/:cart_id", checkoutHandler.Checkout)
	api.Post("/webhooks/payment", webhookHandler.HandleNotification)
	api.Post("/deliveries/requeue", deliveryHandler.RequeueFailed)
}

func dispatcherConfigFromEnv() service.DispatcherConfig {
	config := service.DefaultDispatcherConfig()
	if raw := os.Getenv("DISPATCHER_BASE_BACKOFF"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			config.BaseBackoff = parsed
		}
	}
	if raw := os.Getenv("DISPATCHER_REQUEST_TIMEOUT"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			config.RequestTimeout = parsed
		}
	}
	return config
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
