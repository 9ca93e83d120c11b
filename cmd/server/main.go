package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/tradetools/tradetools-server/internal/api"
	"github.com/tradetools/tradetools-server/internal/cache"
	"github.com/tradetools/tradetools-server/internal/config"
	"github.com/tradetools/tradetools-server/internal/database"
	"github.com/tradetools/tradetools-server/internal/importer"
	"github.com/tradetools/tradetools-server/internal/kafka"
	"github.com/tradetools/tradetools-server/internal/networth"
	"github.com/tradetools/tradetools-server/internal/quotes"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(cfg.Database.ConnectionString()); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	log.Println("Connected to PostgreSQL database")

	// Connect to Redis
	priceCache, err := cache.New(cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v (continuing without cache)", err)
		priceCache = nil
	} else {
		defer priceCache.Close()
		log.Println("Connected to Redis cache")
	}

	// Create Kafka producer for outbound events
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer producer.Close()
	log.Printf("Kafka producer initialized (brokers: %v)", cfg.Kafka.Brokers)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create and start Kafka consumer for trade confirms
	consumer := kafka.NewConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.TradesTopic,
		cfg.Kafka.ConsumerGroup,
		db,
	)
	go func() {
		log.Printf("Starting Kafka consumer for topic: %s (group: %s)",
			cfg.Kafka.TradesTopic, cfg.Kafka.ConsumerGroup)
		if err := consumer.Start(ctx); err != nil {
			log.Printf("Kafka consumer error: %v", err)
		}
	}()

	var flexClient api.Importer
	if cfg.Flex.Token != "" {
		flexClient = importer.New(cfg.Flex, db)
		log.Println("Flex report importer configured")
	} else {
		log.Println("FLEX_TOKEN not set, report import disabled")
	}

	// Set up HTTP handler and routes
	handler := api.NewHandler(
		db,
		cacheOrNil(priceCache),
		producer,
		quotes.NewYahooProvider(),
		flexClient,
		networth.NewService(cfg.Portfolio.Accounts, cfg.Portfolio.ReportingCurrency),
		cfg.Portfolio,
	)
	router := api.SetupRoutes(handler, api.StaticVerifier{Token: cfg.Auth.Token})

	// Create HTTP server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Cancel context to stop Kafka consumer
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := consumer.Close(); err != nil {
		log.Printf("Error closing Kafka consumer: %v", err)
	}

	log.Println("Server stopped")
}

// cacheOrNil keeps a typed nil *cache.Client out of the api.PriceCache
// interface so the handlers' nil checks keep working.
func cacheOrNil(c *cache.Client) api.PriceCache {
	if c == nil {
		return nil
	}
	return c
}

func runMigrations(databaseUrl string) error {
	m, err := migrate.New("file://./db/migrations", databaseUrl)
	if err != nil {
		return err
	}

	// ErrNoChange just means the database is already current
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
