/**
 * @description
 * This is the main entry point for the clinic-service. It is responsible for
 * initializing all components of the service, including configuration, the
 * spreadsheet-backed repository, external API clients, the message broker, the
 * realtime hub, and the HTTP server. It wires everything together and starts
 * the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - internal/api, internal/app, internal/config, internal/realtime, internal/store: Internal packages.
 * - pkg/darajaclient, pkg/sheetsclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/afyalink/clinic-service/internal/api"
	"github.com/afyalink/clinic-service/internal/app"
	"github.com/afyalink/clinic-service/internal/config"
	"github.com/afyalink/clinic-service/internal/realtime"
	"github.com/afyalink/clinic-service/internal/store"
	"github.com/afyalink/clinic-service/pkg/darajaclient"
	rmrabbit "github.com/afyalink/clinic-service/pkg/rabbitmq"
	"github.com/afyalink/clinic-service/pkg/sheetsclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.SheetsAPIBaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"sheets api base url must be configured\" env=SHEETS_API_BASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting clinic-service\" port=%s", cfg.ServerPort)

	// Initialize the client for the spreadsheet row service and the repository
	// on top of it.
	sheetsClient := sheetsclient.NewClient(cfg.SheetsAPIBaseURL, cfg.SheetsAPIKey)
	repository := store.NewSheetRepository(sheetsClient, store.SheetNames{
		Ledger:       cfg.LedgerSheet,
		Orders:       cfg.OrdersSheet,
		Patients:     cfg.PatientsSheet,
		Appointments: cfg.AppointmentsSheet,
	})

	// Initialize the client for the Daraja payment gateway.
	darajaClient := darajaclient.NewClient(
		cfg.DarajaBaseURL,
		cfg.DarajaConsumerKey,
		cfg.DarajaConsumerSecret,
		cfg.DarajaShortCode,
		cfg.DarajaPasskey,
		cfg.DarajaCallbackURL,
	)

	// Initialize the RabbitMQ producer to publish payment events.
	// This service only needs to publish, so we use a producer.
	var eventProducer rmrabbit.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; payment events disabled\"")
		eventProducer = &rmrabbit.EventProducerFallback{}
	} else if producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rmrabbit.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the realtime hub and its email registry.
	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, originChecker(cfg.AllowedOrigins()))

	// Initialize the core application service with its dependencies.
	clinicService := app.NewService(repository, darajaClient, eventProducer, hub)

	// Wire the Redis-backed STK push rate limiter when Redis is configured.
	if cfg.STKPushRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; stk push rate limiting disabled\" env=REDIS_URL")
		} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; stk push rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; stk push rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				clinicService.SetRateLimiter(
					app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
					cfg.STKPushRateLimitPerMinute,
				)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
			cancelPing()
		}
	}

	// Initialize the API handlers and set up the router.
	clinicHandlers := api.NewClinicHandlers(clinicService)
	router := chi.NewRouter()
	router.Mount("/api", api.ClinicRoutes(clinicHandlers, cfg.JWTSecret))
	// The websocket endpoint sits outside the timeout middleware.
	router.Get("/ws", hub.ServeWS)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// originChecker builds the websocket origin check from the configured
// allowlist. An empty allowlist accepts every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}
