package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-registration/internal/analytics"
	analytics_api "ms-registration/internal/analytics/api"
	"ms-registration/internal/auth"
	"ms-registration/internal/checkin"
	"ms-registration/internal/config"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/events"
	"ms-registration/internal/export"
	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/participants"
	"ms-registration/internal/recall"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/api"
	"ms-registration/internal/registration/db"
	rediswrap "ms-registration/internal/registration/redis"
	"ms-registration/internal/sse"
	"ms-registration/internal/utils"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("POSTGRES_DSN not set")
	}

	var (
		sqldb *sql.DB
		err   error
	)
	if cfg.ConnectRetries < 1 {
		cfg.ConnectRetries = 1
	}

	for i := 0; i < cfg.ConnectRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, cfg.ConnectRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < cfg.ConnectRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", cfg.ConnectRetries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func main() {
	log := logger.NewLogger("registration-service")
	defer log.Close()

	log.Info("APP", "Starting Registration Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.Participants.RequestTimeout}

	// --- Storage ---
	bunDB, err := connectPostgres(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, log)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("MIGRATION", fmt.Sprintf("Failed to run migrations: %v", err))
		}
	}

	store := db.New(bunDB)

	// --- Redis (optional) ---
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = rediswrap.Connect(ctx, cfg.Redis.Addr, log)
		if err != nil {
			log.Warn("REDIS", "Continuing without Redis: capacity relies on the row lock, profiles are cached in memory")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// --- Service-to-service auth ---
	var tokens *auth.TokenProvider
	if cfg.M2MEnabled() {
		var tokenStore auth.TokenStore
		if redisClient != nil {
			tokenStore = auth.NewRedisTokenCache(redisClient)
		}
		tokens = auth.NewTokenProvider(auth.ClientCredentials{
			KeycloakURL:   cfg.Auth.KeycloakURL,
			KeycloakRealm: cfg.Auth.KeycloakRealm,
			ClientID:      cfg.Auth.ClientID,
			ClientSecret:  cfg.Auth.ClientSecret,
		}, httpClient, tokenStore, log)
		log.Info("AUTH", "M2M client credentials configured")
	}

	// --- Domain services ---
	feed := sse.NewRegistrationFeed()

	regService := registration.NewService(store, log)
	regService.Feed = feed
	if redisClient != nil {
		regService.Lock = rediswrap.NewEventLock(redisClient, cfg.Redis.LockTTL, cfg.Redis.LockWait, cfg.Redis.LockBackoff, log)
	}

	eventService := events.NewService(store, log)

	var directory export.Directory
	if cfg.Participants.ProfileServiceURL != "" {
		var cache participants.Cache = participants.NewMemoryCache(cfg.Participants.CacheTTL)
		if redisClient != nil {
			cache = participants.NewRedisCache(redisClient, cfg.Participants.CacheTTL)
		}
		var tokenSource participants.TokenSource
		if tokens != nil {
			tokenSource = tokens
		}
		directory = participants.NewDirectory(cfg.Participants.ProfileServiceURL, httpClient, cache, tokenSource, log)
	}
	exportService := export.NewService(store, store, directory, log)

	// --- Kafka ---
	var (
		producer *kafka.Producer
		consumer *kafka.Consumer
	)
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.RegistrationCreated,
			cfg.Kafka.Topics.RegistrationStatusChanged,
			cfg.Kafka.Topics.EventSettingsUpdated,
		}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer = kafka.NewProducer(cfg.Kafka.Brokers, kafka.Topics{
			RegistrationCreated:       cfg.Kafka.Topics.RegistrationCreated,
			RegistrationStatusChanged: cfg.Kafka.Topics.RegistrationStatusChanged,
		}, log)
		defer producer.Close()
		regService.Publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.EventSettingsUpdated, cfg.Kafka.GroupID, log)
		go func() {
			if err := consumer.Start(ctx, eventService); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Settings consumer stopped: %v", err))
			}
		}()
		defer consumer.Close()
	}

	// --- HTTP ---
	handler := &api.Handler{
		Registrations: regService,
		Events:        eventService,
		Recall:        recall.NewRecaller(store),
		Export:        exportService,
		Feed:          feed,
		Logger:        log,
	}

	analyticsHandler := analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB)), nil, log)

	if cfg.Auth.EventServiceURL != "" {
		var tokenSource auth.TokenSource
		if tokens != nil {
			tokenSource = tokens
		}
		owners := auth.NewOwnershipVerifier(cfg.Auth.EventServiceURL, httpClient, tokenSource, log)
		handler.Owners = owners
		analyticsHandler.Owners = owners
	} else {
		log.Warn("AUTH", "EVENT_SERVICE_URL not set, organizer checks are disabled")
	}

	if cfg.CheckIn.Secret != "" {
		passes, err := checkin.NewPassIssuer(cfg.CheckIn.Secret)
		if err != nil {
			log.Fatal("CONFIG", fmt.Sprintf("Invalid check-in secret: %v", err))
		}
		handler.Desk = checkin.NewDesk(passes, regService, log)
	}

	if cfg.SheetsEnabled() {
		sink, err := export.NewSheetsSink(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
		if err != nil {
			log.Error("SHEETS", fmt.Sprintf("Google Sheets export disabled: %v", err))
		} else {
			handler.Sheets = sink
		}
	}

	var authMiddleware func(http.Handler) http.Handler
	if cfg.Auth.InsecureDev {
		log.LogSecurity("DEV_AUTH", "AUTH_INSECURE_DEV is set, token signatures are not verified")
		authMiddleware = auth.DevMiddleware()
	} else {
		authMiddleware, err = auth.Middleware(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			log.Fatal("AUTH", err.Error())
		}
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			_ = utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Database unavailable", err.Error()))
			return
		}
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Route("/api/registration", func(r chi.Router) {
			handler.Routes(r)
			analyticsHandler.RegisterRoutes(r)
		})
	})
	log.Info("ROUTER", "Registration routes registered under /api/registration")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Registration Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Registration Service shutdown complete")
	}
}

// requestLogger logs method, path, status and duration of every request.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}
