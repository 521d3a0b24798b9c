package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mudgate/mudgate/internal/config"
	"github.com/mudgate/mudgate/internal/crypto"
	"github.com/mudgate/mudgate/internal/database"
	"github.com/mudgate/mudgate/internal/gateway"
	"github.com/mudgate/mudgate/internal/handlers"
	"github.com/mudgate/mudgate/internal/identity"
	"github.com/mudgate/mudgate/internal/logging"
	"github.com/mudgate/mudgate/internal/middleware"
	"github.com/mudgate/mudgate/internal/session"
	"github.com/robfig/cron/v3"
)

// dbStore adapts the database layer to the dispatcher's Store interface,
// encrypting the password before it crosses into persistence.
type dbStore struct{}

func (dbStore) UpsertUser(ident, account, password, displayName string, createdAccount bool) error {
	encrypted, err := crypto.Encrypt(password)
	if err != nil {
		return err
	}
	return database.UpsertUser(ident, account, encrypted, displayName, createdAccount)
}

func main() {
	config.Load()
	logging.Init()

	if err := config.Cfg.Validate(); err != nil {
		log.Fatalf("Config: %v", err)
	}

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	phrases, err := config.LoadLoginPhrases(config.Cfg.PhrasesPath)
	if err != nil {
		log.Fatalf("Login phrases: %v", err)
	}

	mapper, err := identity.NewMapper(config.Cfg.AccountPrefix, config.Cfg.Secret)
	if err != nil {
		log.Fatalf("Identity mapper: %v", err)
	}
	registry := session.NewRegistry(mapper, session.Config{
		Host:            config.Cfg.BackendHost,
		Port:            config.Cfg.BackendPort,
		ConnectTimeout:  config.Cfg.ConnectTimeout,
		QuietWindow:     config.Cfg.QuietWindow,
		OutputBuffer:    config.Cfg.OutputBuffer,
		AutoCreate:      config.Cfg.AutoCreateAccounts,
		ConnectTemplate: config.Cfg.ConnectTemplate,
		CreateTemplate:  config.Cfg.CreateTemplate,
		IsLoginFailure:  phrases.IsFailure,
		IsLoginSuccess:  phrases.IsSuccess,
		IsCreated:       phrases.IsCreated,
	})
	handlers.Registry = registry

	handlers.Dispatcher = gateway.New(registry, mapper, handlers.Chat, dbStore{}, gateway.Config{
		ChunkMaxSize:        config.Cfg.ChunkMaxSize,
		ChunkMaxCount:       config.Cfg.ChunkMaxCount,
		DMOnly:              config.Cfg.DMOnly,
		WarnPublicPlay:      config.Cfg.WarnPublicPlay,
		NickCommandTemplate: config.Cfg.NickCommandTemplate,
	})

	log.Printf("Backend: %s:%d (auto-create=%v, idle timeout=%s)",
		config.Cfg.BackendHost, config.Cfg.BackendPort, config.Cfg.AutoCreateAccounts, config.Cfg.IdleTimeout)
	if config.Cfg.AdminToken != "" {
		log.Printf("Admin API auth enabled (token %s)", crypto.Mask(config.Cfg.AdminToken))
	} else {
		log.Printf("Admin API auth disabled (no token configured)")
	}

	// Idle session reaper
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 1m", func() {
		if n := registry.CleanupIdle(config.Cfg.IdleTimeout); n > 0 {
			log.Printf("Idle reaper closed %d session(s)", n)
		}
	}); err != nil {
		log.Fatalf("Schedule idle reaper: %v", err)
	}
	scheduler.Start()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	// Webchat WebSocket
	r.Get("/ws", handlers.WebChat)

	// Admin API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken)

		r.Get("/sessions", handlers.ListSessions)
		r.Get("/sessions/{identity}", handlers.GetSession)
		r.Delete("/sessions/{identity}", handlers.DeleteSession)
		r.Get("/users", handlers.ListUsers)
		r.Get("/logs", handlers.ServerLogs)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	scheduler.Stop()
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
