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

	"mizpos/terminal/internal/cache"
	"mizpos/terminal/internal/catalog"
	"mizpos/terminal/internal/config"
	"mizpos/terminal/internal/httpapi"
	"mizpos/terminal/internal/service"
	"mizpos/terminal/internal/store"
	"mizpos/terminal/internal/store/memory"
	"mizpos/terminal/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabasePath != "" {
		db, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("sqlite unavailable (%v) and DATABASE_PATH is set; refusing to start with in-memory fallback", err)
		}
		repo = db
		closers = append(closers, db.Close)
		log.Printf("repository: sqlite (%s)", cfg.DatabasePath)
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	lookups := cache.LookupCache(cache.NoopLookupCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisLookupCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop lookup cache", err)
		} else {
			lookups = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("lookup cache: redis")
		}
	} else {
		log.Println("lookup cache: noop")
	}

	var catalogClient catalog.Client
	if cfg.CatalogBaseURL != "" {
		catalogClient = catalog.NewHTTPClient(cfg.CatalogBaseURL, cfg.CatalogAPIToken)
		log.Printf("catalog: %s", cfg.CatalogBaseURL)
	} else {
		log.Println("catalog: not configured, sync disabled")
	}

	svc := service.New(repo, catalogClient, lookups, cfg.TerminalID, time.Duration(cfg.LookupTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("terminal core listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
