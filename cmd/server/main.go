package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"kasirledger/backend/internal/cache"
	"kasirledger/backend/internal/config"
	"kasirledger/backend/internal/events"
	"kasirledger/backend/internal/httpapi"
	"kasirledger/backend/internal/service"
	"kasirledger/backend/internal/store"
	"kasirledger/backend/internal/store/memory"
	pgstore "kasirledger/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kasirledger",
		Short:         "Inventory, sales and cash drawer backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serveC := serveCmd()
	root.RunE = serveC.RunE
	root.AddCommand(serveC, migrateCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := validateSecurityConfig(cfg); err != nil {
				return fmt.Errorf("invalid security configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrate")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			pg, err := pgstore.New(ctx, cfg.DatabaseURL, lockTimeout(cfg))
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			log.Println("schema applied")
			return nil
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	var repo interface {
		store.Repository
		store.UserStore
	}
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, lockTimeout(cfg))
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set, refusing in-memory fallback: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var catalogCache cache.CatalogCache = cache.NewMemoryCatalogCache()
	var sink events.Sink = events.LogSink{}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisCatalogCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process cache and log sink", err)
			_ = client.Close()
		} else {
			catalogCache = redisCache
			sink = events.NewRedisSink(client, cfg.RedisEventChannel)
			closers = append(closers, client.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: in-process")
	}

	dispatcher := events.NewDispatcher(cfg.EventQueueSize, sink)
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go dispatcher.Run(runCtx)

	svc := service.New(repo, catalogCache, dispatcher, service.Options{
		ReferenceCurrency: cfg.ReferenceCurrency,
		LocalCurrency:     cfg.LocalCurrency,
		CatalogCacheTTL:   time.Duration(cfg.CatalogCacheTTLSeconds) * time.Second,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("kasirledger listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-sig:
	case runErr = <-serverErr:
		log.Printf("server error: %v", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Printf("event dispatcher: %d events not delivered: %v", dispatcher.Pending(), err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
	return runErr
}

func lockTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.LockTimeoutMS) * time.Millisecond
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must list at least one origin")
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			return errors.New("ALLOWED_ORIGINS must not contain a wildcard")
		}
	}
	if cfg.ReferenceCurrency == cfg.LocalCurrency {
		return fmt.Errorf("reference and local currency must differ, both are %s", cfg.ReferenceCurrency)
	}
	return nil
}
