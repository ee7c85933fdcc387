// Command api runs the Crewdock authentication service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"crewdock.org/internal/auth"
	"crewdock.org/internal/httpapi"
	"crewdock.org/internal/obs"
	"crewdock.org/internal/ratelimit"
	"crewdock.org/internal/store/pg"
	"crewdock.org/internal/sweep"
)

func main() {
	if err := run(); err != nil {
		obs.Error("fatal", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	dsn := envOr("CREWDOCK_PG_DSN", "postgres://localhost:5432/crewdock?sslmode=disable")
	addr := envOr("CREWDOCK_HTTP_ADDR", ":8080")
	schedule := envOr("CREWDOCK_SWEEP_SCHEDULE", sweep.DefaultSchedule)
	accessSecret := os.Getenv("CREWDOCK_ACCESS_SECRET")
	if accessSecret == "" {
		return errors.New("CREWDOCK_ACCESS_SECRET is required")
	}

	obs.InitMetrics()

	store, err := pg.Open(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	creds, err := auth.NewCredentialManager(auth.CredentialConfig{
		Secret:   []byte(accessSecret),
		Issuer:   "crewdock",
		Audience: "crewdock-api",
	})
	if err != nil {
		return err
	}

	opts := []auth.Option{}
	if redisAddr := os.Getenv("CREWDOCK_REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			return err
		}
		opts = append(opts, auth.WithRateLimiter(ratelimit.New(client)))
		obs.Info("rate limiter enabled", map[string]any{"redis_addr": redisAddr})
	}

	service := auth.NewService(store, creds, opts...)
	directory := auth.NewDirectory(store)

	sweeper := sweep.New(service, schedule)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	api := httpapi.New(httpapi.Config{
		Auth:      service,
		Directory: directory,
		Ready: func(ctx context.Context) error {
			return store.DB().PingContext(ctx)
		},
		Version: obs.Version(),
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.Info("listening", map[string]any{"addr": addr, "version": obs.Version()})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		obs.Info("shutting down", map[string]any{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
