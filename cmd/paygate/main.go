// Command paygate runs the monetized resource server: an x402 payment
// gate, rate limiting and an idempotency ledger in front of one paid
// HTTP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paygate/paygate/internal/config"
	"github.com/paygate/paygate/internal/httpapi"
	"github.com/paygate/paygate/internal/ledger"
	"github.com/paygate/paygate/internal/payment"
	"github.com/paygate/paygate/internal/pipeline"
	"github.com/paygate/paygate/internal/ratelimit"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a developer convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	var store ratelimit.CounterStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		store = ratelimit.NewRedisStore(client)
		log.Info("rate limit counters backed by redis", zap.String("addr", cfg.RedisAddr))
	} else {
		store = ratelimit.NewMemoryStore()
	}

	global := ratelimit.New("global", cfg.GlobalPerMinute, ratelimit.DefaultWindow, store)
	unpaid := ratelimit.New("unpaid", cfg.UnpaidPerMinute, ratelimit.DefaultWindow, store)
	led := ledger.New(cfg.LedgerCapacity, cfg.LedgerTTL)

	facilitator := payment.NewHTTPFacilitatorClient(payment.FacilitatorConfig{
		URL:     cfg.FacilitatorURL,
		Timeout: cfg.FacilitatorTimeout,
	})
	gate := payment.NewGate(cfg.PaymentRequirements(), cfg.DevBypass, facilitator)

	pipe := pipeline.New(global, unpaid, led, gate, log)
	server := httpapi.NewServer(pipe, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.Int("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.Bool("dev_bypass", cfg.DevBypass),
			zap.String("network", cfg.Network),
			zap.String("amount", cfg.Amount),
			zap.String("pay_to", cfg.PayTo),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
