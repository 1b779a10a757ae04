package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/config"
	ledgerhttp "github.com/mmynk/groupledger/internal/http"
	expenseHandler "github.com/mmynk/groupledger/internal/http/expense"
	groupHandler "github.com/mmynk/groupledger/internal/http/group"
	invitationHandler "github.com/mmynk/groupledger/internal/http/invitation"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/notify"
	"github.com/mmynk/groupledger/internal/service"
	"github.com/mmynk/groupledger/internal/storage"
	"github.com/mmynk/groupledger/internal/storage/memory"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
	"github.com/mmynk/groupledger/pkg/logging"
)

func main() {
	tokenFor := flag.String("token", "", "print a bearer token for the given user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	jwtManager := auth.NewJWTManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if *tokenFor != "" {
		token, err := jwtManager.Generate(*tokenFor)
		if err != nil {
			slog.Error("Failed to generate token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "driver", cfg.Store.Driver, "database", cfg.Store.Path)

	m := metrics.New()
	opts := []service.Option{
		service.WithMetrics(m),
		service.WithNotifier(notify.NewLogSink(slog.Default())),
		service.WithInvitationTTL(cfg.Invitations.TTL),
		service.WithDefaultCurrency(cfg.App.DefaultCurrency),
	}

	var (
		groupService      = service.NewGroupService(store, opts...)
		membershipService = service.NewMembershipService(store, opts...)
		invitationService = service.NewInvitationService(store, opts...)
		expenseService    = service.NewExpenseService(store, opts...)
		balanceService    = service.NewBalanceService(store, opts...)
	)

	var (
		groupsH      = groupHandler.NewHandler(groupService, membershipService)
		invitationsH = invitationHandler.NewHandler(invitationService)
		ledgerH      = expenseHandler.NewHandler(expenseService, balanceService, membershipService)
	)

	var lim *limiter.Limiter
	if cfg.Server.RateLimit != "" {
		rate, err := limiter.NewRateFromFormatted(cfg.Server.RateLimit)
		if err != nil {
			slog.Error("Invalid rate limit", "rate_limit", cfg.Server.RateLimit, "error", err)
			os.Exit(1)
		}
		lim = limiter.New(limitermemory.NewStore(), rate)
	}

	router := ledgerhttp.New(ledgerhttp.Options{
		JWT:         jwtManager,
		Metrics:     m,
		Limiter:     lim,
		CORSOrigins: cfg.Server.CORSOrigins,
		Timeout:     cfg.Server.OperationTimeout,
	}, groupsH, invitationsH, ledgerH)

	// Wrap with h2c for HTTP/2 without TLS
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Store.Driver == "memory" {
		return memory.New(), nil
	}

	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return sqlite.New(cfg.Store.Path)
}
