// Command vaultd is the headless MCP server process: it resumes a
// session token minted by `vaultctl server start`, holds the vault's
// master key in memory, and answers initialize/tools.list/tools.call
// over stdio or HTTP+SSE. It never prompts for a passphrase itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mcpvault/mcpvault/internal/audit"
	"github.com/mcpvault/mcpvault/internal/config"
	"github.com/mcpvault/mcpvault/internal/controlapi"
	"github.com/mcpvault/mcpvault/internal/dispatcher"
	"github.com/mcpvault/mcpvault/internal/events"
	"github.com/mcpvault/mcpvault/internal/health"
	"github.com/mcpvault/mcpvault/internal/idempotency"
	"github.com/mcpvault/mcpvault/internal/logging"
	"github.com/mcpvault/mcpvault/internal/mcpserver"
	"github.com/mcpvault/mcpvault/internal/metrics"
	"github.com/mcpvault/mcpvault/internal/ratelimit"
	"github.com/mcpvault/mcpvault/internal/session"
	"github.com/mcpvault/mcpvault/internal/tracing"
	"github.com/mcpvault/mcpvault/internal/wallet"
)

var version = "dev"

const (
	exitOK            = 0
	exitBadArgs       = 2
	exitSessionFailed = 3
	exitVaultNotFound = 4
	exitFatal         = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vaultd", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	stdio := fs.Bool("stdio", false, "serve MCP over stdio")
	httpMode := fs.Bool("http", false, "serve MCP over HTTP+SSE")
	port := fs.Int("port", 0, "listen port for --http (defaults to MCPVAULT_LISTEN_ADDR)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: vaultd (--stdio | --http [--port N])")
	}
	if err := fs.Parse(args); err != nil {
		return exitBadArgs
	}

	if *stdio == *httpMode {
		fs.Usage()
		return exitBadArgs
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitBadArgs
	}

	logger := logging.Setup(cfg.LogLevel)
	logger.Info("vaultd starting", slog.String("version", version), slog.String("data_dir", cfg.DataDir))

	otelShutdown, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
	})
	if err != nil {
		logger.Error("otel setup failed", slog.String("error", err.Error()))
		return exitFatal
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	w := wallet.New(cfg.DataDir, 0)
	if err := w.Load(); err != nil {
		logger.Error("wallet load failed", slog.String("error", err.Error()))
		return exitFatal
	}
	if w.State() == wallet.StateNotInitialised {
		logger.Error("vault not found", slog.String("data_dir", cfg.DataDir))
		return exitVaultNotFound
	}

	token := os.Getenv("WALLET_SESSION_TOKEN")
	if token == "" {
		logger.Error("WALLET_SESSION_TOKEN not set")
		return exitSessionFailed
	}

	mgr := session.NewManager(cfg.DataDir, 0)
	sealed, err := mgr.Resume(token)
	if err != nil {
		logger.Error("session resume failed", slog.String("error", err.Error()))
		return exitSessionFailed
	}
	if err := w.UnlockWithMasterKey(sealed); err != nil {
		logger.Error("wallet unlock from session failed", slog.String("error", err.Error()))
		return exitSessionFailed
	}
	logger.Info("wallet unlocked from resumed session")

	m := metrics.New()
	m.WalletState.Set(float64(w.State()))
	m.SessionsActive.Set(1)

	var auditLog *audit.Log
	if a, err := audit.Open(cfg.DataDir + "/audit.db"); err == nil {
		auditLog = a
		defer auditLog.Close()
	} else {
		logger.Warn("audit log unavailable, tool calls will run without an audit trail", slog.String("error", err.Error()))
	}
	rl := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, time.Second)
	defer rl.Stop()

	bus := events.NewBus()
	tracker := health.NewTracker(health.DefaultConfig(), health.WithEventBus(bus), health.WithOnUpdate(func(integrationKey string, state health.State) {
		up := 0.0
		if state == health.StateHealthy {
			up = 1.0
		}
		m.IntegrationUp.WithLabelValues(integrationKey).Set(up)
	}))
	disp := dispatcher.New(tracker, dispatcher.WithMetrics(m))

	srv := mcpserver.New(w, disp, bus, "mcpvault", version, logger)
	srv.SessionToken = token
	srv.Metrics = m
	srv.Audit = auditLog
	srv.RateLimiter = rl

	settings, err := config.LoadSettings(cfg.DataDir)
	if err != nil {
		logger.Warn("settings load failed, using defaults", slog.String("error", err.Error()))
	}
	_ = settings

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *stdio {
		if err := mcpserver.ServeStdio(ctx, srv, os.Stdin, os.Stdout); err != nil {
			logger.Error("stdio transport error", slog.String("error", err.Error()))
			return exitFatal
		}
		return exitOK
	}

	return runHTTP(ctx, cfg, *port, srv, logger)
}

func runHTTP(ctx context.Context, cfg config.Config, port int, srv *mcpserver.Server, logger *slog.Logger) int {
	addr := cfg.ListenAddr
	if port != 0 {
		addr = fmt.Sprintf(":%d", port)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.OTelEnabled {
		r.Use(tracing.Middleware())
	}
	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mcpserver.MountHTTP(r, srv)

	if controlHash := os.Getenv("MCPVAULT_CONTROL_TOKEN_HASH"); controlHash != "" {
		idem := idempotency.New(5*time.Minute, 1000)
		defer idem.Stop()

		// Reuse the same audit log, metrics registry, and rate limiter the
		// MCP transport was given, so /admin/v1 and /metrics report on the
		// same process-wide state rather than a second, disjoint set.
		controlapi.Mount(r, controlapi.Dependencies{
			Wallet:      srv.Wallet,
			DataDir:     cfg.DataDir,
			Audit:       srv.Audit,
			Metrics:     srv.Metrics,
			ControlHash: controlHash,
			RateLimiter: srv.RateLimiter,
			Idempotency: idem,
		})
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("listen error", slog.String("error", err.Error()))
		return exitFatal
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	return exitOK
}
