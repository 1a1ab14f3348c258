package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/metrics"
	"github.com/obsidianstack/repairstack/server/internal/alerts"
	"github.com/obsidianstack/repairstack/server/internal/api"
	"github.com/obsidianstack/repairstack/server/internal/auth"
	"github.com/obsidianstack/repairstack/server/internal/config"
	"github.com/obsidianstack/repairstack/server/internal/probe"
	"github.com/obsidianstack/repairstack/server/internal/store"
	"github.com/obsidianstack/repairstack/server/internal/ws"
)

// shutdownTimeout bounds the HTTP drain on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file; built-in defaults when empty")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kofn-server: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Server.SlogLevel())
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("kofn-server starting",
		"config", *configPath,
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"results_ttl", cfg.Server.Results.TTL,
		"alert_rules", len(cfg.Server.Alerts.Rules),
	)

	if err := run(cfg, *configPath, level); err != nil {
		slog.Error("kofn-server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, level *slog.LevelVar) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	s := cfg.Server

	// Record store with background TTL eviction.
	st := store.New(s.Results.TTL, s.Results.Capacity)
	go st.Run(ctx)

	engine := compute.NewEngine(s.Engine.CacheSize)
	rec := metrics.New()
	rec.WatchEngine(engine)

	// Alerts engine: evaluates rules on every new record.
	alertEngine, err := alerts.New(s.Alerts)
	if err != nil {
		return err
	}

	// WebSocket hub: streams each stored record to matching clients.
	hub := ws.New(st)
	go hub.Run(ctx)

	apiHandler := api.New(st, engine, alertEngine,
		api.WithMetrics(rec),
		api.WithPublisher(hub),
		api.WithRateLimit(s.RateLimit.RPS, s.RateLimit.Burst),
		api.WithSearch(s.Search),
	)

	// Hot reload of alert rules, search limits and log level.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				if err := alertEngine.SetRules(next.Server.Alerts); err != nil {
					slog.Error("kofn-server: alert rules rejected, keeping previous", "err", err)
				}
				apiHandler.SetSearch(next.Server.Search)
				level.Set(next.Server.SlogLevel())
			})
			if err != nil {
				slog.Error("kofn-server: config watch stopped", "err", err)
			}
		}()
	}

	// gRPC health probe with optional API key authentication.
	key, header := s.Auth.Key(), s.Auth.EffectiveHeader()
	prb := probe.New()
	grpcSrv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(s.Auth.Mode, header, key)),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(s.Auth.Mode, header, key)),
	)
	prb.Register(grpcSrv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %d: %w", s.GRPCPort, err)
	}
	go func() {
		slog.Info("gRPC health probe listening", "port", s.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// Combined HTTP server: REST API, WebSocket hub and /metrics on HTTPPort.
	// The API and the stream require the key; /metrics stays open for scrapers.
	requireKey := auth.HTTPMiddleware(s.Auth.Mode, header, key)
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", requireKey(apiHandler))
	httpMux.Handle("/ws/stream", requireKey(hub))
	httpMux.Handle("/metrics", rec.Handler())

	httpLis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.HTTPPort))
	if err != nil {
		grpcSrv.Stop()
		return fmt.Errorf("listen on HTTP port %d: %w", s.HTTPPort, err)
	}
	httpSrv := &http.Server{
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", s.HTTPPort)
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()
	prb.SetServing()

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		if err != nil {
			slog.Error("HTTP server stopped", "err", err)
		}
	}

	slog.Info("kofn-server shutting down")
	prb.Shutdown()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "err", err)
	}
	grpcSrv.GracefulStop()
	return nil
}
