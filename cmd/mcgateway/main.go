// Command mcgateway is the entry point for the MCP tool-call aggregating
// gateway: it spawns the configured child servers, exposes their aggregated
// catalogue over SSE, and watches its configuration file for live reloads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcproxygw/mcgateway/internal/config"
	"github.com/mcproxygw/mcgateway/internal/manifest"
	"github.com/mcproxygw/mcgateway/internal/observe"
	"github.com/mcproxygw/mcgateway/internal/sandbox"
	"github.com/mcproxygw/mcgateway/internal/server"
	"github.com/mcproxygw/mcgateway/internal/supervisor"
)

// defaultPort matches spec §6's "--port (default 12009)".
const defaultPort = 12009

// manifestCachePath is the persisted-state location from spec §6.
const manifestCachePath = "./cache/manifest.json"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "mcp-servers.json", "path to the JSON configuration file")
	host := flag.String("host", "", "address to bind (empty means all interfaces)")
	port := flag.Int("port", defaultPort, "port to listen on")
	logTarget := flag.String("log", "stdout", "log destination: stdout or syslog")
	noReload := flag.Bool("no-reload", false, "disable the config-file watcher")
	reloadInterval := flag.Float64("reload-interval", 1.0, "config-file poll interval in seconds")
	flag.Parse()

	logger := newLogger(*logTarget)
	slog.SetDefault(logger)

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mcgateway: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mcgateway: %v\n", err)
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: "2.0.0"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shCtx)
	}()

	// ── Supervisor pool + initial spawn ──────────────────────────────────
	pool := supervisor.NewPool()
	pool.SpawnAll(ctx, cfg)

	reloader := supervisor.NewReloader(pool, cfg)

	// ── Manifest registry ─────────────────────────────────────────────────
	cacheTTL := time.Duration(cfg.Manifests.PerServerTTL) * time.Second
	registry := manifest.NewRegistry(pool, cacheTTL)
	if warm, err := registry.WarmFromCache(manifestCachePath); err != nil {
		slog.Warn("failed to warm manifest cache", "error", err)
	} else if !warm {
		registry.Rebuild()
	}
	if err := manifest.SaveCache(manifestCachePath, registry.Current()); err != nil {
		slog.Warn("failed to persist manifest cache", "error", err)
	}

	// ── Sandbox runner ───────────────────────────────────────────────────
	runner := sandbox.NewRunner(time.Duration(cfg.Sandbox.TimeoutOrDefault()) * time.Second)

	// ── Gateway + HTTP surface ───────────────────────────────────────────
	gw := server.NewGateway(pool, registry, runner, reloader)
	handler := server.NewHandler(gw)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", *host, *port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}

	// ── Config-file watcher ──────────────────────────────────────────────
	var watcher *config.Watcher
	if !*noReload {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			reloadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := gw.ApplyConfig(reloadCtx, new); err != nil {
				slog.Error("hot-reload failed", "error", err)
			}
		}, config.WithInterval(time.Duration(*reloadInterval*float64(time.Second))))
		if err != nil {
			slog.Error("failed to start config watcher", "error", err)
			return 1
		}
		defer watcher.Stop()
	}

	printStartupSummary(cfg, addr)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("mcgateway listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil {
			slog.Error("listen failed", "error", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if err := pool.StopAll(shutdownCtx); err != nil {
		slog.Error("pool shutdown error", "error", err)
	}

	slog.Info("goodbye")
	return 0
}

// ── Logger ───────────────────────────────────────────────────────────────

func newLogger(target string) *slog.Logger {
	var w io.Writer = os.Stdout
	if target == "syslog" {
		sw, err := newSyslogWriter()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcgateway: syslog unavailable (%v), falling back to stdout\n", err)
		} else {
			w = sw
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// ── Startup summary ─────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, addr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      mcgateway — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Listen addr     : %-19s ║\n", addr)
	fmt.Printf("║  Servers         : %-19d ║\n", len(cfg.Servers))
	fmt.Printf("║  Namespaces      : %-19d ║\n", len(cfg.Namespaces))
	fmt.Printf("║  Groups          : %-19d ║\n", len(cfg.Groups))
	fmt.Println("╚═══════════════════════════════════════╝")
}
