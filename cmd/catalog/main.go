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
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-book-catalog/catalog"
	"github.com/aluiziolira/go-book-catalog/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	loaded, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	baseURL := flag.String("base-url", loaded.BaseURL, "Catalog service base URL")
	pageSize := flag.Int("page-size", loaded.PageSize, "Rows per page")
	timeout := flag.Duration("timeout", loaded.Timeout, "Per-request timeout")
	rps := flag.Float64("rps", loaded.RequestsPerSecond, "Maximum requests per second (0 = unlimited)")
	burst := flag.Int("burst", loaded.Burst, "Request burst when -rps is set")
	metricsAddr := flag.String("metrics-addr", loaded.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", loaded.Verbose, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := loaded
	cfg.BaseURL = *baseURL
	cfg.PageSize = *pageSize
	cfg.Timeout = *timeout
	cfg.RequestsPerSecond = *rps
	cfg.Burst = *burst
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := catalog.NewClient(cfg)
	if err != nil {
		slog.Error("initialising catalog client", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && client.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(client.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	sh := newShell(client, cfg.PageSize, os.Stdout)
	if flag.NArg() > 0 {
		// One-shot mode: load the first page, run the command, print the view.
		err = sh.runOnce(ctx, strings.Join(flag.Args(), " "))
	} else {
		err = sh.run(ctx)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if err != nil {
		slog.Error("catalog shell failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
