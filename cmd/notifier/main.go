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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/doorgate/internal/config"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/notify"
	"github.com/your-org/doorgate/internal/observability"
	"github.com/your-org/doorgate/internal/queue"
	"github.com/your-org/doorgate/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":8082", "metrics listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.NATS.URL == "" {
		slog.Error("notifier requires nats.url")
		os.Exit(1)
	}

	slog.Info("starting doorgate notifier",
		"workers", cfg.Notify.WorkerCount,
		"provider", cfg.Notify.Provider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	transport, err := notify.NewTransport(ctx, cfg.Notify)
	if err != nil {
		slog.Error("init push transport", "error", err)
		os.Exit(1)
	}
	notifier := notify.NewVisitNotifier(notify.NewFanout(db, transport, cfg.Notify.Concurrency, cfg.Notify.SendTimeout))

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	// A failed device lookup is returned so the event is redelivered;
	// per-device failures are already settled inside the report.
	err = consumer.ConsumeVisitEvents(ctx, "notifier", func(ctx context.Context, ev models.VisitEvent) error {
		report, err := notifier.HandleVisitEvent(ctx, ev)
		if err != nil {
			return fmt.Errorf("notify visit %s: %w", ev.VisitID, err)
		}
		slog.Info("visit notification delivered",
			"visit", ev.VisitID,
			"type", ev.Type,
			"sent", report.Sent,
			"failed", report.Failed,
			"pruned", report.Pruned,
		)
		return nil
	}, cfg.Notify.WorkerCount)
	if err != nil {
		slog.Error("start visit event consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("notifier metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down notifier...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("notifier stopped")
}
