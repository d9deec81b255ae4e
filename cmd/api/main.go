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

	"github.com/your-org/doorgate/internal/api"
	"github.com/your-org/doorgate/internal/api/handlers"
	"github.com/your-org/doorgate/internal/api/ws"
	"github.com/your-org/doorgate/internal/auth"
	"github.com/your-org/doorgate/internal/burst"
	"github.com/your-org/doorgate/internal/config"
	"github.com/your-org/doorgate/internal/gate"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/notify"
	"github.com/your-org/doorgate/internal/observability"
	"github.com/your-org/doorgate/internal/quality"
	"github.com/your-org/doorgate/internal/queue"
	"github.com/your-org/doorgate/internal/recognition"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/internal/visit"
	"github.com/your-org/doorgate/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting doorgate API service", "port", cfg.Server.Port, "db", cfg.Database.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	images, filesDir, err := storage.OpenImages(ctx, cfg.MinIO, cfg.Files)
	if err != nil {
		slog.Error("open image store", "error", err)
		os.Exit(1)
	}

	transport, err := notify.NewTransport(ctx, cfg.Notify)
	if err != nil {
		slog.Error("init push transport", "error", err)
		os.Exit(1)
	}
	fanout := notify.NewFanout(db, transport, cfg.Notify.Concurrency, cfg.Notify.SendTimeout)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	checks := []handlers.Check{
		{Name: cfg.Database.Driver, Ping: db.Ping},
		{Name: "images", Ping: images.Ping},
	}

	// With NATS, the notifier service delivers pushes and the API only relays
	// live events. Without it, both happen in-process.
	var publisher visit.EventPublisher
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		publisher = producer
		checks = append(checks, handlers.Check{Name: "nats", Ping: func(context.Context) error { return producer.Ping() }})

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create live event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeLiveEvents(ctx, "api-live", hub.HandleVisitEvent); err != nil {
			slog.Warn("start live event consumer", "error", err)
		}
	} else {
		slog.Info("nats not configured, delivering visit events in-process")
		publisher = notify.NewAsyncPublisher(2*cfg.Notify.SendTimeout,
			notify.NotifyHandler(notify.NewVisitNotifier(fanout)),
			func(_ context.Context, ev models.VisitEvent) { hub.BroadcastVisitEvent(ev) },
		)
	}

	visits := visit.NewLifecycle(db, publisher)

	// Recognition needs the ONNX models; without them the API still serves
	// visits, devices and notifications.
	var (
		svc      *gate.Service
		enroller *gate.Enroller
	)
	if err := vision.InitRuntime(); err != nil {
		slog.Warn("onnx runtime init failed, recognition unavailable", "error", err)
	} else {
		defer vision.DestroyRuntime()
		engine, err := vision.NewEngine(cfg.Vision)
		if err != nil {
			slog.Warn("vision engine init failed, recognition unavailable", "error", err)
		} else {
			defer engine.Close()

			loader := recognition.TemplateLoader{Source: db, Embedder: engine}
			matcher := recognition.NewMatcher(engine, nil, cfg.Vision.MatchThreshold, cfg.Vision.MinFaceSize)
			if g, err := loader.Load(ctx); err != nil {
				slog.Warn("load face gallery, recognitions answer 503 until enrollment", "error", err)
			} else {
				matcher.SetGallery(g)
			}

			scorer := quality.NewScorer(
				quality.WithFaceLocator(engine),
				quality.WithMaxDimension(cfg.Quality.MaxDimension),
			)
			svc = gate.NewService(
				burst.NewSelector(scorer),
				recognition.NewResolver(matcher),
				visits,
				images,
				gate.NewFetcher(cfg.Vision.FetchTimeout, cfg.Server.MaxUploadBytes),
				gate.Policy{AutoGrantKnown: cfg.Policy.AutoGrantKnown},
			)
			enroller = gate.NewEnroller(engine, db, images, loader, matcher)
			slog.Info("recognition pipeline ready", "threshold", cfg.Vision.MatchThreshold)
		}
	}

	var tokens *auth.TokenIssuer
	if cfg.Server.JWTSecret != "" {
		tokens = auth.NewTokenIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		Tokens:         tokens,
		DB:             db,
		Images:         images,
		Visits:         visits,
		Gate:           svc,
		Enroller:       enroller,
		Fanout:         fanout,
		Hub:            hub,
		Checks:         checks,
		FilesDir:       filesDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
