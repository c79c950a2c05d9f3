package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	domrepo "StreamCast/internal/domain/repository"
	mid "StreamCast/internal/middleware"
	"StreamCast/internal/service/ratelimit"
	"StreamCast/internal/usecase"
	pkgch "StreamCast/pkg/clickhouse"
	"StreamCast/pkg/config"
	xhttp "StreamCast/pkg/http"
	pkgkafka "StreamCast/pkg/kafka"
	applogger "StreamCast/pkg/logger"
)

// Deps groups everything the App drives. Optional parts may be nil.
type Deps struct {
	Logger    *applogger.Logger
	Runner    *usecase.ModelRunner
	Pipeline  *mid.ResultPipeline
	Processor *usecase.ResultProcessor
	Snapshots domrepo.SnapshotStore
	Consumer  *pkgkafka.Consumer
	Handler   pkgkafka.MessageHandler
	Collector *usecase.MetricCollector
	Producer  *pkgkafka.Producer
	CHClient  *pkgch.Client
	Limiter   *ratelimit.Limiter
	HTTP      xhttp.Handler
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	d          Deps
	log        *applogger.Logger
	httpServer *xhttp.Server
	stopPrune  chan struct{}
	stopOnce   sync.Once
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, d Deps) *App {
	l := d.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, d: d, log: l, stopPrune: make(chan struct{})}
}

// Start brings every component up in dependency order.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Logger.Collector.Enabled && a.d.Producer != nil {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   a.cfg.Logger.Collector.Interval,
			CountThreshold: a.cfg.Logger.Collector.Threshold,
			Topic:          a.cfg.Logger.Collector.Topic,
			Publisher:      a.d.Producer,
			CollectWarn:    true,
		})
	}

	restored, err := a.d.Runner.Restore(ctx)
	if err != nil {
		return err
	}
	if !restored {
		a.log.Info("model starting fresh",
			applogger.String("run_id", a.d.Runner.RunID()),
			applogger.Int("horizons", a.d.Runner.Horizons()),
		)
	}

	if a.d.Pipeline != nil {
		a.d.Pipeline.Start(ctx)
	}

	if a.d.Consumer != nil && a.d.Handler != nil {
		a.d.Consumer.RegisterHandler(a.d.Handler)
		if err := a.d.Consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.d.Handler.Topic()))
	}

	if a.d.Collector != nil {
		if err := a.d.Collector.Start(ctx); err != nil {
			return err
		}
		a.log.Info("metric feed started", applogger.String("url", a.cfg.Feed.URL))
	}

	opts := []xhttp.ServerOption{
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	}
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	opts = append(opts, xhttp.WithMetrics(metricsPath, nil, nil))
	if a.cfg.Server.RateLimit.Enabled && a.d.Limiter != nil {
		opts = append(opts, xhttp.WithMiddleware(mid.RateLimit(a.d.Limiter, a.cfg.Server.RateLimit.RPS, a.cfg.Server.RateLimit.Burst)))
		go a.pruneLimiter()
	}
	a.httpServer = xhttp.NewServer(a.d.HTTP, opts...)
	return a.httpServer.Start()
}

func (a *App) pruneLimiter() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-a.stopPrune:
			return
		case <-t.C:
			a.d.Limiter.Prune(10 * time.Minute)
		}
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		a.log.Error("startup failed", applogger.Error(err))
		_ = a.Shutdown(context.Background())
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*a.cfg.Server.ShutdownTimeout)
	defer stop()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops intake first, then flushes state and closes clients.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() { err = a.shutdown(ctx) })
	return err
}

func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down")
	close(a.stopPrune)

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.d.Collector != nil {
		if err := a.d.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.d.Consumer != nil {
		if err := a.d.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if !a.cfg.Model.DisableTraining {
		if err := a.d.Runner.Save(ctx); err != nil {
			a.log.Error("final snapshot failed", applogger.Error(err))
		}
	}

	if a.d.Pipeline != nil {
		if err := a.d.Pipeline.Stop(ctx); err != nil {
			a.log.Warn("result pipeline drain error", applogger.Error(err))
		}
	}
	if a.d.Processor != nil {
		a.d.Processor.Close()
	}
	if a.d.Snapshots != nil {
		if err := a.d.Snapshots.Close(); err != nil {
			a.log.Warn("snapshot store close error", applogger.Error(err))
		}
	}

	// collector publishes through the producer, so it goes first
	a.log.RemoveCollector()
	if a.d.Producer != nil {
		if err := a.d.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.d.CHClient != nil {
		if err := a.d.CHClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
