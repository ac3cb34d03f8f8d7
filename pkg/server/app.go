package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"OptionPulse/internal/domain/repository"
	"OptionPulse/internal/handler/api"
	mid "OptionPulse/internal/middleware"
	"OptionPulse/internal/service/ws"
	"OptionPulse/internal/usecase"
	"OptionPulse/pkg/cache"
	pkgch "OptionPulse/pkg/clickhouse"
	"OptionPulse/pkg/config"
	xhttp "OptionPulse/pkg/http"
	applogger "OptionPulse/pkg/logger"
	"OptionPulse/pkg/queue"
)

// Deps carries everything the application lifecycle owns.
type Deps struct {
	Cfg       *config.Config
	Log       *applogger.Logger
	Scheduler *usecase.Scheduler
	Orch      *usecase.Orchestrator
	Pipeline  *mid.PersistPipeline
	Consumer  *queue.RedisQueue
	Hub       *ws.Hub
	Creds     repository.CredentialStore
	Settings  repository.SettingsStore
	SignalLog repository.SignalLog
	SnapLog   repository.SnapshotLog
	Publisher repository.Publisher
	Redis     *cache.RedisCache
	ClickHse  *pkgch.Client
}

// App encapsulates the application lifecycle: the poll scheduler, the
// write-behind persistence pipeline, the queue consumer and the HTTP/WS
// surface.
type App struct {
	d          Deps
	httpServer *xhttp.Server
}

// New creates the application from its wired dependencies.
func New(d Deps) *App {
	return &App{d: d}
}

// Run starts everything and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.d.Log
	cfg := a.d.Cfg

	a.d.Pipeline.Start()

	// Queue consumer lands fired signals in ClickHouse.
	if a.d.Consumer != nil {
		if err := a.d.Consumer.Start(); err != nil {
			l.Error("queue consumer start", applogger.Error(err))
			return err
		}
		a.d.Consumer.StartRetryProcessor()
	}

	go func() {
		if err := a.d.Scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			l.Error("scheduler exited", applogger.Error(err))
		}
	}()

	handler := api.NewDashboardHandler(l, a.d.Orch, a.d.Creds, a.d.Settings,
		a.d.SignalLog, a.d.SnapLog, a.d.Hub)

	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	a.httpServer = xhttp.NewServer(handler, opts...)

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start", applogger.Error(err))
		return err
	}
	l.Info("server started",
		applogger.Int("port", cfg.Server.Port),
		applogger.String("environment", cfg.Environment))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown stops services in dependency order: intake first, sinks last.
func (a *App) shutdown() error {
	l := a.d.Log
	cfg := a.d.Cfg

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			l.Warn("http shutdown", applogger.Error(err))
		}
	}

	a.d.Hub.Close()

	// Drain buffered snapshots before the sinks go away.
	a.d.Pipeline.Stop()

	if a.d.Consumer != nil {
		if err := a.d.Consumer.Stop(shutdownCtx); err != nil {
			l.Warn("queue consumer stop", applogger.Error(err))
		}
	}

	// Flush aggregated error logs while the Kafka producer is still up.
	l.RemoveCollector()

	if a.d.Publisher != nil {
		if err := a.d.Publisher.Close(); err != nil {
			l.Warn("kafka close", applogger.Error(err))
		}
	}
	if a.d.ClickHse != nil {
		if err := a.d.ClickHse.Close(); err != nil {
			l.Warn("clickhouse close", applogger.Error(err))
		}
	}
	if a.d.Redis != nil {
		if err := a.d.Redis.Close(); err != nil {
			l.Warn("redis close", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
