package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/overseer"
	"StagAlgo/internal/repository"
	"StagAlgo/internal/search"
	"StagAlgo/internal/store"
	"StagAlgo/internal/usecase"
	pcache "StagAlgo/pkg/cache"
	pkgch "StagAlgo/pkg/clickhouse"
	"StagAlgo/pkg/config"
	xhttp "StagAlgo/pkg/http"
	pkgkafka "StagAlgo/pkg/kafka"
	applogger "StagAlgo/pkg/logger"
	"StagAlgo/pkg/queue"
	"StagAlgo/pkg/scheduler"
)

// Components are the long-lived parts of the application. Optional
// infrastructure (ClickHouse, Kafka, Redis, the live feed) is nil when
// disabled in config.
type Components struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Scheduler scheduler.Scheduler
	Store     *store.Store
	Overseer  *overseer.Overseer
	Search    *search.Service
	Relay     *usecase.Relay
	Candles   *usecase.CandlesUseCase
	Handler   xhttp.Handler

	Feed       *usecase.FeedCollector
	Consumer   *pkgkafka.Consumer
	Ingest     *usecase.IngestHandler
	Producer   *pkgkafka.Producer
	ClickHouse *pkgch.Client
	Mirror     *repository.ClickHouseMirror
	Redis      *pcache.RedisCache
	Queue      *queue.RedisQueue
}

// App encapsulates the entire application lifecycle.
type App struct {
	c          Components
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(c Components) *App {
	if c.Logger == nil {
		c.Logger = applogger.Nop()
	}
	return &App{c: c, cfg: c.Config, l: c.Logger.With("app")}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) start(ctx context.Context) error {
	if a.c.Mirror != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := a.c.Mirror.Init(initCtx)
		cancel()
		if err != nil {
			a.l.Warn("clickhouse schema init failed", applogger.Error(err))
		}
	}

	if err := a.c.Store.Init(); err != nil {
		return err
	}
	a.warmup(ctx)

	a.c.Overseer.Start()
	a.c.Search.Start()
	a.c.Relay.Start()

	if a.c.Queue != nil {
		if err := a.c.Queue.Start(ctx); err != nil {
			return err
		}
		a.l.Info("job queue started", applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.c.Consumer != nil && a.c.Ingest != nil {
		a.c.Consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook()))
		a.c.Consumer.RegisterHandler(a.c.Ingest)
		go func() {
			if err := a.c.Consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.c.Ingest.Topic()))
	}

	if a.c.Feed != nil {
		go func() {
			if err := a.c.Feed.Start(ctx); err != nil {
				a.l.Error("feed collector error", applogger.Error(err))
				return
			}
			a.l.Info("feed collector started", applogger.Strings("symbols", a.cfg.Finnhub.Symbols))
		}()
	}

	a.httpServer = xhttp.NewServer(a.c.Handler,
		xhttp.WithAddr(a.cfg.Server.Host, a.cfg.Server.Port),
		xhttp.WithSlowThreshold(a.cfg.Server.SlowThreshold),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		xhttp.WithLogger(a.c.Logger),
	)
	return a.httpServer.Start()
}

// warmup replays the mirrored daily candles of the configured symbols so
// indicators are available before the first live bar.
func (a *App) warmup(ctx context.Context) {
	if a.c.Mirror == nil || len(a.cfg.Finnhub.Symbols) == 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := a.c.Candles.Warmup(wctx, a.c.Mirror, a.cfg.Finnhub.Symbols, models.TFD1, a.cfg.ClickHouse.WarmupLimit)
	if err != nil {
		a.l.Warn("candle warm-up incomplete", applogger.Error(err))
	}
	a.l.Info("candle warm-up done", applogger.Int("candles", n))
}

// shutdown gracefully stops all services.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.l.Info("shutting down")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Feed != nil {
		if err := a.c.Feed.Shutdown(ctx); err != nil {
			a.l.Warn("feed collector stop error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(ctx); err != nil {
			a.l.Warn("job queue stop error", applogger.Error(err))
		}
	}

	a.c.Search.Shutdown()
	a.c.Overseer.Shutdown()
	a.c.Relay.Shutdown(ctx)
	a.c.Store.Shutdown()
	a.c.Scheduler.Stop()

	// The relay's final flush is done; the sinks can go.
	a.c.Logger.RemoveCollector()
	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.l.Warn("redis close error", applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
}
