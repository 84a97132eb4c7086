package di

import (
	"fmt"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/domain/repository"
	"StagAlgo/internal/handler/api"
	"StagAlgo/internal/ingest"
	mid "StagAlgo/internal/middleware"
	"StagAlgo/internal/overseer"
	internalrepo "StagAlgo/internal/repository"
	"StagAlgo/internal/search"
	svccache "StagAlgo/internal/service/cache"
	"StagAlgo/internal/service/finnhub"
	svcmetrics "StagAlgo/internal/service/metrics"
	"StagAlgo/internal/service/ratelimit"
	"StagAlgo/internal/services/remote"
	"StagAlgo/internal/store"
	"StagAlgo/internal/usecase"
	"StagAlgo/internal/validator"
	pcache "StagAlgo/pkg/cache"
	pkgch "StagAlgo/pkg/clickhouse"
	"StagAlgo/pkg/config"
	"StagAlgo/pkg/eventbus"
	xhttp "StagAlgo/pkg/http"
	pkgkafka "StagAlgo/pkg/kafka"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/metrics"
	"StagAlgo/pkg/queue"
	"StagAlgo/pkg/scheduler"
	"StagAlgo/pkg/server"
	"StagAlgo/pkg/util"
)

// ProvideLogger builds the root logger. When the log collector is enabled
// and Kafka is up, warn and error entries are shipped as digests.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.LogCollector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.LogCollector.Interval,
			CountThreshold: cfg.LogCollector.Threshold,
			Topic:          cfg.LogCollector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

func ProvideScheduler() scheduler.Scheduler { return scheduler.NewTicker() }

func ProvideBus() *eventbus.Bus { return eventbus.New() }

// ProvideClickHouseClient connects to ClickHouse, or returns nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithInsertMode(pkgch.ParseInsertMode(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync)),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideClickHouseMirror wraps the client; nil when ClickHouse is disabled.
func ProvideClickHouseMirror(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) *internalrepo.ClickHouseMirror {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseMirror(ch, l).WithBatchSize(cfg.ClickHouse.BatchSize)
}

// ProvideMirror exposes the mirror to the relay. A nil mirror must stay a
// nil interface.
func ProvideMirror(m *internalrepo.ClickHouseMirror) repository.Mirror {
	if m == nil {
		return nil
	}
	return m
}

// ProvideKafkaProducer creates a Kafka producer, or returns nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher routes domain events to EventsTopic.<kind>.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates the ingest consumer, or returns nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedis connects to Redis when a component needs it: a redis-backed
// search cache or the job queue.
func ProvideRedis(cfg *config.Config) (*pcache.RedisCache, error) {
	if cfg.Search.Backend == "memory" && !cfg.Queue.Enabled {
		return nil, nil
	}
	rc, err := pcache.NewRedisCache(
		pcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns),
		pcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideSearchCache picks the search cache backend.
func ProvideSearchCache(cfg *config.Config, rc *pcache.RedisCache) pcache.Service {
	switch cfg.Search.Backend {
	case "redis":
		return rc
	case "layered":
		return pcache.NewLayeredCache(rc, pcache.WithLayeredMemoryTTL(cfg.Search.CacheTTL))
	default:
		return pcache.NewMemoryCache()
	}
}

func ProvideStore(cfg *config.Config, bus *eventbus.Bus, sched scheduler.Scheduler, l *logger.Logger, m repository.Metrics) *store.Store {
	s := cfg.Store
	return store.New(bus, sched,
		store.WithOptions(store.Options{
			IndicatorInterval:     s.IndicatorInterval,
			RiskInterval:          s.RiskInterval,
			RetentionInterval:     s.RetentionInterval,
			RollupInterval:        s.RollupInterval,
			IntradayRetention:     s.IntradayRetention,
			DailyRetention:        s.DailyRetention,
			IndicatorRetention:    s.IndicatorRetention,
			RiskRetention:         s.RiskRetention,
			PositionRiskRetention: s.PositionRiskHistory,
			SignalRetention:       s.SignalRetention,
			DegradedAfter:         s.DegradedAfter,
			UnhealthyAfter:        s.UnhealthyAfter,
			TradeWindow:           s.TradeWindow,
		}),
		store.WithLogger(l),
		store.WithMetrics(m),
	)
}

func ProvideValidator(cfg *config.Config, st *store.Store, bus *eventbus.Bus, sched scheduler.Scheduler, l *logger.Logger, m repository.Metrics) *validator.Validator {
	v := cfg.Validator
	return validator.New(st, bus, sched,
		validator.WithLimits(validator.Limits{
			MaxPositionPercent:       v.MaxPositionPercent,
			AbsoluteMaxDollars:       v.AbsoluteMaxDollars,
			MaxDailyLossPercent:      v.MaxDailyLossPercent,
			MinPrice:                 v.MinPrice,
			MaxSectorPercent:         v.MaxSectorPercent,
			MaxBeta:                  v.MaxBeta,
			MaxDailyTrades:           v.MaxDailyTrades,
			MaxHourlyTrades:          v.MaxHourlyTrades,
			MinResearchMinutes:       v.MinResearchMinutes,
			CooldownMinutesAfterLoss: v.CooldownMinutesAfterLoss,
			MaxConsecutiveTrades:     v.MaxConsecutiveTrades,
		}),
		validator.WithLearningRate(v.LearningRate),
		validator.WithLogger(l),
		validator.WithMetrics(m),
	)
}

func ProvideOverseer(cfg *config.Config, st *store.Store, bus *eventbus.Bus, sched scheduler.Scheduler, l *logger.Logger, m repository.Metrics) *overseer.Overseer {
	o := overseer.DefaultOptions()
	c := cfg.Overseer
	o.ScanInterval = c.ScanInterval
	o.CriticalWindow = c.CriticalWindow
	o.MaxSpreadPct = c.MaxSpreadPct
	o.MinVolumeRatio = c.MinVolumeRatio
	o.MaxVolatility = c.MaxVolatility
	o.MaxTradesPerHour = c.MaxTradesPerHour
	o.UnrealizedLossPct = c.UnrealizedLossPct
	return overseer.New(st, bus, sched, overseer.WithOptions(o), overseer.WithLogger(l), overseer.WithMetrics(m))
}

func ProvideSearch(cfg *config.Config, st *store.Store, bus *eventbus.Bus, sched scheduler.Scheduler, c pcache.Service, l *logger.Logger, m repository.Metrics) *search.Service {
	o := search.DefaultOptions()
	o.CacheTTL = cfg.Search.CacheTTL
	o.AlertInterval = cfg.Search.AlertInterval
	return search.New(st, bus, sched, c, search.WithOptions(o), search.WithLogger(l), search.WithMetrics(m))
}

func ProvideCleaner(cfg *config.Config, st *store.Store, bus *eventbus.Bus, sched scheduler.Scheduler, l *logger.Logger, m repository.Metrics) *ingest.Cleaner {
	o := ingest.DefaultOptions()
	o.StaleAfter = cfg.Ingest.StaleAfter
	o.MinVolume = cfg.Ingest.MinVolume
	o.WideSpreadPct = cfg.Ingest.WideSpreadPct
	o.Aliases = cfg.Ingest.Aliases
	return ingest.New(st, bus, sched, ingest.WithOptions(o), ingest.WithLogger(l), ingest.WithMetrics(m))
}

func ProvideRelay(cfg *config.Config, bus *eventbus.Bus, sched scheduler.Scheduler, pub repository.Publisher, mirror repository.Mirror, l *logger.Logger, m repository.Metrics) *usecase.Relay {
	return usecase.NewRelay(bus, sched, pub, mirror, usecase.RelayOptions{
		FlushInterval: cfg.ClickHouse.FlushInterval,
		MaxPending:    cfg.ClickHouse.MirrorBuffer,
		WriteTimeout:  cfg.ClickHouse.WriteTimeout,
	}, l, m)
}

func ProvideExecutor(cfg *config.Config, l *logger.Logger) *remote.ExecutionClient {
	return remote.NewExecutionClient(cfg, l)
}

// ProvideCandleFetcher keeps its fallback copies in Redis when available.
func ProvideCandleFetcher(cfg *config.Config, rc *pcache.RedisCache, l *logger.Logger) *remote.CandleClient {
	var bc svccache.BytesCache
	if rc != nil {
		bc = svccache.NewServiceBytes(rc)
	}
	return remote.NewCandleClient(cfg, bc, l)
}

func ProvideCandles(st *store.Store, fetcher *remote.CandleClient, cleaner *ingest.Cleaner) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(st, fetcher, cleaner)
}

// ProvideQueue starts nothing; it registers the backfill job and hands the
// queue to the candle use case. Nil when the queue is disabled.
func ProvideQueue(cfg *config.Config, rc *pcache.RedisCache, candles *usecase.CandlesUseCase, l *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(rc.Client(), queue.QueueConfig{
		Workers:      cfg.Queue.Workers,
		RetryLimit:   cfg.Queue.RetryLimit,
		RetryDelay:   cfg.Queue.RetryDelay,
		PollInterval: cfg.Queue.PollInterval,
	},
		queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"),
		queue.WithLogger(l),
	)
	q.RegisterJob(usecase.NewBackfillJob(candles))
	candles.SetQueue(q)
	return q
}

func ProvideTradeGate(cfg *config.Config, st *store.Store, v *validator.Validator, ov *overseer.Overseer, exec *remote.ExecutionClient, l *logger.Logger, m repository.Metrics) *usecase.TradeGate {
	return usecase.NewTradeGate(st, v, ov, exec,
		usecase.WithGateLogger(l),
		usecase.WithGateMetrics(m),
		usecase.WithConsecutiveGap(cfg.Validator.ConsecutiveGap),
	)
}

func ProvideSubmitLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst)
}

func ProvideHTTPHandler(
	l *logger.Logger,
	st *store.Store,
	candles *usecase.CandlesUseCase,
	ov *overseer.Overseer,
	gate *usecase.TradeGate,
	v *validator.Validator,
	limiter *ratelimit.Limiter,
	sv *search.Service,
) xhttp.Handler {
	return api.NewHandler(
		api.NewMarketHandler(l, st, candles, ov),
		api.NewTradeHandler(l, gate, v, limiter),
		api.NewSearchHandler(l, sv),
	)
}

func ProvideIngestHandler(cfg *config.Config, cleaner *ingest.Cleaner, m repository.Metrics) *usecase.IngestHandler {
	return usecase.NewIngestHandler(cfg.Kafka.IngestTopic, cleaner, m)
}

// ProvideFeedCollector builds the live Finnhub feed; nil when disabled. Live
// trades always reach the cleaner and are archived to Kafka when a
// publisher exists.
func ProvideFeedCollector(cfg *config.Config, cleaner *ingest.Cleaner, pub repository.Publisher, l *logger.Logger, m repository.Metrics) *usecase.FeedCollector {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	stream := finnhub.New(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		cfg.Finnhub.Symbols,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		finnhub.WithLogger(l),
	)
	var fwd mid.Forwarder
	if pub != nil {
		fwd = usecase.NewTradeArchiver(pub, m)
	}
	pipe := mid.NewRealtimePipeline(cleaner, fwd, m,
		mid.WithMaxRPS(float64(cfg.Ingest.MaxTradeRPS)),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithTransform(normalizeTrade),
		mid.WithPipelineLogger(l),
	)
	return usecase.NewFeedCollector(stream, pipe, m, l)
}

// normalizeTrade strips exchange prefixes such as "BINANCE:" from feed symbols.
func normalizeTrade(t *models.Trade) *models.Trade {
	t.Symbol = util.NormalizeSymbol(t.Symbol)
	return t
}

// ProvideApp creates the application server.
func ProvideApp(c server.Components) *server.App {
	return server.New(c)
}
