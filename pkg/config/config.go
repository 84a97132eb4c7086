package config

import (
	"fmt"
	"os"
	"time"

	"StagAlgo/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RateLimit       float64       `yaml:"rate_limit" default:"5"` // trade submissions per second per user
		RateBurst       int           `yaml:"rate_burst" default:"10"`
	} `yaml:"server"`
	Log          logger.Config `yaml:"log"`
	LogCollector struct {
		Enabled   bool          `yaml:"enabled"`
		Topic     string        `yaml:"topic" default:"stag.logs"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Threshold int           `yaml:"threshold" default:"100"`
	} `yaml:"log_collector"`
	Store struct {
		IndicatorInterval   time.Duration `yaml:"indicator_interval" default:"5m"`
		RiskInterval        time.Duration `yaml:"risk_interval" default:"60s"`
		RetentionInterval   time.Duration `yaml:"retention_interval" default:"1h"`
		RollupInterval      time.Duration `yaml:"rollup_interval" default:"24h"`
		IntradayRetention   time.Duration `yaml:"intraday_retention" default:"2160h"`
		DailyRetention      time.Duration `yaml:"daily_retention" default:"17520h"`
		IndicatorRetention  time.Duration `yaml:"indicator_retention" default:"2160h"`
		RiskRetention       time.Duration `yaml:"risk_retention" default:"17520h"`
		PositionRiskHistory time.Duration `yaml:"position_risk_retention" default:"2160h"`
		SignalRetention     time.Duration `yaml:"signal_retention" default:"2160h"`
		DegradedAfter       time.Duration `yaml:"degraded_after" default:"10m"`
		UnhealthyAfter      time.Duration `yaml:"unhealthy_after" default:"60m"`
		TradeWindow         time.Duration `yaml:"trade_window" default:"1h"`
	} `yaml:"store"`
	Validator struct {
		MaxPositionPercent       float64 `yaml:"max_position_percent" default:"0.10" validate:"gt=0,lte=1"`
		AbsoluteMaxDollars       float64 `yaml:"absolute_max_dollars" default:"50000" validate:"gt=0"`
		MaxDailyLossPercent      float64 `yaml:"max_daily_loss_percent" default:"0.02" validate:"gt=0,lte=1"`
		MinPrice                 float64 `yaml:"min_price" default:"5"`
		MaxSectorPercent         float64 `yaml:"max_sector_percent" default:"0.30" validate:"gt=0,lte=1"`
		MaxBeta                  float64 `yaml:"max_beta" default:"2.0" validate:"gt=0"`
		MaxDailyTrades           int     `yaml:"max_daily_trades" default:"10" validate:"gt=0"`
		MaxHourlyTrades          int     `yaml:"max_hourly_trades" default:"4" validate:"gt=0"`
		MinResearchMinutes       float64 `yaml:"min_research_minutes" default:"15"`
		CooldownMinutesAfterLoss float64 `yaml:"cooldown_minutes_after_loss" default:"30"`
		MaxConsecutiveTrades     int     `yaml:"max_consecutive_trades" default:"5" validate:"gt=0"`
		LearningRate             float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0,lte=1"`
		// ConsecutiveGap is the pause that ends a user's run of trades.
		ConsecutiveGap time.Duration `yaml:"consecutive_gap" default:"15m"`
	} `yaml:"validator"`
	Overseer struct {
		ScanInterval      time.Duration `yaml:"scan_interval" default:"15s"`
		CriticalWindow    time.Duration `yaml:"critical_window" default:"15m"`
		MaxSpreadPct      float64       `yaml:"max_spread_pct" default:"0.05"`
		MinVolumeRatio    float64       `yaml:"min_volume_ratio" default:"0.30"`
		MaxVolatility     float64       `yaml:"max_volatility" default:"0.50"`
		MaxTradesPerHour  int           `yaml:"max_trades_per_hour" default:"3"`
		UnrealizedLossPct float64       `yaml:"unrealized_loss_pct" default:"0.15"`
	} `yaml:"overseer"`
	Search struct {
		Backend       string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
		CacheTTL      time.Duration `yaml:"cache_ttl" default:"5m"`
		AlertInterval time.Duration `yaml:"alert_interval" default:"5m"`
	} `yaml:"search"`
	Ingest struct {
		StaleAfter    time.Duration     `yaml:"stale_after" default:"300s"`
		MinVolume     float64           `yaml:"min_volume" default:"1000"`
		WideSpreadPct float64           `yaml:"wide_spread_pct" default:"0.02"`
		MaxTradeRPS   int               `yaml:"max_trade_rps" default:"50"`
		BufferSize    int               `yaml:"buffer_size" default:"2000"`
		Aliases       map[string]string `yaml:"aliases"`
	} `yaml:"ingest"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		IngestTopic  string   `yaml:"ingest_topic" default:"stag.repository.events"`
		EventsTopic  string   `yaml:"events_topic" default:"stag.core.events"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"stag-core"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"10000"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"stag"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		MirrorBuffer     int           `yaml:"mirror_buffer" default:"4096"`
		FlushInterval    time.Duration `yaml:"flush_interval" default:"2s"`
		BatchSize        int           `yaml:"batch_size" default:"500"`
		WarmupLimit      int           `yaml:"warmup_limit" default:"365"`
	} `yaml:"clickhouse"`
	Redis struct {
		Host         string `yaml:"host" default:"localhost"`
		Port         int    `yaml:"port" default:"6379"`
		Password     string `yaml:"password"`
		DB           int    `yaml:"db"`
		Prefix       string `yaml:"prefix" default:"stag"`
		PoolSize     int    `yaml:"pool_size" default:"10"`
		MinIdleConns int    `yaml:"min_idle_conns" default:"2"`
	} `yaml:"redis"`
	Queue struct {
		Enabled      bool          `yaml:"enabled"`
		Workers      int           `yaml:"workers" default:"2" validate:"gte=1"`
		RetryLimit   int           `yaml:"retry_limit" default:"3"`
		RetryDelay   time.Duration `yaml:"retry_delay" default:"10s"`
		PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
	} `yaml:"queue"`
	Finnhub struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
	} `yaml:"finnhub"`
	Execution struct {
		BaseURL       string        `yaml:"base_url"`
		Timeout       time.Duration `yaml:"timeout" default:"6s"`
		RatePerSecond float64       `yaml:"rate_per_second" default:"5"`
		Burst         int           `yaml:"burst" default:"5"`
	} `yaml:"execution"`
	MarketData struct {
		BaseURL  string        `yaml:"base_url"`
		Timeout  time.Duration `yaml:"timeout" default:"6s"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"10m"`
	} `yaml:"market_data"`
}

// envOverrides are read from STAG_* environment variables.
type envOverrides struct {
	Environment        string   `envconfig:"ENVIRONMENT"`
	HTTPPort           int      `envconfig:"HTTP_PORT"`
	LogLevel           string   `envconfig:"LOG_LEVEL"`
	FinnhubAPIKey      string   `envconfig:"FINNHUB_API_KEY"`
	Symbols            []string `envconfig:"SYMBOLS"`
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
	ClickHouseHost     string   `envconfig:"CLICKHOUSE_HOST"`
	ClickHousePassword string   `envconfig:"CLICKHOUSE_PASSWORD"`
	RedisHost          string   `envconfig:"REDIS_HOST"`
	RedisPassword      string   `envconfig:"REDIS_PASSWORD"`
	ExecutionURL       string   `envconfig:"EXECUTION_URL"`
	MarketDataURL      string   `envconfig:"MARKET_DATA_URL"`
}

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "STAG"

var validate = validator.New()

// Default returns a Config populated from struct defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// An empty path starts from the defaults.
func LoadWithEnv(path string) (*Config, error) {
	load := Load
	if path == "" {
		load = func(string) (*Config, error) { return Default() }
	}
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overlays STAG_* environment variables that are set.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	setString(&c.Environment, o.Environment)
	setString(&c.Log.Level, o.LogLevel)
	setString(&c.Finnhub.APIKey, o.FinnhubAPIKey)
	setString(&c.ClickHouse.Host, o.ClickHouseHost)
	setString(&c.ClickHouse.Password, o.ClickHousePassword)
	setString(&c.Redis.Host, o.RedisHost)
	setString(&c.Redis.Password, o.RedisPassword)
	setString(&c.Execution.BaseURL, o.ExecutionURL)
	setString(&c.MarketData.BaseURL, o.MarketDataURL)
	if o.HTTPPort > 0 {
		c.Server.Port = o.HTTPPort
	}
	if len(o.Symbols) > 0 {
		c.Finnhub.Symbols = o.Symbols
	}
	if len(o.KafkaBrokers) > 0 {
		c.Kafka.Brokers = o.KafkaBrokers
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Finnhub.Enabled {
		if c.Finnhub.APIKey == "" {
			return fmt.Errorf("finnhub.api_key is required when finnhub is enabled")
		}
		if len(c.Finnhub.Symbols) == 0 {
			return fmt.Errorf("finnhub.symbols cannot be empty when finnhub is enabled")
		}
	}
	if c.Store.UnhealthyAfter < c.Store.DegradedAfter {
		return fmt.Errorf("store.unhealthy_after must be >= store.degraded_after")
	}
	return nil
}
