package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	Universe   UniverseConfig   `mapstructure:"universe"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Macro      MacroConfig      `mapstructure:"macro"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	AuthToken string `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Pipeline is a 6-field cron expression (with seconds).
	Pipeline   string `mapstructure:"pipeline"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// UniverseConfig drives the screener-based registry refresh.
type UniverseConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	ScannerURL           string        `mapstructure:"scanner_url"`
	Timeout              time.Duration `mapstructure:"timeout"`
	Exchanges            []string      `mapstructure:"exchanges"`
	MaxStocksPerExchange int           `mapstructure:"max_stocks_per_exchange"`
	MinMarketCap         float64       `mapstructure:"min_market_cap"`
	MinAvgVolume         float64       `mapstructure:"min_avg_volume"`
	PruneDeparted        bool          `mapstructure:"prune_departed"`
}

// MarketDataConfig drives the daily bar provider and the sync planner.
type MarketDataConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BenchmarkTicker string        `mapstructure:"benchmark_ticker"`
	YearsBack       int           `mapstructure:"years_back"`
	TailDays        int           `mapstructure:"tail_days"`
	PriceTolerance  float64       `mapstructure:"price_tolerance"`
	Workers         int           `mapstructure:"workers"`
	TickerTimeout   time.Duration `mapstructure:"ticker_timeout"`
	InsertBatchSize int           `mapstructure:"insert_batch_size"`
}

type MacroConfig struct {
	BaseURL   string            `mapstructure:"base_url"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	APIKey    string            `mapstructure:"api_key"`
	StartDate string            `mapstructure:"start_date"`
	Series    map[string]string `mapstructure:"series"`
}

type AnalyticsConfig struct {
	VolumeAvgWindow   int      `mapstructure:"volume_avg_window"`
	BreakoutMultiple  float64  `mapstructure:"breakout_multiple"`
	ROCWindow         int      `mapstructure:"roc_window"`
	GroupExclusions   []string `mapstructure:"group_exclusions"`
	AnalyticsBatchLen int      `mapstructure:"analytics_batch_len"`
}

type PipelineConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type NotifyConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("cron.enabled", true)
	// Weekdays at 21:30 UTC, after the US close settles.
	v.SetDefault("cron.pipeline", "0 30 21 * * 1-5")
	v.SetDefault("cron.run_on_start", false)
	v.SetDefault("universe.enabled", true)
	v.SetDefault("universe.scanner_url", "https://scanner.tradingview.com/america/scan")
	v.SetDefault("universe.timeout", "30s")
	v.SetDefault("universe.exchanges", []string{"AMEX", "NASDAQ", "NYSE"})
	v.SetDefault("universe.max_stocks_per_exchange", 5000)
	v.SetDefault("universe.min_market_cap", 300_000_000)
	v.SetDefault("universe.min_avg_volume", 500_000)
	v.SetDefault("universe.prune_departed", true)
	v.SetDefault("market_data.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market_data.timeout", "20s")
	v.SetDefault("market_data.benchmark_ticker", "^GSPC")
	v.SetDefault("market_data.years_back", 10)
	v.SetDefault("market_data.tail_days", 5)
	v.SetDefault("market_data.price_tolerance", 0.001)
	v.SetDefault("market_data.workers", 8)
	v.SetDefault("market_data.ticker_timeout", "45s")
	v.SetDefault("market_data.insert_batch_size", 500)
	v.SetDefault("macro.base_url", "https://api.stlouisfed.org")
	v.SetDefault("macro.timeout", "20s")
	v.SetDefault("macro.api_key", "")
	v.SetDefault("macro.start_date", "2000-01-01")
	v.SetDefault("macro.series", map[string]string{
		"interest_rate":    "FEDFUNDS",
		"yield_spread":     "T10Y2Y",
		"volatility_index": "VIXCLS",
	})
	v.SetDefault("analytics.volume_avg_window", 50)
	v.SetDefault("analytics.breakout_multiple", 1.5)
	v.SetDefault("analytics.roc_window", 20)
	v.SetDefault("analytics.group_exclusions", []string{"Unknown", "Index", "Market Index"})
	v.SetDefault("analytics.analytics_batch_len", 500)
	v.SetDefault("pipeline.enabled", true)
	v.SetDefault("notify.base_url", "")
	v.SetDefault("notify.token", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
