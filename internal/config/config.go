package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Hub       HubConfig       `mapstructure:"hub"`
	Retention RetentionConfig `mapstructure:"retention"`
	Cron      CronConfig      `mapstructure:"cron"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
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
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
	QuoteTTL   time.Duration `mapstructure:"quote_ttl"`
}

type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	WSURL             string        `mapstructure:"ws_url"`
	HistoricalTimeout time.Duration `mapstructure:"historical_timeout"`
	QuoteTimeout      time.Duration `mapstructure:"quote_timeout"`
	BackoffMin        time.Duration `mapstructure:"backoff_min"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RawEventAudit     bool          `mapstructure:"raw_event_audit"`
}

type HubConfig struct {
	SendBuffer int `mapstructure:"send_buffer"`
}

type RetentionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Windows maps timeframe to how long its bars are kept; zero
	// means keep forever.
	Windows          map[string]time.Duration `mapstructure:"windows"`
	RawEventWindow   time.Duration            `mapstructure:"raw_event_window"`
	IndicatorsFollow bool                     `mapstructure:"indicators_follow"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Retention string `mapstructure:"retention"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
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
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.history_ttl", "5m")
	v.SetDefault("redis.quote_ttl", "5s")
	v.SetDefault("upstream.base_url", "http://localhost:8000")
	v.SetDefault("upstream.ws_url", "")
	v.SetDefault("upstream.historical_timeout", "60s")
	v.SetDefault("upstream.quote_timeout", "10s")
	v.SetDefault("upstream.backoff_min", "1s")
	v.SetDefault("upstream.backoff_max", "30s")
	v.SetDefault("upstream.heartbeat_interval", "20s")
	v.SetDefault("upstream.raw_event_audit", false)
	v.SetDefault("hub.send_buffer", 64)
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.windows", map[string]string{
		"1m":  "720h",
		"5m":  "2160h",
		"15m": "4320h",
		"30m": "4320h",
		"1h":  "8760h",
		"4h":  "17520h",
		"8h":  "17520h",
		"1d":  "0",
	})
	v.SetDefault("retention.raw_event_window", "168h")
	v.SetDefault("retention.indicators_follow", true)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.retention", "@daily")

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
