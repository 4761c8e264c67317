package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/jobs/visit"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

const envPrefix = "VIEWCOUNTER"

type ProxyMode string

const (
	ProxyModeNone   ProxyMode = "none"
	ProxyModeStatic ProxyMode = "static"
	ProxyModePooled ProxyMode = "pooled-authenticated"
	ProxyModeOpen   ProxyMode = "pooled-open"
)

const (
	ExecutorHTTP    = "http"
	ExecutorBrowser = "browser"
)

type Config struct {
	Targets        []string        `mapstructure:"targets" json:"targets"`
	TargetsFile    string          `mapstructure:"targetsFile" json:"targetsFile,omitempty"`
	BlockedHosts   []string        `mapstructure:"blockedHosts" json:"blockedHosts,omitempty"`
	TotalUnits     int             `mapstructure:"totalUnits" json:"totalUnits"`
	Concurrency    int             `mapstructure:"concurrency" json:"concurrency"`
	PerUnitTimeout time.Duration   `mapstructure:"perUnitTimeout" json:"perUnitTimeout"`
	MaxRetries     int             `mapstructure:"maxRetries" json:"maxRetries"`
	BackoffDelays  []time.Duration `mapstructure:"backoffDelays" json:"backoffDelays,omitempty"`

	Backoff struct {
		Base   time.Duration `mapstructure:"base" json:"base"`
		Factor float64       `mapstructure:"factor" json:"factor"`
		Max    time.Duration `mapstructure:"max" json:"max"`
	} `mapstructure:"backoff" json:"backoff"`

	Delay struct {
		Min time.Duration `mapstructure:"min" json:"min"`
		Max time.Duration `mapstructure:"max" json:"max"`
	} `mapstructure:"delay" json:"delay"`

	Executor ExecutorConfig `mapstructure:"executor" json:"executor"`
	Proxy    ProxyConfig    `mapstructure:"proxy" json:"proxy"`

	Store struct {
		DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
	} `mapstructure:"store" json:"store"`

	Report struct {
		Format string `mapstructure:"format" json:"format"`
		Output string `mapstructure:"output" json:"output,omitempty"`
	} `mapstructure:"report" json:"report"`

	Log struct {
		Level  string `mapstructure:"level" json:"level"`
		Format string `mapstructure:"format" json:"format"`
	} `mapstructure:"log" json:"log"`
}

type ExecutorConfig struct {
	Kind          string   `mapstructure:"kind" json:"kind"`
	UserAgents    []string `mapstructure:"userAgents" json:"userAgents,omitempty"`
	RespectRobots bool     `mapstructure:"respectRobots" json:"respectRobots"`
	MaxBodyBytes  int64    `mapstructure:"maxBodyBytes" json:"maxBodyBytes"`

	Browser struct {
		Bin      string        `mapstructure:"bin" json:"bin,omitempty"`
		Headless bool          `mapstructure:"headless" json:"headless"`
		DwellMin time.Duration `mapstructure:"dwellMin" json:"dwellMin"`
		DwellMax time.Duration `mapstructure:"dwellMax" json:"dwellMax"`
	} `mapstructure:"browser" json:"browser"`
}

type ProxyConfig struct {
	Mode             ProxyMode            `mapstructure:"mode" json:"mode"`
	Rotation         string               `mapstructure:"rotation" json:"rotation"`
	MaxFetchAttempts int                  `mapstructure:"maxFetchAttempts" json:"maxFetchAttempts"`
	FallbackDirect   bool                 `mapstructure:"fallbackDirect" json:"fallbackDirect"`
	Static           StaticProxyConfig    `mapstructure:"static" json:"static"`
	Sources          []domain.FetchSource `mapstructure:"sources" json:"sources,omitempty"`
	APIKey           string               `mapstructure:"apiKey" json:"apiKey,omitempty"`
	APIKeyParam      string               `mapstructure:"apiKeyParam" json:"apiKeyParam"`
	EmptyRetries     int                  `mapstructure:"emptyRetries" json:"emptyRetries"`
	FetchTimeout     time.Duration        `mapstructure:"fetchTimeout" json:"fetchTimeout"`
	FetchRate        float64              `mapstructure:"fetchRate" json:"fetchRate"`
	Registry         RegistryConfig       `mapstructure:"registry" json:"registry"`
	GeoliteDB        string               `mapstructure:"geoliteDb" json:"geoliteDb,omitempty"`
}

type StaticProxyConfig struct {
	Protocol string `mapstructure:"protocol" json:"protocol,omitempty"`
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" json:"port,omitempty"`
	Username string `mapstructure:"username" json:"username,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
}

type RegistryConfig struct {
	Backend  string `mapstructure:"backend" json:"backend"`
	RedisURL string `mapstructure:"redisUrl" json:"redisUrl,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("targets", []string{})
	v.SetDefault("targetsFile", "")
	v.SetDefault("blockedHosts", []string{})
	v.SetDefault("totalUnits", 1)
	v.SetDefault("concurrency", 1)
	v.SetDefault("perUnitTimeout", 30*time.Second)
	v.SetDefault("maxRetries", 3)
	v.SetDefault("backoffDelays", []time.Duration{})
	v.SetDefault("backoff.base", 200*time.Millisecond)
	v.SetDefault("backoff.factor", 2.0)
	v.SetDefault("backoff.max", 5*time.Second)
	v.SetDefault("delay.min", time.Second)
	v.SetDefault("delay.max", 3*time.Second)

	v.SetDefault("executor.kind", ExecutorHTTP)
	v.SetDefault("executor.userAgents", []string{})
	v.SetDefault("executor.respectRobots", false)
	v.SetDefault("executor.maxBodyBytes", int64(2<<20))
	v.SetDefault("executor.browser.bin", "")
	v.SetDefault("executor.browser.headless", true)
	v.SetDefault("executor.browser.dwellMin", 0)
	v.SetDefault("executor.browser.dwellMax", 0)

	v.SetDefault("proxy.mode", string(ProxyModeNone))
	v.SetDefault("proxy.rotation", "sequential")
	v.SetDefault("proxy.maxFetchAttempts", 5)
	v.SetDefault("proxy.fallbackDirect", false)
	v.SetDefault("proxy.static.protocol", "http")
	v.SetDefault("proxy.static.host", "")
	v.SetDefault("proxy.static.port", 0)
	v.SetDefault("proxy.static.username", "")
	v.SetDefault("proxy.static.password", "")
	v.SetDefault("proxy.apiKey", "")
	v.SetDefault("proxy.apiKeyParam", "api_key")
	v.SetDefault("proxy.emptyRetries", 2)
	v.SetDefault("proxy.fetchTimeout", 20*time.Second)
	v.SetDefault("proxy.fetchRate", 0.0)
	v.SetDefault("proxy.registry.backend", "memory")
	v.SetDefault("proxy.registry.redisUrl", "")
	v.SetDefault("proxy.geoliteDb", "")

	v.SetDefault("store.dsn", "")
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads defaults, then the config file (path, or ./viewcounter.* when
// path is empty and such a file exists), then VIEWCOUNTER_* environment
// variables. Credentials also fall back to their conventional variable names.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("proxy.apiKey", envPrefix+"_PROXY_APIKEY", "PROXY_API_KEY")
	_ = v.BindEnv("proxy.registry.redisUrl", envPrefix+"_PROXY_REGISTRY_REDISURL", "REDIS_URL")
	_ = v.BindEnv("store.dsn", envPrefix+"_STORE_DSN", "DATABASE_DSN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("viewcounter")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.TargetsFile != "" {
		targets, err := readTargetsFile(cfg.TargetsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Targets = append(cfg.Targets, targets...)
	}

	return cfg, nil
}

func readTargetsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	// Invalid lines are kept so validation can name them.
	return support.TargetLines(string(data)), nil
}

// BackoffSchedule returns the configured delays, or a schedule generated from
// the backoff block with one entry per retry.
func (c Config) BackoffSchedule() []time.Duration {
	if len(c.BackoffDelays) > 0 {
		return c.BackoffDelays
	}
	return visit.ExponentialSchedule(c.MaxRetries, c.Backoff.Base, c.Backoff.Factor, c.Backoff.Max)
}

func (c Config) DelayRange() (time.Duration, time.Duration) {
	return c.Delay.Min, c.Delay.Max
}

func (c Config) Pooled() bool {
	return c.Proxy.Mode == ProxyModePooled || c.Proxy.Mode == ProxyModeOpen
}

// StaticProxy builds the record for static mode.
func (c Config) StaticProxy() (domain.ProxyRecord, error) {
	s := c.Proxy.Static
	protocol, err := domain.ParseProtocol(s.Protocol)
	if err != nil {
		return domain.ProxyRecord{}, err
	}
	if s.Port < 1 || s.Port > 65535 {
		return domain.ProxyRecord{}, fmt.Errorf("static proxy port %d out of range", s.Port)
	}
	record := domain.ProxyRecord{
		Protocol: protocol,
		Host:     strings.TrimSpace(s.Host),
		Port:     uint16(s.Port),
		Username: s.Username,
		Password: s.Password,
		Source:   "static",
	}
	return record, record.Validate()
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	const mask = "********"
	if c.Proxy.APIKey != "" {
		c.Proxy.APIKey = mask
	}
	if c.Proxy.Static.Password != "" {
		c.Proxy.Static.Password = mask
	}
	if c.Store.DSN != "" {
		c.Store.DSN = mask
	}
	if c.Proxy.Registry.RedisURL != "" {
		c.Proxy.Registry.RedisURL = mask
	}
	return c
}
