package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Checkers CheckersConfig `koanf:"checkers"`
	Dialers  DialersConfig  `koanf:"dialers"`
	Batch    BatchConfig    `koanf:"batch"`
	Dedupe   DedupeConfig   `koanf:"dedupe"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// CheckersConfig carries upstream credentials and endpoints. Credentials are
// always supplied here, never embedded in checker code, so checkers stay
// swappable and mockable.
type CheckersConfig struct {
	TCPA            TCPAConfig            `koanf:"tcpa"`
	Blacklist       BlacklistConfig       `koanf:"blacklist"`
	SynergyDNC      SynergyDNCConfig      `koanf:"synergy_dnc"`
	PhoneValidation PhoneValidationConfig `koanf:"phone_validation"`

	CheckTimeout time.Duration `koanf:"check_timeout"`
}

type TCPAConfig struct {
	Username          string        `koanf:"username"`
	Password          string        `koanf:"password"`
	BaseURL           string        `koanf:"base_url"`
	MaxRetries        int           `koanf:"max_retries"`
	InitialRetryDelay time.Duration `koanf:"initial_retry_delay"`
	MaxRetryDelay     time.Duration `koanf:"max_retry_delay"`
}

type BlacklistConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

type SynergyDNCConfig struct {
	PingURL string `koanf:"ping_url"`
}

type PhoneValidationConfig struct {
	APIKey string `koanf:"api_key"`
	URL    string `koanf:"url"`
}

type DialersConfig struct {
	Internal InternalDialerConfig `koanf:"internal"`
	PitchBPO PitchBPOConfig       `koanf:"pitch_bpo"`

	PostTimeout time.Duration `koanf:"post_timeout"`
}

type InternalDialerConfig struct {
	PostbackURL  string `koanf:"postback_url"`
	DefaultToken string `koanf:"default_token"`
}

type PitchBPOConfig struct {
	InjectURL   string `koanf:"inject_url"`
	Token       string `koanf:"token"`
	AccountID   string `koanf:"account_id"`
	Campaign    string `koanf:"campaign"`
	Subcampaign string `koanf:"subcampaign"`
}

type BatchConfig struct {
	WaveSize   int           `koanf:"wave_size"`
	WaveDelay  time.Duration `koanf:"wave_delay"`
	PageSize   int           `koanf:"page_size"`
	MaxBatches int           `koanf:"max_batches"`
}

type DedupeConfig struct {
	WindowDays       int           `koanf:"window_days"`
	VerticalCacheTTL time.Duration `koanf:"vertical_cache_ttl"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Checkers: CheckersConfig{
			TCPA: TCPAConfig{
				BaseURL:           "https://api.tcpalitigatorlist.com",
				MaxRetries:        3,
				InitialRetryDelay: time.Second,
				MaxRetryDelay:     10 * time.Second,
			},
			Blacklist: BlacklistConfig{
				BaseURL: "https://api.blacklistalliance.net",
			},
			PhoneValidation: PhoneValidationConfig{
				URL: "https://api.realvalidation.com/rpvWebService/Turbo.php",
			},
			CheckTimeout: 10 * time.Second,
		},
		Dialers: DialersConfig{
			PitchBPO: PitchBPOConfig{
				AccountID:   "pitchperfect",
				Campaign:    "Jade ACA",
				Subcampaign: "Juiced Real Time",
			},
			PostTimeout: 10 * time.Second,
		},
		Batch: BatchConfig{
			WaveSize:   50,
			WaveDelay:  500 * time.Millisecond,
			PageSize:   1000,
			MaxBatches: 1000,
		},
		Dedupe: DedupeConfig{
			WindowDays:       30,
			VerticalCacheTTL: 24 * time.Hour,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !strings.Contains(err.Error(), "no such file") {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Environment variables override everything: LCB_DATABASE_URL, LCB_CHECKERS_TCPA_USERNAME, ...
	if err := k.Load(env.Provider("LCB_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "LCB_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
