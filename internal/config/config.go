package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Vision  VisionConfig  `yaml:"vision" mapstructure:"vision"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Images  ImagesConfig  `yaml:"images" mapstructure:"images"`
	Policy  PolicyConfig  `yaml:"policy" mapstructure:"policy"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Pricing PricingConfig `yaml:"pricing" mapstructure:"pricing"`
}

// VisionConfig selects and tunes the vision model provider.
type VisionConfig struct {
	Provider          string         `yaml:"provider" mapstructure:"provider"`
	MaxTokens         int64          `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int            `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Anthropic         ProviderConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini            ProviderConfig `yaml:"gemini" mapstructure:"gemini"`
	Circuit           CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
}

// ProviderConfig holds credentials and model for one provider.
type ProviderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CircuitConfig configures the circuit breaker around vision calls.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ExtractConfig configures the retry loop.
type ExtractConfig struct {
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	Backoff    BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
}

// BackoffConfig configures the delay between retried vision calls.
// InitialMs of 0 retries without waiting.
type BackoffConfig struct {
	InitialMs  int     `yaml:"initial_ms" mapstructure:"initial_ms"`
	MaxMs      int     `yaml:"max_ms" mapstructure:"max_ms"`
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter     float64 `yaml:"jitter" mapstructure:"jitter"`
}

// ImagesConfig locates the rasterised drawing pages.
type ImagesConfig struct {
	Dir        string   `yaml:"dir" mapstructure:"dir"`
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`
}

// PolicyConfig points at an optional policy overlay file.
type PolicyConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MASTERFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets get empty defaults so their env vars are bound.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("vision.provider", "anthropic")
	v.SetDefault("vision.max_tokens", 2048)
	v.SetDefault("vision.requests_per_minute", 50)
	v.SetDefault("vision.anthropic.key", "")
	v.SetDefault("vision.anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("vision.anthropic.base_url", "")
	v.SetDefault("vision.gemini.key", "")
	v.SetDefault("vision.gemini.model", "gemini-2.5-flash")
	v.SetDefault("vision.circuit.failure_threshold", 5)
	v.SetDefault("vision.circuit.reset_timeout_secs", 30)
	v.SetDefault("extract.max_retries", 5)
	v.SetDefault("extract.backoff.initial_ms", 1000)
	v.SetDefault("extract.backoff.max_ms", 30000)
	v.SetDefault("extract.backoff.multiplier", 2.0)
	v.SetDefault("extract.backoff.jitter", 0.25)
	v.SetDefault("images.dir", "images")
	v.SetDefault("images.extensions", []string{".png", ".jpg", ".jpeg", ".webp"})
	v.SetDefault("policy.file", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "masterfile.db")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "extract" or "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract":
		switch c.Vision.Provider {
		case "anthropic":
			if c.Vision.Anthropic.Key == "" {
				errs = append(errs, "vision.anthropic.key is required")
			}
		case "gemini":
			if c.Vision.Gemini.Key == "" {
				errs = append(errs, "vision.gemini.key is required")
			}
		default:
			errs = append(errs, "vision.provider must be anthropic or gemini")
		}
		if c.Vision.MaxTokens <= 0 {
			errs = append(errs, "vision.max_tokens must be > 0")
		}
		if c.Extract.MaxRetries < 1 {
			errs = append(errs, "extract.max_retries must be >= 1")
		}
		if c.Extract.Backoff.InitialMs < 0 {
			errs = append(errs, "extract.backoff.initial_ms must be >= 0")
		}
		if c.Extract.Backoff.Jitter < 0 || c.Extract.Backoff.Jitter > 1 {
			errs = append(errs, "extract.backoff.jitter must be between 0 and 1")
		}
		if c.Images.Dir == "" {
			errs = append(errs, "images.dir is required")
		}
		errs = append(errs, c.validateStore()...)
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
