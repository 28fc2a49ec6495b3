package app

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/greetly/greetly/core/config"
	coredatabase "github.com/greetly/greetly/core/database"
	"github.com/greetly/greetly/internal/gen"
	"github.com/greetly/greetly/internal/paygate"
	"github.com/greetly/greetly/internal/render"
)

// AssetsConfig locates the asset library on disk. RemoteDir enables the
// mounted-mirror sync; leave it empty to keep assets local only.
type AssetsConfig struct {
	Dir       string `yaml:"dir" envconfig:"ASSETS_DIR"`
	RemoteDir string `yaml:"remote_dir" envconfig:"ASSETS_REMOTE_DIR"`
}

// PricingConfig sets the one-off purchase prices in minor currency units.
type PricingConfig struct {
	Card   int `yaml:"card" envconfig:"PRICE_CARD"`
	Letter int `yaml:"letter" envconfig:"PRICE_LETTER"`
}

// LimitsConfig sets the free-tier allowances.
type LimitsConfig struct {
	FreeMessages  int `yaml:"free_messages" envconfig:"LIMIT_FREE_MESSAGES"`
	DailySurprise int `yaml:"daily_surprise" envconfig:"LIMIT_DAILY_SURPRISE"`
}

// SchedulerConfig tunes the deferred delivery loop.
type SchedulerConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds" envconfig:"SCHED_INTERVAL_SECONDS"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds" envconfig:"SCHED_RETRY_DELAY_SECONDS"`
}

// BroadcastConfig tunes broadcast fan-out batching.
type BroadcastConfig struct {
	BatchSize    int `yaml:"batch_size" envconfig:"BROADCAST_BATCH_SIZE"`
	BatchDelayMS int `yaml:"batch_delay_ms" envconfig:"BROADCAST_BATCH_DELAY_MS"`
}

// Config aggregates the core bot configuration with the application's own
// sections. YAML file first, environment overrides second.
type Config struct {
	Core coreconfig.Config `yaml:",inline"`

	Database  coredatabase.Config `yaml:"database"`
	Payment   paygate.Config      `yaml:"payment"`
	OpenAI    gen.Config          `yaml:"openai"`
	Render    render.Config       `yaml:"render"`
	Assets    AssetsConfig        `yaml:"assets"`
	Pricing   PricingConfig       `yaml:"pricing"`
	Limits    LimitsConfig        `yaml:"limits"`
	Scheduler SchedulerConfig     `yaml:"scheduler"`
	Broadcast BroadcastConfig     `yaml:"broadcast"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// Load reads the full application configuration from a YAML file and
// environment variables, then validates it.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(cfg *Config) error {
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if cfg.Pricing.Card <= 0 {
		cfg.Pricing.Card = 149
	}
	if cfg.Pricing.Letter <= 0 {
		cfg.Pricing.Letter = 99
	}
	if cfg.Limits.FreeMessages <= 0 {
		cfg.Limits.FreeMessages = 3
	}
	if cfg.Limits.DailySurprise <= 0 {
		cfg.Limits.DailySurprise = 1
	}
	return nil
}
