package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, falling back to system environment variables")
	}
}

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required,notEmpty"`
	StoragePath  string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	ProxyURL   string `env:"PROXY_URL"`
	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	JoinTimeout     time.Duration `env:"JOIN_TIMEOUT" envDefault:"5s"`
	StateTimeout    time.Duration `env:"STATE_TIMEOUT" envDefault:"5s"`
	StreamTimeout   time.Duration `env:"STREAM_TIMEOUT" envDefault:"30s"`
	ReconnectWindow time.Duration `env:"RECONNECT_WINDOW" envDefault:"5s"`
	StreamAttempts  int           `env:"STREAM_ATTEMPTS" envDefault:"2"`

	MaxQueueLength int     `env:"MAX_QUEUE_LENGTH" envDefault:"200"`
	EnqueueRate    float64 `env:"ENQUEUE_RATE" envDefault:"0.5"`
	EnqueueBurst   int     `env:"ENQUEUE_BURST" envDefault:"5"`
	DefaultVolume  int     `env:"DEFAULT_VOLUME" envDefault:"100"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"JOIN_TIMEOUT":     c.JoinTimeout,
		"STATE_TIMEOUT":    c.StateTimeout,
		"STREAM_TIMEOUT":   c.StreamTimeout,
		"RECONNECT_WINDOW": c.ReconnectWindow,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", key, d))
		}
	}
	if c.StreamAttempts < 1 {
		errs = append(errs, fmt.Errorf("STREAM_ATTEMPTS must be at least 1, got %d", c.StreamAttempts))
	}
	if c.MaxQueueLength < 1 {
		errs = append(errs, fmt.Errorf("MAX_QUEUE_LENGTH must be at least 1, got %d", c.MaxQueueLength))
	}
	if c.EnqueueRate <= 0 || c.EnqueueBurst < 1 {
		errs = append(errs, fmt.Errorf("ENQUEUE_RATE and ENQUEUE_BURST must be positive"))
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		errs = append(errs, fmt.Errorf("DEFAULT_VOLUME must be within 0..100, got %d", c.DefaultVolume))
	}
	if c.ProxyURL != "" {
		if u, err := url.Parse(c.ProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PROXY_URL is not a valid URL: %q", c.ProxyURL))
		}
	}
	return errors.Join(errs...)
}
