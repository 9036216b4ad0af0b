package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/gridci/internal/cachestore"
	"github.com/vk/gridci/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string            // a single definition file or a directory of them
	Event        string            // trigger event name
	Meta         map[string]string // trigger metadata exposed to cache key templates

	CacheDir    string // empty keeps the cache in memory for the run
	Compression string // compression for new disk cache entries
	WebhookURL  string // empty disables the run report webhook

	LogFormat   string
	LogLevel    string
	MaxParallel int
	StepTimeout time.Duration // default for steps that declare none
}

// NewConfig validates the raw configuration and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}

	if cfg.Event == "" {
		cfg.Event = string(config.EventPush)
	}
	if _, err := config.ParseEvent(cfg.Event); err != nil {
		return nil, err
	}

	if cfg.Compression == "" {
		cfg.Compression = cachestore.CompressionZstd.String()
	}
	if _, err := cachestore.ParseCompressionTag(cfg.Compression); err != nil {
		return nil, err
	}

	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 4
	}
	if cfg.StepTimeout < 0 {
		return nil, fmt.Errorf("StepTimeout cannot be negative: %v", cfg.StepTimeout)
	}

	return &cfg, nil
}
