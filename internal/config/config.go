package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

type Config struct {
	ServerAddr       string        `env:"BABELCHAT_ADDR,default=:8080"`
	TranslateURL     string        `env:"BABELCHAT_TRANSLATE_URL,default=http://localhost:5000"`
	TranslateTimeout time.Duration `env:"BABELCHAT_TRANSLATE_TIMEOUT,default=3s"`
	SnapshotPath     string        `env:"BABELCHAT_SNAPSHOT_PATH,default=messages.json"`
	Retention        time.Duration `env:"BABELCHAT_RETENTION,default=24h"`
	SweepInterval    time.Duration `env:"BABELCHAT_SWEEP_INTERVAL,default=1h"`

	// AllowedOrigins is set from the command line, not the environment.
	AllowedOrigins []string
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.TranslateURL == "" {
		return fmt.Errorf("translate URL cannot be empty")
	}
	if c.TranslateTimeout <= 0 {
		return fmt.Errorf("translate timeout must be positive")
	}
	if c.SnapshotPath == "" {
		return fmt.Errorf("snapshot path cannot be empty")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	return nil
}
