package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":9012"`
	UserConfigDir string `envconfig:"USER_CONFIG_DIR" default:"./data/users"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error

	FireflyAPIURL string `envconfig:"FIREFLY_API_URL" default:"http://localhost:8080/api/v1"`
	DifyAPIURL    string `envconfig:"DIFY_API_URL" default:"https://api.dify.ai/v1"`

	TickInterval   time.Duration `envconfig:"TICK_INTERVAL" default:"60s"`
	MaxConcurrent  int           `envconfig:"MAX_CONCURRENT_REPORTS" default:"4"`
	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS_PER_PERIOD" default:"3"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	DifyTimeout    time.Duration `envconfig:"DIFY_TIMEOUT" default:"60s"` // workflows are slow

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
