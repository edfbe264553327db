package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/avoronov/journal-bot/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken             string        `envconfig:"BOT_TOKEN" required:"true"`
	DBPath               string        `envconfig:"DB_PATH" default:"./data/journal.db"`
	DefaultTZ            string        `envconfig:"DEFAULT_TZ" default:"UTC"`
	DefaultScheduleTimes string        `envconfig:"DEFAULT_SCHEDULE_TIMES" default:"09:00,20:00"`
	SessionStaleAfter    time.Duration `envconfig:"SESSION_STALE_AFTER" default:"0"` // 0 = end of local day
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr             string        `envconfig:"HTTP_ADDR" default:":8080"`
}

// Load reads environment variables into Config and validates the values the
// rest of the process assumes are well-formed. An invalid default timezone or
// schedule list is a startup failure, not a silent fallback.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if _, err := domain.ValidateTZ(cfg.DefaultTZ); err != nil {
		return cfg, fmt.Errorf("DEFAULT_TZ: %w", err)
	}
	if _, err := domain.ParseScheduleTimes(cfg.DefaultScheduleTimes); err != nil {
		return cfg, fmt.Errorf("DEFAULT_SCHEDULE_TIMES: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return cfg, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	return cfg, nil
}

// ScheduleMinutes returns the default schedule times as minutes since
// midnight. Load has already validated the value.
func (c Config) ScheduleMinutes() []int {
	mins, err := domain.ParseScheduleTimes(c.DefaultScheduleTimes)
	if err != nil {
		return nil
	}
	return mins
}
