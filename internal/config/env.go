package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverlay holds the variables that override the file. Unset variables
// leave the file value alone.
type envOverlay struct {
	Token         string `env:"DISCORD_TOKEN"`
	ApplicationID string `env:"DISCORD_CLIENT_ID"`
	Port          int    `env:"PORT"`
	StoragePath   string `env:"GAMEBRIDGE_STORAGE_PATH"`
	LogLevel      string `env:"GAMEBRIDGE_LOG_LEVEL"`
}

// ApplyEnv overlays environment variables onto cfg. environ replaces the
// process environment when non-nil.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	var raw envOverlay
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if v := strings.TrimSpace(raw.Token); v != "" {
		cfg.Discord.Token = v
	}
	if v := strings.TrimSpace(raw.ApplicationID); v != "" {
		cfg.Discord.ApplicationID = v
	}
	if raw.Port != 0 {
		cfg.Webhook.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.StoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
