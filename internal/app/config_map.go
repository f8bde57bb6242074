package app

import (
	"fmt"
	"strings"
	"time"

	"gamebridge/internal/audit"
	"gamebridge/internal/config"
	"gamebridge/internal/router"
	"gamebridge/internal/storage"
	"gamebridge/internal/transport/webhook"
	logx "gamebridge/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    lc.Discord.Enabled,
			ChannelID:  strings.TrimSpace(lc.Discord.ChannelID),
			MinLevel:   lc.Discord.MinLevel,
			RatePerSec: lc.Discord.RatePerSec,
		},
	}
}

func mapRouterConfig(cfg *config.Config) (router.Config, error) {
	timeout, err := config.ParseDurationField("router.send_timeout", cfg.Router.SendTimeout)
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{
		Workers:     cfg.Router.Workers,
		RatePerSec:  cfg.Router.RatePerSec,
		SendTimeout: timeout,
	}, nil
}

func mapAuditConfig(cfg *config.Config) (audit.Config, error) {
	timeout, err := config.ParseDurationField("audit.timeout", cfg.Audit.Timeout)
	if err != nil {
		return audit.Config{}, err
	}
	return audit.Config{
		Enabled:  cfg.Audit.Enabled,
		Schedule: config.AuditSchedule(cfg),
		Timezone: cfg.Audit.Timezone,
		Timeout:  timeout,
	}, nil
}

func mapWebhookConfig(cfg *config.Config) webhook.Config {
	w := cfg.Webhook
	return webhook.Config{
		Addr:            w.ListenAddr(),
		ReadTimeout:     config.DurationOr(w.ReadTimeout, 10*time.Second),
		WriteTimeout:    config.DurationOr(w.WriteTimeout, 60*time.Second),
		ShutdownTimeout: config.DurationOr(w.ShutdownTimeout, 10*time.Second),
	}
}
