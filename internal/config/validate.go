package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robfig/cron/v3"

	"gamebridge/internal/category"
)

// Validate checks everything needed to start. All problems are reported
// together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var problems []error
	add := func(err error) {
		if err != nil {
			problems = append(problems, err)
		}
	}

	if strings.TrimSpace(cfg.Discord.Token) == "" {
		add(errors.New("discord.token is required (or set DISCORD_TOKEN)"))
	}
	if strings.TrimSpace(cfg.Discord.ApplicationID) == "" {
		add(errors.New("discord.application_id is required (or set DISCORD_CLIENT_ID)"))
	} else if _, err := ApplicationID(cfg); err != nil {
		add(err)
	}
	_, err := ParseDurationField("discord.command_timeout", cfg.Discord.CommandTimeout)
	add(err)

	if cfg.Webhook.Port <= 0 || cfg.Webhook.Port > 65535 {
		add(fmt.Errorf("webhook.port must be 1-65535 (or set PORT), got %d", cfg.Webhook.Port))
	}
	if !strings.HasPrefix(cfg.Webhook.RoutePath(), "/") || cfg.Webhook.RoutePath() == "/" || cfg.Webhook.RoutePath() == "/healthz" {
		add(fmt.Errorf("webhook.path %q must start with / and not shadow / or /healthz", cfg.Webhook.Path))
	}
	if cfg.Webhook.MaxBodyBytes < 0 {
		add(errors.New("webhook.max_body_bytes must be >= 0"))
	}
	_, err = ParseDurationField("webhook.read_timeout", cfg.Webhook.ReadTimeout)
	add(err)
	_, err = ParseDurationField("webhook.write_timeout", cfg.Webhook.WriteTimeout)
	add(err)
	_, err = ParseDurationField("webhook.shutdown_timeout", cfg.Webhook.ShutdownTimeout)
	add(err)

	if cfg.Router.Workers < 0 {
		add(errors.New("router.workers must be >= 0"))
	}
	if cfg.Router.RatePerSec < 0 {
		add(errors.New("router.rate_per_sec must be >= 0"))
	}
	_, err = ParseDurationField("router.send_timeout", cfg.Router.SendTimeout)
	add(err)

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path is required when storage.driver=sqlite"))
		}
	default:
		add(fmt.Errorf("storage.driver %q is not supported (file, sqlite)", cfg.Storage.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	if cfg.Logging.Discord.Enabled {
		if _, err := snowflake.Parse(strings.TrimSpace(cfg.Logging.Discord.ChannelID)); err != nil {
			add(fmt.Errorf("logging.discord.channel_id: %w", err))
		}
	}

	if cfg.Audit.Enabled {
		if _, err := cron.ParseStandard(AuditSchedule(cfg)); err != nil {
			add(fmt.Errorf("audit.schedule: %w", err))
		}
		if tz := strings.TrimSpace(cfg.Audit.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				add(fmt.Errorf("audit.timezone: %w", err))
			}
		}
	}
	_, err = ParseDurationField("audit.timeout", cfg.Audit.Timeout)
	add(err)

	_, err = Catalog(cfg)
	add(err)

	return errors.Join(problems...)
}

// ApplicationID parses discord.application_id.
func ApplicationID(cfg *Config) (snowflake.ID, error) {
	id, err := snowflake.Parse(strings.TrimSpace(cfg.Discord.ApplicationID))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("discord.application_id %q is not a valid id", cfg.Discord.ApplicationID)
	}
	return id, nil
}

// Catalog builds the category catalog from the categories section.
func Catalog(cfg *Config) (*category.Catalog, error) {
	specs := make([]category.Spec, 0, len(cfg.Categories))
	for _, c := range cfg.Categories {
		specs = append(specs, category.Spec{
			Name:        category.Category(c.Name),
			Command:     c.Command,
			Label:       c.Label,
			Description: c.Description,
		})
	}
	return category.NewCatalog(specs)
}

func AuditSchedule(cfg *Config) string {
	if s := strings.TrimSpace(cfg.Audit.Schedule); s != "" {
		return s
	}
	return DefaultAuditSchedule
}
