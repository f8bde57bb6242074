package config

import (
	"reflect"
	"sort"
	"strings"

	logx "gamebridge/pkg/logx"
)

// Change summarizes a reload.
type Change struct {
	// Sections lists every changed top-level section, sorted.
	Sections []string
	// RestartRequired lists changed sections that only take effect on the
	// next start.
	RestartRequired []string
	// Fields are safe log attributes; secrets are reported as set/unset.
	Fields []logx.Field
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// hotSections apply without a restart.
var hotSections = map[string]bool{"logging": true, "router": true, "audit": true}

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if !hotSections[section] {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
		ch.Fields = append(ch.Fields, fields...)
	}

	// never log the token
	od, nd := oldCfg.Discord, newCfg.Discord
	if od.Token != nd.Token || strings.TrimSpace(od.ApplicationID) != strings.TrimSpace(nd.ApplicationID) ||
		od.CommandTimeout != nd.CommandTimeout || od.ShouldRegisterCommands() != nd.ShouldRegisterCommands() {
		mark("discord",
			logx.Bool("discord.token_changed", od.Token != nd.Token),
			logx.String("discord.application_id", strings.TrimSpace(nd.ApplicationID)),
		)
	}

	if oldCfg.Webhook != newCfg.Webhook {
		mark("webhook",
			logx.String("webhook.addr", newCfg.Webhook.ListenAddr()),
			logx.String("webhook.path", newCfg.Webhook.RoutePath()),
		)
	}

	if oldCfg.Router != newCfg.Router {
		mark("router",
			logx.Int("router.workers", newCfg.Router.Workers),
			logx.Int("router.rate_per_sec", newCfg.Router.RatePerSec),
			logx.String("router.send_timeout", newCfg.Router.SendTimeout),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	if oldCfg.Audit != newCfg.Audit {
		mark("audit",
			logx.Bool("audit.enabled", newCfg.Audit.Enabled),
			logx.String("audit.schedule", AuditSchedule(newCfg)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Categories, newCfg.Categories) {
		mark("categories", logx.Int("categories.count", len(newCfg.Categories)))
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.RestartRequired)
	return ch
}
