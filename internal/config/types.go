package config

import (
	"net"
	"strconv"
	"strings"
)

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Webhook WebhookConfig `json:"webhook"`
	Router  RouterConfig  `json:"router"`
	Storage StorageConfig `json:"storage"`
	Logging LoggingConfig `json:"logging"`
	Audit   AuditConfig   `json:"audit"`

	// Categories replaces the built-in joined/nextupdate set when non-empty.
	Categories []CategoryConfig `json:"categories,omitempty"`
}

// DiscordConfig holds the bot credentials. Both fields may come from the
// environment (DISCORD_TOKEN, DISCORD_CLIENT_ID) instead of the file.
type DiscordConfig struct {
	Token         string `json:"token"`
	ApplicationID string `json:"application_id"`
	// CommandTimeout bounds one slash command (Go duration, default "10s").
	CommandTimeout string `json:"command_timeout,omitempty"`
	// RegisterCommands overwrites the global slash commands on start.
	// Defaults to true.
	RegisterCommands *bool `json:"register_commands,omitempty"`
}

func (d DiscordConfig) ShouldRegisterCommands() bool {
	return d.RegisterCommands == nil || *d.RegisterCommands
}

// WebhookConfig controls the inbound HTTP listener.
//
// Example:
//
//	"webhook": { "port": 3000, "path": "/roblox-message" }
type WebhookConfig struct {
	Addr         string `json:"addr,omitempty"` // host part; empty binds all interfaces
	Port         int    `json:"port"`
	Path         string `json:"path,omitempty"`           // default: "/roblox-message"
	MaxBodyBytes int64  `json:"max_body_bytes,omitempty"` // default: 65536

	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

const (
	DefaultWebhookPath  = "/roblox-message"
	DefaultMaxBodyBytes = 64 << 10
)

func (w WebhookConfig) ListenAddr() string {
	return net.JoinHostPort(strings.TrimSpace(w.Addr), strconv.Itoa(w.Port))
}

func (w WebhookConfig) RoutePath() string {
	p := strings.TrimSpace(w.Path)
	if p == "" {
		return DefaultWebhookPath
	}
	return p
}

func (w WebhookConfig) BodyLimit() int64 {
	if w.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return w.MaxBodyBytes
}

// RouterConfig controls notification fan-out. Hot-reloadable.
type RouterConfig struct {
	Workers     int    `json:"workers,omitempty"`      // default 8
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default 20
	SendTimeout string `json:"send_timeout,omitempty"` // default "10s"
}

// StorageConfig selects where the registry lives.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/registry.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) or "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingDiscord mirrors log lines at or above MinLevel into an operator
// channel.
type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// AuditConfig schedules the read-only registry audit.
type AuditConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, default "@every 6h"
	Timezone string `json:"timezone,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // default "5m"
}

const DefaultAuditSchedule = "@every 6h"

type CategoryConfig struct {
	Name        string `json:"name"`
	Command     string `json:"command,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}
