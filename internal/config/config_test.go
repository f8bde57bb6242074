package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "gamebridge/pkg/logx"
)

const validJSON = `{
  "discord": {"token": "file-token", "application_id": "123456789012345678"},
  "webhook": {"port": 3000},
  "logging": {"level": "info", "console": true}
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadJSONAndYAML(t *testing.T) {
	jsonPath := writeFile(t, "config.json", validJSON)
	yamlPath := writeFile(t, "config.yaml", `
discord:
  token: file-token
  application_id: "123456789012345678"
webhook:
  port: 3000
categories:
  - name: joined
  - name: player-left
    label: Player left
`)
	for _, path := range []string{jsonPath, yamlPath} {
		m := NewManager(path)
		m.SetEnviron(map[string]string{})
		cfg, err := m.Load()
		require.NoError(t, err, path)
		require.Equal(t, "file-token", cfg.Discord.Token)
		require.Equal(t, 3000, cfg.Webhook.Port)
		require.Same(t, cfg, m.Get())
	}
}

func TestYAMLCategoriesBuildCatalog(t *testing.T) {
	path := writeFile(t, "config.yml", `
discord: {token: t, application_id: "1"}
webhook: {port: 1}
categories:
  - name: player-left
`)
	m := NewManager(path)
	m.SetEnviron(map[string]string{})
	cfg, err := m.Load()
	require.NoError(t, err)
	cat, err := Catalog(cfg)
	require.NoError(t, err)
	spec, ok := cat.ByCommand("setplayerleftchannel")
	require.True(t, ok)
	require.EqualValues(t, "player-left", spec.Name)
}

func TestStrictDecoding(t *testing.T) {
	tests := map[string]string{
		"unknown field": `{"discord": {"token": "x", "owner": 1}}`,
		"trailing data": validJSON + `{}`,
		"bad json":      `{"discord": `,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			m := NewManager(writeFile(t, "config.json", body))
			m.SetEnviron(map[string]string{})
			_, err := m.Parse()
			require.Error(t, err)
		})
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", validJSON))
	m.SetEnviron(map[string]string{
		"DISCORD_TOKEN":           "env-token",
		"DISCORD_CLIENT_ID":       "42",
		"PORT":                    "8080",
		"GAMEBRIDGE_STORAGE_PATH": "/var/lib/gamebridge/registry.json",
	})
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "env-token", cfg.Discord.Token)
	require.Equal(t, "42", cfg.Discord.ApplicationID)
	require.Equal(t, 8080, cfg.Webhook.Port)
	require.Equal(t, "/var/lib/gamebridge/registry.json", cfg.Storage.Path)
}

func TestEnvironmentOnly(t *testing.T) {
	m := NewManager("")
	m.SetEnviron(map[string]string{
		"DISCORD_TOKEN":     "env-token",
		"DISCORD_CLIENT_ID": "42",
		"PORT":              "3000",
	})
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, ":3000", cfg.Webhook.ListenAddr())
	require.Equal(t, DefaultWebhookPath, cfg.Webhook.RoutePath())
	require.EqualValues(t, DefaultMaxBodyBytes, cfg.Webhook.BodyLimit())
}

func TestInvalidPortInEnvironment(t *testing.T) {
	m := NewManager("")
	m.SetEnviron(map[string]string{"PORT": "http"})
	_, err := m.Parse()
	require.Error(t, err)
}

func TestValidateRequiredSettings(t *testing.T) {
	err := Validate(&Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "discord.token")
	require.Contains(t, err.Error(), "discord.application_id")
	require.Contains(t, err.Error(), "webhook.port")
}

func TestValidateSections(t *testing.T) {
	base := func() *Config {
		return &Config{
			Discord: DiscordConfig{Token: "t", ApplicationID: "1"},
			Webhook: WebhookConfig{Port: 3000},
		}
	}
	require.NoError(t, Validate(base()))

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad application id", func(c *Config) { c.Discord.ApplicationID = "bot" }},
		{"path shadows healthz", func(c *Config) { c.Webhook.Path = "/healthz" }},
		{"relative path", func(c *Config) { c.Webhook.Path = "hook" }},
		{"bad send timeout", func(c *Config) { c.Router.SendTimeout = "soon" }},
		{"negative workers", func(c *Config) { c.Router.Workers = -1 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"bad log channel", func(c *Config) { c.Logging.Discord = LoggingDiscord{Enabled: true, ChannelID: "ops"} }},
		{"bad audit schedule", func(c *Config) { c.Audit = AuditConfig{Enabled: true, Schedule: "every day"} }},
		{"bad audit timezone", func(c *Config) { c.Audit = AuditConfig{Enabled: true, Timezone: "Mars/Base"} }},
		{"duplicate category", func(c *Config) {
			c.Categories = []CategoryConfig{{Name: "joined"}, {Name: "joined"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestReloadSkipsUnchangedAndInvalid(t *testing.T) {
	path := writeFile(t, "config.json", validJSON)
	m := NewManager(path)
	m.SetEnviron(map[string]string{})
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	published, err := m.Reload(context.Background())
	require.NoError(t, err)
	require.False(t, published)

	require.NoError(t, os.WriteFile(path, []byte(`{"discord": {"token": "x"}}`), 0o600))
	published, err = m.Reload(context.Background())
	require.Error(t, err)
	require.False(t, published)
	require.Equal(t, "file-token", m.Get().Discord.Token)

	updated := `{
  "discord": {"token": "file-token", "application_id": "123456789012345678"},
  "webhook": {"port": 3000},
  "router": {"rate_per_sec": 5},
  "logging": {"level": "debug", "console": true}
}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	published, err = m.Reload(context.Background())
	require.NoError(t, err)
	require.True(t, published)
	select {
	case cfg := <-sub:
		require.Equal(t, 5, cfg.Router.RatePerSec)
	case <-time.After(time.Second):
		t.Fatal("reload not published")
	}
}

func TestWatchPublishesFileChanges(t *testing.T) {
	path := writeFile(t, "config.json", validJSON)
	m := NewManager(path)
	m.SetEnviron(map[string]string{})
	m.SetLogger(logx.Nop())
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	updated := `{"discord": {"token": "file-token", "application_id": "123456789012345678"}, "webhook": {"port": 3000}, "logging": {"level": "warn"}}`
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o600)
		select {
		case cfg := <-sub:
			return cfg.Logging.Level == "warn"
		case <-time.After(400 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSummarizeChange(t *testing.T) {
	oldCfg := &Config{Discord: DiscordConfig{Token: "a", ApplicationID: "1"}, Webhook: WebhookConfig{Port: 1}}
	newCfg := *oldCfg
	newCfg.Discord.Token = "b"
	newCfg.Router.RatePerSec = 3
	newCfg.Logging.Level = "debug"

	ch := SummarizeChange(oldCfg, &newCfg)
	require.Equal(t, []string{"discord", "logging", "router"}, ch.Sections)
	require.Equal(t, []string{"discord"}, ch.RestartRequired)
	require.True(t, ch.Has("router"))
	require.False(t, ch.Has("storage"))
}
