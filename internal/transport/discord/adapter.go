// Package discord is the Discord binding: the gateway session, the slash
// command surface and the channel send primitive used by the router and
// the log sink.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/patrickmn/go-cache"

	"gamebridge/internal/category"
	"gamebridge/internal/command"
	"gamebridge/internal/registry"
	kit "gamebridge/internal/transport"
	logx "gamebridge/pkg/logx"
)

type Config struct {
	Token            string
	ApplicationID    snowflake.ID
	RegisterCommands bool
	// CommandTimeout bounds one interaction, including the reply.
	CommandTimeout time.Duration
	// ChannelTTL is how long resolved channels stay cached.
	ChannelTTL time.Duration
}

// CommandHandler answers slash commands.
type CommandHandler interface {
	Handle(ctx context.Context, req *command.Request) command.Reply
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	catalog *category.Catalog
	sess    *discordgo.Session

	channels *cache.Cache

	mu       sync.RWMutex
	handler  CommandHandler
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	removers []func()
}

var _ kit.Gateway = (*Adapter)(nil)

func New(cfg Config, catalog *category.Catalog, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	sess, err := discordgo.New(token)
	if err != nil {
		return nil, err
	}
	sess.Identify.Intents = discordgo.IntentsGuilds
	sess.ShouldReconnectOnError = true

	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if cfg.ChannelTTL <= 0 {
		cfg.ChannelTTL = 5 * time.Minute
	}
	if catalog == nil {
		catalog = category.MustDefault()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:      cfg,
		log:      log,
		catalog:  catalog,
		sess:     sess,
		channels: cache.New(cfg.ChannelTTL, 2*cfg.ChannelTTL),
	}, nil
}

// SetHandler installs the slash command handler. Interactions that arrive
// without a handler are answered with a generic failure.
func (a *Adapter) SetHandler(h CommandHandler) {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
}

// Start opens the gateway session and registers the slash commands.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.runCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.removers = []func(){
		a.sess.AddHandler(a.onReady),
		a.sess.AddHandler(a.onInteraction),
	}
	a.running = true
	a.mu.Unlock()

	if err := a.sess.Open(); err != nil {
		a.teardown()
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	if a.cfg.RegisterCommands {
		if err := a.registerCommands(ctx); err != nil {
			// the bot still routes notifications with stale commands
			a.log.Error("slash command registration failed", logx.Err(err))
		}
	}
	return nil
}

func (a *Adapter) registerCommands(ctx context.Context) error {
	cmds := applicationCommands(Menu(a.catalog))
	got, err := a.sess.ApplicationCommandBulkOverwrite(a.cfg.ApplicationID.String(), "", cmds, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	a.log.Info("slash commands registered", logx.Int("count", len(got)))
	return nil
}

func (a *Adapter) teardown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rm := range a.removers {
		rm()
	}
	a.removers = nil
	if a.cancel != nil {
		a.cancel()
	}
	a.running = false
}

// Stop closes the gateway session. In-flight interactions are cancelled.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.RLock()
	running := a.running
	a.mu.RUnlock()
	if !running {
		return nil
	}
	a.teardown()

	done := make(chan error, 1)
	go func() { done <- a.sess.Close() }()
	select {
	case err := <-done:
		a.log.Info("gateway closed")
		return err
	case <-ctx.Done():
		a.log.Warn("gateway close timed out", logx.Err(ctx.Err()))
		return nil
	}
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	a.log.Info("gateway ready", logx.String("user", name), logx.Int("guilds", len(r.Guilds)))
}

func (a *Adapter) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil || ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	a.mu.RLock()
	base := a.runCtx
	h := a.handler
	a.mu.RUnlock()
	if base == nil {
		return
	}
	ctx, cancel := context.WithTimeout(base, a.cfg.CommandTimeout)
	defer cancel()

	req, ok := toRequest(ic.Interaction, a.guildOwner(ctx, ic.GuildID))
	if !ok {
		return
	}
	rep := command.Reply{Content: command.MsgFailed, Ephemeral: true}
	if h != nil {
		rep = h.Handle(ctx, req)
	}
	if err := s.InteractionRespond(ic.Interaction, ephemeral(rep), discordgo.WithContext(ctx)); err != nil {
		a.log.Warn("interaction reply failed",
			logx.String("cmd", req.Command),
			logx.Stringer("guild_id", req.GuildID),
			logx.Err(err),
		)
	}
}

// guildOwner reads the owner from the state cache, falling back to REST.
// An unknown owner yields "" which never matches a user.
func (a *Adapter) guildOwner(ctx context.Context, guildID string) string {
	if guildID == "" {
		return ""
	}
	if g, err := a.sess.State.Guild(guildID); err == nil && g.OwnerID != "" {
		return g.OwnerID
	}
	g, err := a.sess.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		a.log.Warn("guild owner lookup failed", logx.String("guild_id", guildID), logx.Err(err))
		return ""
	}
	return g.OwnerID
}

// ResolveChannel returns the channel from the gateway state, the local
// cache or REST, in that order.
func (a *Adapter) ResolveChannel(ctx context.Context, id registry.ChannelID) (kit.Channel, error) {
	key := id.String()
	if c, err := a.sess.State.Channel(key); err == nil && c != nil {
		return toChannel(c), nil
	}
	if v, ok := a.channels.Get(key); ok {
		return v.(kit.Channel), nil
	}
	c, err := a.sess.Channel(key, discordgo.WithContext(ctx))
	if err != nil {
		return kit.Channel{}, err
	}
	ch := toChannel(c)
	a.channels.Set(key, ch, cache.DefaultExpiration)
	return ch, nil
}

func toChannel(c *discordgo.Channel) kit.Channel {
	return kit.Channel{
		ID:      parseID(c.ID),
		GuildID: parseID(c.GuildID),
		Name:    c.Name,
		Text:    isText(c.Type),
	}
}

// Send posts text, split into several messages when it exceeds the limit.
// Mentions in the text never ping anyone.
func (a *Adapter) Send(ctx context.Context, id registry.ChannelID, text string) error {
	key := id.String()
	for _, part := range SplitMessage(text, MessageLimit) {
		_, err := a.sess.ChannelMessageSendComplex(key, &discordgo.MessageSend{
			Content:         part,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}, discordgo.WithContext(ctx))
		if err != nil {
			a.channels.Delete(key)
			return err
		}
	}
	return nil
}

// SendLog implements logx.Sender for the operator log channel.
func (a *Adapter) SendLog(ctx context.Context, channelID, text string) error {
	id, err := snowflake.Parse(channelID)
	if err != nil {
		return err
	}
	return a.Send(ctx, id, text)
}
