// Package audit periodically checks that every registered channel still
// resolves to a text channel of its guild. It only reports; the registry
// is never modified.
package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"gamebridge/internal/category"
	"gamebridge/internal/eventbus"
	"gamebridge/internal/registry"
	kit "gamebridge/internal/transport"
	logx "gamebridge/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string
	Timezone string
	// Timeout bounds one full pass.
	Timeout time.Duration
}

const (
	DefaultSchedule = "@every 6h"
	DefaultTimeout  = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	c.Schedule = strings.TrimSpace(c.Schedule)
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	c.Timezone = strings.TrimSpace(c.Timezone)
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Source is the registry view the audit reads.
type Source interface {
	Snapshot() registry.Registry
}

// Stale reasons.
const (
	ReasonUnresolvable = "unresolvable"
	ReasonNotText      = "not_text"
	ReasonWrongGuild   = "wrong_guild"
)

type Finding struct {
	GuildID   registry.GuildID   `json:"guild_id"`
	Category  category.Category  `json:"category"`
	ChannelID registry.ChannelID `json:"channel_id"`
	Reason    string             `json:"reason"`
	Err       string             `json:"error,omitempty"`
}

type Result struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Took      time.Duration `json:"took"`
	Checked   int           `json:"checked"`
	Stale     []Finding     `json:"stale"`
}

type Service struct {
	src    Source
	gw     kit.Gateway
	bus    eventbus.Bus
	log    logx.Logger
	parser cron.Parser

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	baseCtx context.Context
}

type Option func(*Service)

func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }

func WithLogger(l logx.Logger) Option { return func(s *Service) { s.log = l } }

func New(cfg Config, src Source, gw kit.Gateway, opts ...Option) *Service {
	s := &Service{
		src:    src,
		gw:     gw,
		cfg:    cfg.withDefaults(),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Start schedules the audit when enabled. It is a no-op when already
// running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = context.WithoutCancel(ctx)
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if !s.cfg.Enabled {
		s.log.Debug("audit disabled")
		return nil
	}
	loc := time.Local
	if s.cfg.Timezone != "" {
		l, err := time.LoadLocation(s.cfg.Timezone)
		if err != nil {
			return err
		}
		loc = l
	}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	timeout := s.cfg.Timeout
	base := s.baseCtx
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("audit scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) stopLocked() context.Context {
	if s.c == nil {
		return nil
	}
	done := s.c.Stop()
	s.c = nil
	return done
}

// Apply swaps the schedule. A running schedule is rebuilt when anything
// changed; a pass already in progress finishes with its old timeout.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return nil
	}
	s.cfg = cfg
	if s.baseCtx == nil {
		return nil
	}
	s.stopLocked()
	return s.startLocked()
}

// Stop halts the schedule and waits for a pass in progress, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.stopLocked()
	s.baseCtx = nil
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce checks every registration once. Entries are visited in guild,
// then category order.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	res := Result{ID: uuid.NewString(), StartedAt: time.Now()}
	snap := s.src.Snapshot()

	guilds := make([]registry.GuildID, 0, len(snap))
	for g := range snap {
		guilds = append(guilds, g)
	}
	sort.Slice(guilds, func(i, j int) bool { return guilds[i] < guilds[j] })

	for _, g := range guilds {
		cats := make([]category.Category, 0, len(snap[g]))
		for c := range snap[g] {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

		for _, cat := range cats {
			if err := ctx.Err(); err != nil {
				res.Took = time.Since(res.StartedAt)
				s.log.Warn("audit interrupted", logx.Int("checked", res.Checked), logx.Err(err))
				return res, err
			}
			ch := snap[g][cat]
			res.Checked++
			if f, stale := s.check(ctx, g, cat, ch); stale {
				res.Stale = append(res.Stale, f)
			}
		}
	}
	res.Took = time.Since(res.StartedAt)
	s.report(res)
	return res, nil
}

func (s *Service) check(ctx context.Context, g registry.GuildID, cat category.Category, id registry.ChannelID) (Finding, bool) {
	f := Finding{GuildID: g, Category: cat, ChannelID: id}
	c, err := s.gw.ResolveChannel(ctx, id)
	switch {
	case err != nil:
		f.Reason, f.Err = ReasonUnresolvable, err.Error()
	case !c.Text:
		f.Reason = ReasonNotText
	case c.GuildID != g:
		f.Reason = ReasonWrongGuild
	default:
		return f, false
	}
	return f, true
}

func (s *Service) report(res Result) {
	for _, f := range res.Stale {
		s.log.Warn("stale registration",
			logx.Stringer("guild_id", f.GuildID),
			logx.String("category", string(f.Category)),
			logx.Stringer("channel_id", f.ChannelID),
			logx.String("reason", f.Reason),
		)
	}
	s.log.Info("audit finished",
		logx.String("audit_id", res.ID),
		logx.Int("checked", res.Checked),
		logx.Int("stale", len(res.Stale)),
		logx.Duration("took", res.Took),
	)
	if s.bus != nil && len(res.Stale) > 0 {
		s.bus.Publish(eventbus.Event{Topic: eventbus.TopicAuditStale, Data: res})
	}
}
