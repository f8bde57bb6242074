// Package router fans one inbound notification out to every channel
// registered for its category.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gamebridge/internal/category"
	"gamebridge/internal/errs"
	"gamebridge/internal/eventbus"
	"gamebridge/internal/registry"
	kit "gamebridge/internal/transport"
	logx "gamebridge/pkg/logx"
)

const tracerName = "gamebridge/internal/router"

// Config controls fan-out pacing. Zero values use defaults.
type Config struct {
	Workers     int
	RatePerSec  int
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Lookup is the registry read the router needs.
type Lookup interface {
	AllForCategory(cat category.Category) []registry.Destination
}

// Delivery is the outcome for one destination.
type Delivery struct {
	GuildID   registry.GuildID   `json:"guild_id"`
	ChannelID registry.ChannelID `json:"channel_id"`
	OK        bool               `json:"ok"`
	Err       error              `json:"-"`
	Took      time.Duration      `json:"took"`
}

// Report describes one Route call. The call itself succeeded whenever a
// Report is returned; individual deliveries may still have failed.
type Report struct {
	ID         string            `json:"id"`
	Category   category.Category `json:"category"`
	StartedAt  time.Time         `json:"started_at"`
	Took       time.Duration     `json:"took"`
	Deliveries []Delivery        `json:"deliveries"`
}

func (r Report) Delivered() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.OK {
			n++
		}
	}
	return n
}

func (r Report) Failed() int { return len(r.Deliveries) - r.Delivered() }

type Router struct {
	lookup  Lookup
	gateway kit.Gateway
	catalog *category.Catalog
	bus     eventbus.Bus
	log     logx.Logger
	tracer  trace.Tracer

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
}

type Option func(*Router)

func WithBus(b eventbus.Bus) Option { return func(r *Router) { r.bus = b } }

func WithLogger(l logx.Logger) Option { return func(r *Router) { r.log = l } }

func WithTracer(t trace.Tracer) Option { return func(r *Router) { r.tracer = t } }

func New(cfg Config, lookup Lookup, gw kit.Gateway, catalog *category.Catalog, opts ...Option) *Router {
	if catalog == nil {
		catalog = category.MustDefault()
	}
	r := &Router{lookup: lookup, gateway: gw, catalog: catalog}
	for _, o := range opts {
		o(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	r.Apply(cfg)
	return r
}

// Apply swaps pacing settings; in-flight Route calls keep their settings.
func (r *Router) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	r.mu.Lock()
	r.cfg = cfg
	r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	r.mu.Unlock()
}

func (r *Router) settings() (Config, *rate.Limiter) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg, r.limiter
}

// Route validates the notification and delivers payload to every channel
// registered for rawCategory. Validation failures return before the
// registry is read. Sends run on a context detached from ctx, so a caller
// that gives up does not cancel deliveries already under way.
func (r *Router) Route(ctx context.Context, rawCategory, payload string) (Report, error) {
	if strings.TrimSpace(rawCategory) == "" || strings.TrimSpace(payload) == "" {
		return Report{}, errs.Validation("type and message are required", nil)
	}
	cat, ok := r.catalog.Parse(rawCategory)
	if !ok {
		return Report{}, errs.Validation("unknown type", map[string]any{"type": rawCategory})
	}

	rep := Report{ID: uuid.NewString(), Category: cat, StartedAt: time.Now()}
	ctx, span := r.tracer.Start(ctx, "router.Route", trace.WithAttributes(
		attribute.String("notification.id", rep.ID),
		attribute.String("notification.category", string(cat)),
	))
	defer span.End()

	dests := r.lookup.AllForCategory(cat)
	rep.Deliveries = make([]Delivery, len(dests))
	span.SetAttributes(attribute.Int("notification.destinations", len(dests)))

	cfg, limiter := r.settings()
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for i, d := range dests {
		g.Go(func() error {
			rep.Deliveries[i] = r.deliver(detached, cfg, limiter, d, payload)
			return nil
		})
	}
	_ = g.Wait()
	rep.Took = time.Since(rep.StartedAt)

	failed := rep.Failed()
	span.SetAttributes(attribute.Int("notification.failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, "some deliveries failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	r.log.Info("notification routed",
		logx.String("id", rep.ID),
		logx.String("category", string(cat)),
		logx.Int("destinations", len(dests)),
		logx.Int("failed", failed),
		logx.Duration("took", rep.Took),
	)
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Topic: eventbus.TopicRouted, Data: rep})
	}
	return rep, nil
}

func (r *Router) deliver(ctx context.Context, cfg Config, limiter *rate.Limiter, d registry.Destination, payload string) (out Delivery) {
	out = Delivery{GuildID: d.GuildID, ChannelID: d.ChannelID}
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "router.deliver", trace.WithAttributes(
		attribute.String("guild.id", d.GuildID.String()),
		attribute.String("channel.id", d.ChannelID.String()),
	))
	defer func() {
		out.Took = time.Since(start)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
			r.log.Warn("delivery failed",
				logx.Stringer("guild_id", d.GuildID),
				logx.Stringer("channel_id", d.ChannelID),
				logx.Err(out.Err),
			)
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	meta := map[string]any{"guild_id": d.GuildID.String(), "channel_id": d.ChannelID.String()}
	if err := limiter.Wait(ctx); err != nil {
		out.Err = errs.Delivery(err, "delivery was not paced in time", meta)
		return out
	}
	ch, err := r.gateway.ResolveChannel(ctx, d.ChannelID)
	if err != nil {
		out.Err = errs.Delivery(err, "channel could not be resolved", meta)
		return out
	}
	if !ch.Text {
		out.Err = errs.Delivery(nil, "channel is not a text channel", meta)
		return out
	}
	if ch.GuildID != 0 && ch.GuildID != d.GuildID {
		out.Err = errs.Delivery(nil, "channel belongs to another guild", meta)
		return out
	}
	if err := r.gateway.Send(ctx, d.ChannelID, payload); err != nil {
		out.Err = errs.Delivery(err, "message could not be sent", meta)
		return out
	}
	out.OK = true
	return out
}
