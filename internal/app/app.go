// Package app wires the bridge together: config, logging, the registry,
// the Discord session, the webhook listener and the audit schedule.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"gamebridge/internal/audit"
	"gamebridge/internal/category"
	"gamebridge/internal/command"
	"gamebridge/internal/config"
	"gamebridge/internal/eventbus"
	"gamebridge/internal/registry"
	"gamebridge/internal/router"
	"gamebridge/internal/runtime/supervisor"
	"gamebridge/internal/storage"
	"gamebridge/internal/transport/discord"
	"gamebridge/internal/transport/webhook"
	logx "gamebridge/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	reg   *registry.Service

	catalog *category.Catalog
	adapter *discord.Adapter
	router  *router.Router
	cmds    *command.Handler
	web     *webhook.Server
	audit   *audit.Service
}

// New loads the config and builds every component. Nothing touches the
// network until Start. A corrupt registry is fatal here.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	catalog, err := config.Catalog(cfg)
	if err != nil {
		return nil, err
	}
	appID, err := config.ApplicationID(cfg)
	if err != nil {
		return nil, err
	}

	// The Discord sink needs the adapter as its sender, so logging starts
	// with the sink off and the final config is applied once it exists.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Discord.Enabled = false
	logSvc, log := logx.New(bootCfg, nil)

	ad, err := discord.New(discord.Config{
		Token:            cfg.Discord.Token,
		ApplicationID:    appID,
		RegisterCommands: cfg.Discord.ShouldRegisterCommands(),
		CommandTimeout:   config.DurationOr(cfg.Discord.CommandTimeout, 10*time.Second),
	}, catalog, log.With(logx.String("comp", "discord")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	logSvc.SetSender(ad)
	logSvc.Apply(logCfg)

	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	reg, store, err := OpenRegistry(ctx, cfg, catalog, log, registry.WithBus(bus))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	rcfg, err := mapRouterConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rt := router.New(rcfg, reg, ad, catalog,
		router.WithBus(bus),
		router.WithLogger(log.With(logx.String("comp", "router"))),
	)

	cmds := command.New(reg, catalog, log.With(logx.String("comp", "commands")), command.Options{
		Timeout: config.DurationOr(cfg.Discord.CommandTimeout, 10*time.Second),
	})
	ad.SetHandler(cmds)

	handler := webhook.NewHandler(webhook.HandlerOptions{
		Router:        rt,
		Path:          cfg.Webhook.RoutePath(),
		MaxBodyBytes:  cfg.Webhook.BodyLimit(),
		ApplicationID: appID.String(),
		Log:           log.With(logx.String("comp", "http")),
	})
	web := webhook.NewServer(mapWebhookConfig(cfg), handler, log.With(logx.String("comp", "webhook")))

	acfg, err := mapAuditConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	aud := audit.New(acfg, reg, ad,
		audit.WithBus(bus),
		audit.WithLogger(log.With(logx.String("comp", "audit"))),
	)

	return &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		reg:     reg,
		catalog: catalog,
		adapter: ad,
		router:  rt,
		cmds:    cmds,
		web:     web,
		audit:   aud,
	}, nil
}

// OpenRegistry opens the configured store and loads the registry from it.
// The store is closed again when loading fails.
func OpenRegistry(ctx context.Context, cfg *config.Config, catalog *category.Catalog, log logx.Logger, opts ...registry.Option) (*registry.Service, storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, nil, err
	}
	opts = append([]registry.Option{registry.WithLogger(log.With(logx.String("comp", "registry")))}, opts...)
	reg := registry.New(store, catalog, opts...)
	if err := reg.Load(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return reg, store, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// Bind the port first so a conflict fails before the bot goes online.
	if err := a.web.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.audit.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("topic", e.Topic), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	cfg := a.cfgm.Get()
	a.log.Info("app started",
		logx.String("listen", a.web.Addr()),
		logx.String("webhook_path", cfg.Webhook.RoutePath()),
		logx.String("categories", strings.Join(a.catalog.Names(), ",")),
		logx.Int("registrations", a.reg.Len()),
	)
	return nil
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// apply pushes the hot sections of newCfg into the running components.
func (a *App) apply(oldCfg, newCfg *config.Config) {
	change := config.SummarizeChange(oldCfg, newCfg)
	if len(change.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Fields...)
	a.log.Debug("config change summary", fields...)

	if change.Has("logging") {
		a.logs.Apply(mapLogConfig(newCfg))
	}
	if change.Has("router") {
		if rc, err := mapRouterConfig(newCfg); err != nil {
			a.log.Warn("invalid router config; keeping previous", logx.Err(err))
		} else {
			a.router.Apply(rc)
		}
	}
	if change.Has("audit") {
		if ac, err := mapAuditConfig(newCfg); err != nil {
			a.log.Warn("invalid audit config; keeping previous", logx.Err(err))
		} else if err := a.audit.Apply(ac); err != nil {
			a.log.Warn("audit reschedule failed", logx.Err(err))
		}
	}
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}

	a.bus.Publish(eventbus.Event{Topic: eventbus.TopicConfigApplied, Data: change.Sections})
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Inbound first so nothing new starts routing, then the session.
	step("webhook", 10*time.Second, a.web.Stop)
	step("audit", 2*time.Second, a.audit.Stop)
	step("discord", 3*time.Second, a.adapter.Stop)
	step("registry", 2*time.Second, a.reg.Flush)
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Stop)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
