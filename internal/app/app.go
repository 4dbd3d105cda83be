// Package app wires the daemon: config, logging, storage, delivery, the local
// notification platform and the scheduler, and keeps them in step with
// config reloads.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync/atomic"
	"time"

	"habitbell/internal/config"
	"habitbell/internal/eventbus"
	"habitbell/internal/gateway/local"
	"habitbell/internal/habit"
	"habitbell/internal/notifier"
	"habitbell/internal/registry"
	"habitbell/internal/reminder"
	rtsup "habitbell/internal/runtime/supervisor"
	"habitbell/internal/scheduler"
	"habitbell/internal/storage"
	kit "habitbell/internal/transport"
	"habitbell/internal/transport/console"
	"habitbell/internal/transport/telegram"
	logx "habitbell/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	bus   eventbus.Bus

	sender   kit.Sender
	receiver kit.Receiver // nil when the transport takes no commands

	notif    *notifier.Service
	gw       *local.Gateway
	sched    *scheduler.Scheduler
	checkins *habit.CheckIns

	now     func() time.Time
	opts    options
	timeout atomic.Int64 // per-operation bound, from notifications.op_timeout
}

type options struct {
	out    io.Writer
	now    func() time.Time
	notify func(state string) // sd_notify
}

type Option func(*options)

// WithOutput redirects the console transport.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithClock overrides time.Now for check-ins and scheduling.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New loads the config at cfgPath (defaults when the file does not exist)
// and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	o := options{now: time.Now, notify: sdNotify}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfgm.Commit(cfg)
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	logs, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.Comp("app"))
	cfgm.SetLogger(root.With(logx.Comp("config")))

	a := &App{
		cfgm: cfgm,
		log:  log,
		logs: logs,
		bus:  eventbus.New(),
		now:  o.now,
		opts: o,
	}
	a.timeout.Store(int64(opTimeout(cfg)))
	if err := a.build(ctx, cfg, root); err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logs.Close()
		return nil, err
	}
	log.Info("app initialized",
		logx.String("config", cfgPath),
		logx.String("storage", cfg.Storage.Driver),
		logx.String("transport", transportName(cfg)),
	)
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, root logx.Logger) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, root.With(logx.Comp("storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	switch transportName(cfg) {
	case "telegram":
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return err
		}
		ad, err := telegram.New(telegram.Config{
			Token:        cfg.Telegram.Token,
			PollTimeout:  pollTimeout,
			AllowedChats: []int64{cfg.Delivery.ChatID},
		}, root.With(logx.Comp("telegram")))
		if err != nil {
			return err
		}
		a.sender, a.receiver = ad, ad
	default:
		a.sender = console.New(a.opts.out, root.With(logx.Comp("console")))
	}

	ncfg, target, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	a.notif = notifier.New(ncfg, a.sender, target, root.With(logx.Comp("notifier")), a.bus, store)

	gcfg, err := mapGatewayConfig(cfg)
	if err != nil {
		return err
	}
	a.gw, err = local.New(ctx, gcfg, a.notif, store, root.With(logx.Comp("gateway")))
	if err != nil {
		return err
	}

	plans, err := config.Plans(cfg)
	if err != nil {
		return err
	}
	a.checkins = habit.NewCheckIns(store)
	a.sched = scheduler.New(a.gw, registry.New(store, root.With(logx.Comp("registry"))),
		scheduler.WithPlans(plans),
		scheduler.WithBus(a.bus),
		scheduler.WithCheckIns(a.checkins),
		scheduler.WithClock(a.now),
		scheduler.WithLogger(root.With(logx.Comp("scheduler"))),
	)
	a.gw.OnFired(a.forgetFired)
	return nil
}

// forgetFired drops a fired one-shot from the registry so status stops
// counting it.
func (a *App) forgetFired(handle string, t reminder.Type) {
	ctx, cancel := a.opContext(context.Background())
	defer cancel()
	if err := a.sched.Forget(ctx, t, handle); err != nil {
		a.log.Warn("forget fired notification failed", logx.String("type", string(t)), logx.String("handle", handle), logx.Err(err))
	}
}

// Scheduler exposes the caller API for embedding and tests.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Gateway exposes the local platform for status output.
func (a *App) Gateway() *local.Gateway { return a.gw }

// Done is closed when the app context ends, including on a fatal task error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

// Err reports the first fatal task error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// opContext bounds one scheduler operation.
func (a *App) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(a.timeout.Load()))
}

// Start brings the platform up, restores and aligns schedules, then starts
// the command transport and the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.Comp("supervisor"))), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	runCtx := a.sup.Context()

	// Audit first so startup scheduling is recorded.
	a.startAudit()

	a.notif.Start(runCtx)
	a.gw.Start(runCtx)

	if err := a.launch(runCtx, a.cfgm.Get()); err != nil {
		return err
	}

	if a.receiver != nil {
		a.registerCommands(a.receiver)
		if err := a.receiver.Start(runCtx); err != nil {
			return err
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.startWatchdog()

	a.opts.notify(sdReady)
	a.log.Info("app started", logx.Strings("enabled", typeNames(a.sched.Enabled())))
	return nil
}

// Stop tears components down in reverse dependency order. Every step is
// bounded so one stuck component can't stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.opts.notify(sdStopping)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	if a.receiver != nil {
		step("transport", 2*time.Second, a.receiver.Stop)
	}
	step("gateway", 2*time.Second, func(c context.Context) error { a.gw.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
