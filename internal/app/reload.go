package app

import (
	"context"
	"strings"

	"habitbell/internal/config"
	logx "habitbell/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			if cfg == nil {
				continue
			}
			a.applyConfig(ctx, last, cfg)
			last = cfg
		}
	}
}

// applyConfig moves the running daemon from oldCfg to newCfg. Both passed
// Validate. Storage, gateway and transport changes need a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	if rs := config.RequiresRestart(oldCfg, newCfg); len(rs) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strings("sections", rs))
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if ncfg, target, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg, target)
	}

	a.timeout.Store(int64(opTimeout(newCfg)))

	plans, err := config.Plans(newCfg)
	if err != nil {
		a.log.Warn("invalid schedules; keeping previous", logx.Err(err))
		return
	}
	a.sched.SetPlans(plans)

	diff := config.DiffEnabled(oldCfg, newCfg)
	if !diff.Empty() {
		a.apply(ctx, diff.Enable, diff.Disable, plans)
	}

	a.log.Info("config applied",
		logx.String("changed", strings.Join(sections, ",")),
		logx.Strings("enabled", typeNames(a.sched.Enabled())),
	)
}
