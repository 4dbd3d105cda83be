package app

import (
	"context"
	"encoding/json"
	"hash/fnv"

	"habitbell/internal/config"
	"habitbell/internal/reminder"
	"habitbell/internal/scheduler"
	logx "habitbell/pkg/logx"
)

// plansKey remembers the plan each enabled type was last installed from, so a
// restart only reinstalls types whose config changed while we were down.
const plansKey = "app.plans.v1"

// launch runs the startup protocol: permission, restore, reconcile, then
// align the enabled set with the config.
func (a *App) launch(ctx context.Context, cfg *config.Config) error {
	granted, err := a.gw.RequestPermission(ctx)
	if err != nil {
		return err
	}

	restored, err := a.sched.RestoreOnLaunch(ctx)
	if err != nil {
		return err
	}

	rctx, cancel := a.opContext(ctx)
	rep, err := a.sched.Reconcile(rctx)
	cancel()
	if err != nil {
		a.log.Warn("reconcile failed", logx.Err(err))
	} else if rep.PrunedTotal() > 0 || len(rep.Orphans) > 0 {
		a.log.Info("reconciled with platform", logx.String("report", rep.String()))
	}

	if !granted {
		a.log.Warn("notification permission denied; scheduled reminders stay off")
		return nil
	}

	want, err := config.EnabledTypes(cfg)
	if err != nil {
		return err
	}
	plans, err := config.Plans(cfg)
	if err != nil {
		return err
	}
	prints := a.loadFingerprints(ctx)

	// Reconcile may have emptied restored slots; decide from the registry as
	// it stands now.
	on := map[reminder.Type]bool{}
	var enable []reminder.Type
	for _, t := range want {
		on[t] = true
		if len(a.sched.Entries(t)) == 0 || prints[t] != fingerprint(plans[t]) {
			enable = append(enable, t)
		}
	}
	var disable []reminder.Type
	for _, t := range reminder.ScheduledTypes() {
		if !on[t] && (a.sched.IsEnabled(t) || len(restored[t]) > 0) {
			disable = append(disable, t)
		}
	}

	a.apply(ctx, enable, disable, plans)
	return nil
}

// apply enables and disables types, each bounded by the op timeout, and
// records the plan fingerprints of what ended up enabled. Failures are logged
// per type; they never abort the caller.
func (a *App) apply(ctx context.Context, enable, disable []reminder.Type, plans map[reminder.Type]reminder.Plan) {
	failed := map[reminder.Type]bool{}
	run := func(op string, t reminder.Type, fn func(context.Context, ...reminder.Type) error) {
		opCtx, cancel := a.opContext(ctx)
		defer cancel()
		if err := fn(opCtx, t); err != nil {
			failed[t] = true
			if be, ok := scheduler.AsBatch(err); ok {
				err = be.For(t)
			}
			a.log.Warn(op+" failed", logx.String("type", string(t)), logx.Err(err))
			return
		}
		a.log.Info(op+"d", logx.String("type", string(t)), logx.Int("entries", len(a.sched.Entries(t))))
	}
	for _, t := range disable {
		run("disable", t, a.sched.Disable)
	}
	for _, t := range enable {
		run("enable", t, a.sched.Enable)
	}

	prints := map[reminder.Type]uint64{}
	for _, t := range a.sched.Enabled() {
		if failed[t] {
			continue
		}
		if p, ok := plans[t]; ok {
			prints[t] = fingerprint(p)
		}
	}
	a.saveFingerprints(ctx, prints)
}

func (a *App) loadFingerprints(ctx context.Context) map[reminder.Type]uint64 {
	out := map[reminder.Type]uint64{}
	b, ok, err := a.store.Get(ctx, plansKey)
	if err != nil {
		a.log.Warn("load plan fingerprints failed", logx.Err(err))
		return out
	}
	if !ok {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil {
		a.log.Warn("plan fingerprints corrupt; reinstalling", logx.Err(err))
		return map[reminder.Type]uint64{}
	}
	return out
}

func (a *App) saveFingerprints(ctx context.Context, prints map[reminder.Type]uint64) {
	b, err := json.Marshal(prints)
	if err != nil {
		return
	}
	if err := a.store.Set(ctx, plansKey, b); err != nil {
		a.log.Warn("save plan fingerprints failed", logx.Err(err))
	}
}

func fingerprint(p reminder.Plan) uint64 {
	b, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func typeNames(ts []reminder.Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}
