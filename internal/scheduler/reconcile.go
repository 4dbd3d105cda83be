package scheduler

import (
	"context"

	"habitbell/internal/eventbus"
	"habitbell/internal/gateway"
	"habitbell/internal/reminder"
	logx "habitbell/pkg/logx"
)

// Reconcile aligns the registry with what the gateway reports as active.
// Records whose handle is gone (a fired one-shot, a platform purge) are
// dropped; active handles nobody recorded are cancelled. Gateways that can't
// list their schedules make this a no-op.
func (s *Scheduler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	lister, ok := s.gw.(gateway.Lister)
	if !ok {
		return ReconcileReport{}, nil
	}
	unlock, err := s.lockAll(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	defer unlock()

	active, err := lister.Scheduled(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	live := make(map[string]bool, len(active))
	for _, h := range active {
		live[h] = true
	}

	rep := ReconcileReport{Supported: true, Pruned: map[reminder.Type]int{}}
	known := map[string]bool{}
	for t, entries := range s.reg.Snapshot() {
		keep := entries[:0:0]
		for _, e := range entries {
			known[e.Handle] = true
			if live[e.Handle] {
				keep = append(keep, e)
			}
		}
		if len(keep) == len(entries) {
			continue
		}
		if err := s.reg.ReplaceType(ctx, t, keep); err != nil {
			return rep, err
		}
		rep.Pruned[t] = len(entries) - len(keep)
	}

	for _, h := range active {
		if known[h] {
			continue
		}
		if err := s.gw.Cancel(ctx, h); err != nil {
			s.log.Warn("orphan cancel failed", logx.String("handle", h), logx.Err(err))
			continue
		}
		rep.Orphans = append(rep.Orphans, h)
	}

	s.log.Info("reconciled", logx.Int("pruned", rep.PrunedTotal()), logx.Int("orphans", len(rep.Orphans)))
	s.publish(eventbus.SchedulerReconciled, eventbus.ScheduleEvent{Pruned: rep.PrunedTotal(), Orphaned: len(rep.Orphans)})
	return rep, nil
}
