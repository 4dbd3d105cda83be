package app

import (
	"context"
	"encoding/json"
	"strings"

	"habitbell/internal/eventbus"
	"habitbell/internal/storage"
	logx "habitbell/pkg/logx"
)

// startAudit appends every scheduler event to the store's audit log and
// traces delivery events at debug level.
func (a *App) startAudit() {
	events, unsub := a.bus.Subscribe(128, "scheduler.", "notifier.")
	a.sup.Go0("audit", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.record(c, e)
			}
		}
	})
}

func (a *App) record(ctx context.Context, e eventbus.Event) {
	if !strings.HasPrefix(e.Type, "scheduler.") {
		a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		return
	}
	se, _ := e.Data.(eventbus.ScheduleEvent)
	entry := storage.AuditEntry{
		At:      e.Time,
		Action:  strings.TrimPrefix(e.Type, "scheduler."),
		Type:    se.Type,
		Handles: len(se.Handles),
		Error:   se.Error,
	}
	if se.Pruned > 0 || se.Orphaned > 0 {
		if b, err := json.Marshal(map[string]int{"pruned": se.Pruned, "orphaned": se.Orphaned}); err == nil {
			entry.MetaJSON = string(b)
		}
	}
	if err := a.store.AppendAudit(ctx, entry); err != nil {
		a.log.Debug("audit append failed", logx.String("action", entry.Action), logx.Err(err))
	}
}
