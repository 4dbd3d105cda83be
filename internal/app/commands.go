package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"habitbell/internal/reminder"
	kit "habitbell/internal/transport"
	logx "habitbell/pkg/logx"
)

// Streak lengths that earn a milestone notification.
var milestones = []int{3, 7, 14, 30, 60, 100, 180, 365}

func (a *App) registerCommands(r kit.Receiver) {
	r.Handle("checkin", "Log today's check-in", a.cmdCheckIn)
	r.Handle("status", "Show scheduled reminders", a.cmdStatus)
	r.Handle("urge", "Get help riding out an urge", a.cmdUrge)
}

// cmdCheckIn records a check-in, which also moves the streak warning.
func (a *App) cmdCheckIn(ctx context.Context, cmd kit.Command) (string, error) {
	at := a.now()
	loc := a.gw.Location()
	prev, hadPrev, perr := a.checkins.Last(ctx)
	if perr != nil {
		return "", perr
	}
	opCtx, cancel := a.opContext(ctx)
	defer cancel()
	handles, err := a.sched.RecordCheckIn(opCtx, at)
	if err != nil {
		// The check-in itself may have been stored; only the warning move failed.
		a.log.Warn("check-in reschedule failed", logx.Err(err))
	}
	streak, serr := a.checkins.Streak(ctx, at, loc)
	if serr != nil {
		return "", serr
	}
	a.log.Info("check-in recorded", logx.Int64("chat_id", cmd.ChatID), logx.Int("streak", streak), logx.Int("warnings", len(handles)))

	if isMilestone(streak) && raisesStreak(prev, hadPrev, at, loc) {
		c := reminder.DefaultContent(reminder.Milestone)
		c.Body = fmt.Sprintf("%d days in a row. Keep it up!", streak)
		if err := a.sched.SendImmediate(opCtx, c, reminder.PriorityHigh); err != nil {
			a.log.Warn("milestone notification failed", logx.Int("streak", streak), logx.Err(err))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Checked in. Streak: %d %s.", streak, plural(streak, "day", "days"))
	if len(handles) > 0 {
		if p, ok := a.sched.Plan(reminder.StreakWarning); ok {
			fmt.Fprintf(&b, "\nNext streak warning at %s.", at.Add(p.After).In(loc).Format("Mon 15:04"))
		}
	}
	if err != nil {
		b.WriteString("\nCould not move the streak warning; it will be fixed on the next check-in.")
	}
	return b.String(), nil
}

func (a *App) cmdStatus(ctx context.Context, _ kit.Command) (string, error) {
	enabled := a.sched.Enabled()
	if len(enabled) == 0 {
		return "No reminders enabled.", nil
	}
	// Count what the platform still holds; fired one-shots are already gone
	// there even if the registry has not caught up.
	next := map[reminder.Type]string{}
	count := map[reminder.Type]int{}
	for _, p := range a.gw.Pending() {
		count[p.Type]++
		if _, seen := next[p.Type]; !seen && !p.Next.IsZero() {
			next[p.Type] = p.Next.In(a.gw.Location()).Format("Mon 15:04")
		}
	}

	var b strings.Builder
	b.WriteString("Reminders:")
	for _, t := range enabled {
		fmt.Fprintf(&b, "\n- %s: %d scheduled", t, count[t])
		if at, ok := next[t]; ok {
			fmt.Fprintf(&b, ", next %s", at)
		}
	}
	if last, ok, err := a.checkins.Last(ctx); err == nil && ok {
		fmt.Fprintf(&b, "\nLast check-in: %s", last.In(a.gw.Location()).Format("Mon 02 Jan 15:04"))
	}
	return b.String(), nil
}

func (a *App) cmdUrge(ctx context.Context, _ kit.Command) (string, error) {
	opCtx, cancel := a.opContext(ctx)
	defer cancel()
	if err := a.sched.SendImmediate(opCtx, reminder.DefaultContent(reminder.UrgeWarning), reminder.PriorityUrgent); err != nil {
		return "", err
	}
	return "", nil
}

func isMilestone(streak int) bool {
	for _, m := range milestones {
		if m == streak {
			return true
		}
	}
	return false
}

// raisesStreak reports whether a check-in at at is the first of its calendar
// day, so repeat check-ins never re-announce the same milestone.
func raisesStreak(prev time.Time, hadPrev bool, at time.Time, loc *time.Location) bool {
	if !hadPrev {
		return true
	}
	py, pm, pd := prev.In(loc).Date()
	ay, am, ad := at.In(loc).Date()
	return time.Date(py, pm, pd, 0, 0, 0, 0, time.UTC).Before(time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
