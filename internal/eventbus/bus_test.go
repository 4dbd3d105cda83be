package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	sched, unsubSched := b.Subscribe(4, "scheduler.")
	defer unsubSched()

	b.Publish(Event{Type: SchedulerScheduled, Data: ScheduleEvent{Type: "daily-checkin"}})
	b.Publish(Event{Type: NotifierSent})

	if got := len(all); got != 2 {
		t.Fatalf("all subscriber got %d events want 2", got)
	}
	if got := len(sched); got != 1 {
		t.Fatalf("prefix subscriber got %d events want 1", got)
	}
	e := <-sched
	if e.Type != SchedulerScheduled || e.Time.IsZero() {
		t.Fatalf("event=%+v", e)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber")
	}
	if b.Dropped() != 9 {
		t.Fatalf("dropped=%d want 9", b.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	b.Publish(Event{Type: "after"})
}
