package habit

import (
	"context"
	"testing"
	"time"

	"habitbell/internal/storage"
)

func TestRecordAndLast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCheckIns(storage.NewMemory())

	if _, ok, err := c.Last(ctx); ok || err != nil {
		t.Fatalf("empty log ok=%v err=%v", ok, err)
	}
	t1 := time.Date(2026, 3, 4, 21, 0, 0, 0, time.UTC)
	t0 := t1.Add(-24 * time.Hour)
	if err := c.Record(ctx, t1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Record(ctx, t0); err != nil {
		t.Fatalf("Record: %v", err)
	}
	last, ok, err := c.Last(ctx)
	if err != nil || !ok || !last.Equal(t1) {
		t.Fatalf("Last=%v ok=%v err=%v want %v", last, ok, err, t1)
	}
}

func TestStreak(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCheckIns(storage.NewMemory())
	now := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

	for _, d := range []int{1, 2, 3, 5} {
		if err := c.Record(ctx, now.AddDate(0, 0, -d)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	n, err := c.Streak(ctx, now, time.UTC)
	if err != nil || n != 3 {
		t.Fatalf("streak=%d err=%v want 3", n, err)
	}

	if err := c.Record(ctx, now); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if n, _ := c.Streak(ctx, now, time.UTC); n != 4 {
		t.Fatalf("streak=%d want 4", n)
	}
}

func TestCorruptLogReadsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.Set(ctx, Key, []byte("{"))
	c := NewCheckIns(st)
	if _, ok, err := c.Last(ctx); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if err := c.Record(ctx, time.Now()); err != nil {
		t.Fatalf("Record over corrupt log: %v", err)
	}
}
