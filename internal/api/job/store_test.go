package job

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/newthinker/equicurve/internal/core"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(100, time.Hour)

	job := store.Create("backtest", map[string]any{"strategy": "sma"})
	if job.ID == "" {
		t.Error("expected job ID")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected queued, got %s", job.Status)
	}

	retrieved, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.ID != job.ID {
		t.Error("IDs don't match")
	}
	if retrieved.Params["strategy"] != "sma" {
		t.Errorf("expected params to be kept, got %v", retrieved.Params)
	}
}

func TestStore_Update(t *testing.T) {
	store := NewStore(100, time.Hour)
	job := store.Create("stats", nil)

	err := store.Update(job.ID, func(j *Job) {
		j.Status = StatusRunning
		j.Progress = 0.5
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	retrieved, _ := store.Get(job.ID)
	if retrieved.Status != StatusRunning {
		t.Errorf("expected running, got %s", retrieved.Status)
	}
	if retrieved.Progress != 0.5 {
		t.Errorf("expected 0.5, got %v", retrieved.Progress)
	}
}

func TestStore_MaxSize(t *testing.T) {
	store := NewStore(2, time.Hour)

	job1 := store.Create("stats", nil)
	store.Create("stats", nil)
	store.Create("stats", nil) // Should evict job1

	_, err := store.Get(job1.ID)
	if err == nil {
		t.Error("expected job1 to be evicted")
	}
	if n := len(store.List()); n != 2 {
		t.Errorf("expected 2 jobs, got %d", n)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := NewStore(100, time.Hour)

	_, err := store.Get("nonexistent")
	if !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := store.Update("nonexistent", func(*Job) {}); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound from Update, got %v", err)
	}
}

func TestStore_List(t *testing.T) {
	store := NewStore(100, time.Hour)
	first := store.Create("backtest", nil)
	store.Create("stats", nil)

	jobs := store.List()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID {
		t.Error("expected insertion order")
	}
}

func TestStore_PurgeExpired(t *testing.T) {
	store := NewStore(100, time.Hour)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	done := store.Create("stats", nil)
	store.Update(done.ID, func(j *Job) { j.Status = StatusCompleted })
	running := store.Create("stats", nil)
	store.Update(running.ID, func(j *Job) { j.Status = StatusRunning })

	now = now.Add(2 * time.Hour)
	if n := store.Purge(); n != 1 {
		t.Errorf("expected 1 purged job, got %d", n)
	}
	if _, err := store.Get(done.ID); err == nil {
		t.Error("expected finished job to be purged")
	}
	if _, err := store.Get(running.ID); err != nil {
		t.Error("expected running job to survive purge")
	}
}

func TestStore_Active(t *testing.T) {
	store := NewStore(100, time.Hour)
	a := store.Create("stats", nil)
	store.Create("stats", nil)
	store.Create("backtest", nil)
	store.Update(a.ID, func(j *Job) { j.Status = StatusFailed })

	if n := store.Active("stats"); n != 1 {
		t.Errorf("expected 1 active stats job, got %d", n)
	}
}

func TestStore_Subscribe(t *testing.T) {
	store := NewStore(100, time.Hour)
	job := store.Create("stats", nil)

	ch, cancel, err := store.Subscribe(job.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	first := <-ch
	if first.Status != StatusQueued {
		t.Errorf("expected current state first, got %s", first.Status)
	}

	store.Update(job.ID, func(j *Job) { j.Status = StatusRunning; j.Progress = 0.25 })
	store.Update(job.ID, func(j *Job) { j.Progress = 0.75 })

	latest := <-ch
	if latest.Progress != 0.75 {
		t.Errorf("expected latest progress 0.75, got %v", latest.Progress)
	}

	store.Update(job.ID, func(j *Job) { j.Status = StatusCompleted; j.Progress = 1 })
	final, ok := <-ch
	if !ok || final.Status != StatusCompleted {
		t.Fatalf("expected completed state, got %+v ok=%v", final, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to close after completion")
	}
}

func TestStore_SubscribeFinishedJob(t *testing.T) {
	store := NewStore(100, time.Hour)
	job := store.Create("stats", nil)
	store.Update(job.ID, func(j *Job) { j.Status = StatusCompleted })

	ch, cancel, err := store.Subscribe(job.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	got, ok := <-ch
	if !ok || got.Status != StatusCompleted {
		t.Errorf("expected final state, got %+v", got)
	}
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
}

func TestStore_SubscribeCancel(t *testing.T) {
	store := NewStore(100, time.Hour)
	job := store.Create("stats", nil)

	ch, cancel, _ := store.Subscribe(job.ID)
	<-ch
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected channel closed after cancel")
	}
	// Updates after cancel must not panic.
	store.Update(job.ID, func(j *Job) { j.Progress = 0.1 })
}

func TestErrorFrom(t *testing.T) {
	e := ErrorFrom(core.WrapError(core.ErrStatsFailed, fmt.Errorf("boom")))
	if e.Code != "STATS_FAILED" || e.Message != "summary statistics job failed: boom" {
		t.Errorf("unexpected %+v", e)
	}
	if e := ErrorFrom(errors.New("plain")); e.Code != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", e.Code)
	}
}
