package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meetcap/internal/domain"
)

func TestWatchSourcesPrimesBeforeReturning(t *testing.T) {
	t.Parallel()

	lister := &countingLister{}
	ctx, cancel := context.WithCancel(context.Background())
	done := WatchSources(ctx, lister, time.Hour, quietLogger())
	if got := lister.count(); got != 1 {
		t.Fatalf("expected one enumeration before return, got %d", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("refresh loop did not exit")
	}
}

func TestWatchSourcesRefreshesAndSurvivesFailures(t *testing.T) {
	t.Parallel()

	lister := &countingLister{err: errors.New("pactl: connection refused")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	WatchSources(ctx, lister, 5*time.Millisecond, quietLogger())
	deadline := time.Now().Add(2 * time.Second)
	for lister.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected periodic refreshes, got %d", lister.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type countingLister struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingLister) Enumerate(context.Context) ([]domain.AudioSource, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return nil, l.err
}

func (l *countingLister) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}
