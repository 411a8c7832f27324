package usecase

import (
	"context"
	"log"
	"time"

	"meetcap/internal/domain"
)

const DefaultSourceRefresh = 5 * time.Second

// SourceLister enumerates audio sources, replacing the snapshot that meeting
// detection joins against.
type SourceLister interface {
	Enumerate(ctx context.Context) ([]domain.AudioSource, error)
}

// WatchSources enumerates once before returning, so detection started
// afterwards joins against a fresh snapshot, then re-enumerates every interval
// until ctx is done. The returned channel closes when the refresh loop exits.
// Failures are logged and leave the previous snapshot in place.
func WatchSources(ctx context.Context, sources SourceLister, interval time.Duration, logger *log.Logger) <-chan struct{} {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = DefaultSourceRefresh
	}

	refresh := func() {
		if _, err := sources.Enumerate(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("sources: refresh failed: %v", err)
		}
	}
	refresh()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()
	return done
}
