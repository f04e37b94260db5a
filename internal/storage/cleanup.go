package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/log"
)

// CleanupManager sweeps expired browser contexts out of a Sweeper on a
// fixed interval, and once more when stopped
type CleanupManager struct {
	sweeper  Sweeper
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewCleanupManager(sweeper Sweeper, interval time.Duration) *CleanupManager {
	return &CleanupManager{sweeper: sweeper, interval: interval}
}

// Start launches the sweep loop. Calling it on a running manager does nothing.
func (cm *CleanupManager) Start(ctx context.Context) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.running {
		return
	}
	cm.running = true
	cm.stop = make(chan struct{})
	cm.done = make(chan struct{})

	log.LogInfoWithFields("cleanup", "Sweeping expired browser contexts", map[string]any{
		"interval": cm.interval.String(),
	})
	go cm.loop(ctx, cm.stop, cm.done)
}

// Stop runs a final sweep and waits for the loop to exit. It is safe to
// call on a manager that was never started.
func (cm *CleanupManager) Stop() {
	cm.mu.Lock()
	if !cm.running {
		cm.mu.Unlock()
		return
	}
	cm.running = false
	stop, done := cm.stop, cm.done
	cm.mu.Unlock()

	close(stop)
	<-done
	log.LogDebugWithFields("cleanup", "Sweep loop stopped", nil)
}

func (cm *CleanupManager) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.sweep(ctx)
		case <-stop:
			cm.sweep(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) sweep(ctx context.Context) {
	start := time.Now()
	removed, err := cm.sweeper.CleanupExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Sweep failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if removed > 0 {
		log.LogInfoWithFields("cleanup", "Removed expired browser contexts", map[string]any{
			"count":       removed,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}
