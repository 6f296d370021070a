// Package throttle implements a sliding-window request throttle over the shared
// key-value store.
//
// The read-evict-append-write sequence is not atomic: concurrent requests for the same
// identity may be slightly over-admitted.
package throttle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go-auth-server/internal/cache"
)

type Throttle struct {
	store  cache.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store cache.Store, logger *slog.Logger) *Throttle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttle{store: store, logger: logger, now: time.Now}
}

func Key(scope string, identity string) string {
	return "throttle:" + scope + ":" + identity
}

// window is a sequence of request times in Unix nanoseconds, newest first.
type window []int64

func (t *Throttle) load(ctx context.Context, key string, rate Rate, now time.Time) (window, error) {
	raw, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var history window
	if ok {
		if err := json.Unmarshal(raw, &history); err != nil {
			// a corrupt window is treated as empty and overwritten on the next success
			t.logger.Warn("discarding unreadable throttle window", "key", key, "error", err.Error())
			history = nil
		}
	}

	cutoff := now.Add(-rate.Duration).UnixNano()
	for len(history) > 0 && history[len(history)-1] <= cutoff {
		history = history[:len(history)-1]
	}
	return history, nil
}

// Allow records a request for identity under scope if fewer than rate.Limit requests were
// seen in the trailing rate.Duration.
func (t *Throttle) Allow(ctx context.Context, scope string, identity string, rate Rate) (bool, error) {
	key := Key(scope, identity)
	now := t.now()

	history, err := t.load(ctx, key, rate, now)
	if err != nil {
		return false, err
	}
	if len(history) >= rate.Limit {
		return false, nil
	}

	history = append(window{now.UnixNano()}, history...)
	data, err := json.Marshal(history)
	if err != nil {
		return false, fmt.Errorf("encode throttle window: %w", err)
	}
	if err := t.store.Set(ctx, key, data, rate.Duration); err != nil {
		return false, err
	}
	return true, nil
}

// Wait estimates how long identity should wait before its next request is admitted. ok is
// false when a request would be admitted now.
func (t *Throttle) Wait(ctx context.Context, scope string, identity string, rate Rate) (time.Duration, bool, error) {
	now := t.now()
	history, err := t.load(ctx, Key(scope, identity), rate, now)
	if err != nil {
		return 0, false, err
	}
	if len(history) < rate.Limit {
		return 0, false, nil
	}
	return estimateWait(history, rate, now), true, nil
}

func estimateWait(history window, rate Rate, now time.Time) time.Duration {
	remaining := rate.Duration
	if len(history) > 0 {
		oldest := time.Unix(0, history[len(history)-1])
		remaining = rate.Duration - now.Sub(oldest)
	}

	available := rate.Limit - len(history) + 1
	if available < 1 {
		// over-admitted windows spread the wait over a single slot
		available = 1
	}

	wait := remaining / time.Duration(available)
	if wait < 0 {
		return 0
	}
	return wait
}

// RetryAfterSeconds rounds a wait up to whole seconds, never below one.
func RetryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
