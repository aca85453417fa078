package valkey

import (
	"context"
	"fmt"
	"time"
)

// IncrWindow increments the fixed-window counter for key and reports the new
// count plus the instant the window resets. The first increment of a window
// sets the key TTL to the window length; subsequent increments read the
// remaining TTL to derive the reset instant, so every request in a window
// agrees on when it ends.
func (s *Store) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if key == "" {
		return 0, time.Time{}, fmt.Errorf("rate limit key cannot be empty")
	}
	if window <= 0 {
		return 0, time.Time{}, fmt.Errorf("rate limit window must be positive")
	}

	rk := s.rateKey(key)

	count, err := s.client.Do(ctx, s.client.B().Incr().Key(rk).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}

	if count == 1 {
		if err := s.client.Do(ctx,
			s.client.B().Expire().Key(rk).Seconds(windowSecs).Build(),
		).Error(); err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := s.client.Do(ctx, s.client.B().Ttl().Key(rk).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if ttl < 0 {
		// A counter without expiry would rate limit forever. Repair it by
		// restarting the window.
		if err := s.client.Do(ctx,
			s.client.B().Expire().Key(rk).Seconds(windowSecs).Build(),
		).Error(); err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to repair rate limit window: %w", err)
		}
		ttl = windowSecs
	}

	return count, time.Now().Add(time.Duration(ttl) * time.Second), nil
}
