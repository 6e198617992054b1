package violation

import (
	"sync"
	"time"
)

// alertLimiter caps alert fan-out per key with a minute-based window.
// Only delivery is limited; counting is never suppressed.
type alertLimiter struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count int
	start time.Time
}

func newAlertLimiter(limit int) *alertLimiter {
	return &alertLimiter{
		limit:   limit,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *alertLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Expired windows are dead weight; dropping them here bounds the map
	// to keys active within the last minute.
	for k, w := range l.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(l.windows, k)
		}
	}

	w, ok := l.windows[key]
	if !ok {
		l.windows[key] = &window{count: 1, start: now}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}
