package builder

import (
	"sync"
	"time"
)

// movingAverage is a small exponentially-weighted moving average over
// observed commit latencies"). alpha close to 1 favors recent observations.
type movingAverage struct {
	mu    sync.Mutex
	alpha float64
	avg   time.Duration
	seen  bool
}

func newMovingAverage(alpha float64) *movingAverage {
	return &movingAverage{alpha: alpha}
}

func (m *movingAverage) observe(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seen {
		m.avg = d
		m.seen = true
		return
	}
	m.avg = time.Duration(m.alpha*float64(d) + (1-m.alpha)*float64(m.avg))
}

func (m *movingAverage) value() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seen {
		return 50 * time.Millisecond
	}
	return m.avg
}
