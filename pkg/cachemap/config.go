package cachemap

// config bundles every knob that influences a CacheMap's attach behavior:
// one struct, defaults filled in up front, options applied on top, no live
// mutation once Attach has returned.

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Voskan/scc-cachemap/internal/manager"
)

// Option configures Attach.
type Option func(*config)

type config struct {
	logger   *zap.Logger
	registry *prometheus.Registry

	classpathIdentifiedCapacity int64
	historyDir                  string
}

func defaultConfig() *config {
	return &config{
		logger:                      zap.NewNop(),
		registry:                    nil,
		classpathIdentifiedCapacity: 4096,
	}
}

// WithLogger plugs an external zap.Logger. Only slow/rare events (attach,
// refresh, corruption, stale marks) are logged; the find/store hot path
// never logs.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default): a CacheMap attached without it pays no sync cost
// for counter updates.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithIdentifiedClasspathCapacity overrides the classpath manager's
// same-JVM positive-match cache size.
func WithIdentifiedClasspathCapacity(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.classpathIdentifiedCapacity = n
		}
	}
}

// WithHistory turns on javacore-stats snapshotting to an embedded Badger
// database rooted at dir (internal/history). Snapshot captures are opt-in;
// a CacheMap attached without this option never opens one.
func WithHistory(dir string) Option {
	return func(c *config) { c.historyDir = dir }
}

func applyOptions(cfg *config, opts []Option) {
	for _, opt := range opts {
		opt(cfg)
	}
}

// managers bundles the fixed set of per-item-type indexes every attached
// chain populates.
type managers struct {
	Classpath      *manager.ClasspathManager
	ROMClass       *manager.ROMClassManager
	Scope          *manager.ScopeManager
	ByteData       *manager.ByteDataManager
	CompiledMethod *manager.CompiledMethodManager
	AttachedData   *manager.AttachedDataManager
}

func newManagers(cfg *config) *managers {
	cp := manager.NewClasspathManager(cfg.classpathIdentifiedCapacity)
	return &managers{
		Classpath:      cp,
		ROMClass:       manager.NewROMClassManager(cp),
		Scope:          manager.NewScopeManager(),
		ByteData:       manager.NewByteDataManager(),
		CompiledMethod: manager.NewCompiledMethodManager(),
		AttachedData:   manager.NewAttachedDataManager(),
	}
}

func (m *managers) reset() {
	m.Classpath.Reset()
	m.ROMClass.Reset()
	m.Scope.Reset()
	m.ByteData.Reset()
	m.CompiledMethod.Reset()
	m.AttachedData.Reset()
}
