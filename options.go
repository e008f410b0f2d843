package spellbook

import (
	"time"

	"go.uber.org/zap"
)

// Mode selects how bindings evaluate.
type Mode int

const (
	// ModeProduction waits on the barrier once and caches the first outcome forever.
	ModeProduction Mode = iota
	// ModeTest evaluates synchronously without the barrier and allows Refresh.
	ModeTest
)

func (m Mode) String() string {
	switch m {
	case ModeProduction:
		return "production"
	case ModeTest:
		return "test"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds the barrier wait of a production binding.
const DefaultTimeout = 4000 * time.Millisecond

type (
	// Option configures a Global.
	Option  func(*options)
	options struct {
		mode    Mode
		timeout time.Duration
		logger  *zap.Logger
		metrics *Metrics
		debug   bool
	}
)

func applyOptions(opts []Option) options {
	cfg := options{mode: ModeProduction, timeout: DefaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithMode sets the default Mode of bindings created against the Global.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithTimeout sets the default barrier timeout of production bindings.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the logger, a nop logger when unset.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the collectors resolutions and probes are counted on.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDebug enables debug level events of the probe and of every resolution.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}
