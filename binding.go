package spellbook

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type (
	// Binding is a lazily resolved symbol.
	//
	// In ModeProduction the first Get waits on the barrier of its Global, runs the strategy once and
	// keeps the outcome, value or error, for the rest of the process.
	// In ModeTest the strategy runs synchronously on first Get and Refresh drops the cached outcome.
	//
	// Concurrent first readers share one resolution.
	Binding[T any] struct {
		symbol   string
		global   *Global
		strategy Strategy[T]
		mode     Mode
		timeout  time.Duration

		mu      sync.Mutex
		outcome atomic.Pointer[outcome[T]]
	}
	outcome[T any] struct {
		value T
		err   error
	}

	// BindingOption overrides the defaults a Binding takes from its Global.
	BindingOption func(*bindingConfig)
	bindingConfig struct {
		mode    *Mode
		timeout *time.Duration
	}

	// Resolvable is the type erased view of a Binding.
	Resolvable interface {
		Symbol() string
		Resolve() error
		Resolved() bool
		Refresh() bool
	}
)

// BindMode overrides the Mode of one binding.
func BindMode(m Mode) BindingOption {
	return func(c *bindingConfig) {
		c.mode = &m
	}
}

// BindTimeout overrides the barrier timeout of one binding.
func BindTimeout(d time.Duration) BindingOption {
	return func(c *bindingConfig) {
		c.timeout = &d
	}
}

// Lazy creates a Binding named symbol resolved by strategy against g.
func Lazy[T any](g *Global, symbol string, strategy Strategy[T], opts ...BindingOption) *Binding[T] {
	cfg := bindingConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	b := &Binding[T]{
		symbol:   symbol,
		global:   g,
		strategy: strategy,
		mode:     g.opts.mode,
		timeout:  g.opts.timeout,
	}
	if cfg.mode != nil {
		b.mode = *cfg.mode
	}
	if cfg.timeout != nil {
		b.timeout = *cfg.timeout
	}
	return b
}

// Bind creates a Binding for rule.
func Bind[T any](g *Global, rule Rule[T], opts ...BindingOption) *Binding[T] {
	return Lazy(g, rule.Symbol, rule.Strategy(), opts...)
}

func (b *Binding[T]) Symbol() string { return b.symbol }
func (b *Binding[T]) Mode() Mode     { return b.mode }

// Get returns the resolved value or the terminal ResolutionError.
func (b *Binding[T]) Get() (T, error) {
	if o := b.outcome.Load(); o != nil {
		return o.value, o.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if o := b.outcome.Load(); o != nil {
		return o.value, o.err
	}
	o := b.evaluate()
	b.outcome.Store(o)
	return o.value, o.err
}

// MustGet is Get that panics with the ResolutionError.
func (b *Binding[T]) MustGet() T {
	v, err := b.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Resolve resolves the binding and reports only the error.
func (b *Binding[T]) Resolve() error {
	_, err := b.Get()
	return err
}

// Resolved reports whether an outcome is cached.
func (b *Binding[T]) Resolved() bool {
	return b.outcome.Load() != nil
}

// Refresh drops the cached outcome of a ModeTest binding. Production bindings are never
// re-resolved and Refresh returns false for them.
func (b *Binding[T]) Refresh() bool {
	if b.mode != ModeTest {
		return false
	}
	b.mu.Lock()
	b.outcome.Store(nil)
	b.mu.Unlock()
	return true
}

func (b *Binding[T]) evaluate() (o *outcome[T]) {
	g := b.global
	if b.mode == ModeProduction {
		waited := g.Await(b.timeout)
		open := g.Ready()
		g.opts.metrics.observeAwait(waited, open)
		if waited && !open {
			g.log().Warn("barrier timeout, resolving without probe",
				zap.String("symbol", b.symbol),
				zap.Duration("timeout", b.timeout))
		}
	}
	o = new(outcome[T])
	defer func() {
		if r := recover(); r != nil {
			o.err = resolutionError(b.symbol, g, fmt.Errorf("strategy panic: %v", r))
		}
		g.opts.metrics.observeResolution(o.err)
		if o.err != nil {
			g.log().Warn("symbol resolution failed", zap.String("symbol", b.symbol), zap.Error(o.err))
		} else {
			g.debugf("symbol resolved", zap.String("symbol", b.symbol), zap.Stringer("mode", b.mode))
		}
	}()
	if b.strategy == nil {
		o.err = resolutionError(b.symbol, g, fmt.Errorf("%w: no strategy", ErrSymbolNotFound))
		return
	}
	v, err := b.strategy(g)
	switch {
	case err != nil:
		o.err = resolutionError(b.symbol, g, err)
	case isNil(v):
		o.err = resolutionError(b.symbol, g, fmt.Errorf("%w: strategy yielded nothing", ErrSymbolNotFound))
	default:
		o.value = v
	}
	return
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
