package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	. "github.com/ZenLiuCN/spellbook"
	"github.com/ZenLiuCN/fn"
	"golang.org/x/sync/errgroup"
)

// Pool is a named set of bindings sharing one Global, so collaborators can look symbols up by name.
type Pool struct {
	*Global
	Bindings map[string]Resolvable
	Order    []string
	sync.RWMutex
}

var (
	ErrAlreadyRegistered = errors.New("symbol already registered")
	ErrNotRegistered     = errors.New("symbol not registered")
	ErrTypeMismatch      = errors.New("binding type mismatch")
)

// NewPool create new pool over g
func NewPool(g *Global) *Pool {
	return &Pool{
		Global:   g,
		Bindings: make(map[string]Resolvable),
	}
}

// Register adds a binding under its symbol.
func (p *Pool) Register(b Resolvable) error {
	p.Lock()
	defer p.Unlock()
	s := b.Symbol()
	if _, ok := p.Bindings[s]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, s)
	}
	p.Bindings[s] = b
	p.Order = append(p.Order, s)
	return nil
}

// Add creates a binding for rule against the pool Global and registers it.
func Add[T any](p *Pool, rule Rule[T], opts ...BindingOption) (*Binding[T], error) {
	b := Bind(p.Global, rule, opts...)
	if err := p.Register(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustAdd is Add that panics.
func MustAdd[T any](p *Pool, rule Rule[T], opts ...BindingOption) *Binding[T] {
	return fn.Panic1(Add(p, rule, opts...))
}

// Require fetch the binding of symbol as a Binding[T]
func Require[T any](p *Pool, symbol string) (*Binding[T], error) {
	p.RLock()
	r, ok := p.Bindings[symbol]
	p.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, symbol)
	}
	b, ok := r.(*Binding[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrTypeMismatch, symbol, r)
	}
	return b, nil
}

// Lookup returns the type erased binding of symbol.
func (p *Pool) Lookup(symbol string) (Resolvable, bool) {
	p.RLock()
	defer p.RUnlock()
	r, ok := p.Bindings[symbol]
	return r, ok
}

// Symbols in registration order
func (p *Pool) Symbols() []string {
	p.RLock()
	defer p.RUnlock()
	out := make([]string, len(p.Order))
	copy(out, p.Order)
	return out
}

// Report maps each symbol to its resolution error, nil on success.
type Report map[string]error

// Failed returns the failed symbols, sorted.
func (r Report) Failed() []string {
	var out []string
	for s, err := range r {
		if err != nil {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Preload resolves every binding concurrently, at most limit at a time (no limit when <= 0).
// Failures do not stop the others, all of them end up in the Report.
func (p *Pool) Preload(ctx context.Context, limit int) (Report, error) {
	p.RLock()
	all := make([]Resolvable, 0, len(p.Order))
	for _, s := range p.Order {
		all = append(all, p.Bindings[s])
	}
	p.RUnlock()

	var (
		mu  sync.Mutex
		rep = make(Report, len(all))
		eg  errgroup.Group
	)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for _, b := range all {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			err := b.Resolve()
			mu.Lock()
			rep[b.Symbol()] = err
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return rep, ctx.Err()
}

// Refresh drops the cached outcome of every test mode binding and reports how many were refreshed.
func (p *Pool) Refresh() (n int) {
	p.RLock()
	defer p.RUnlock()
	for _, b := range p.Bindings {
		if b.Refresh() {
			n++
		}
	}
	return
}
