package spellbook

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type (
	// Global is the process wide record of what is known about the host.
	//
	// Scalar fields are written once by the probe and may be read at any time.
	// A reader that did not wait on the barrier must treat each of them as possibly absent.
	Global struct {
		barrier *Barrier
		opts    options
		probing atomic.Bool

		version atomic.Pointer[Version]
		pkg     atomic.Pointer[string]
		loader  atomic.Pointer[loaderRef]
		census  atomic.Pointer[Census]

		slots sync.Map
	}
	loaderRef struct {
		ClassLoader
	}

	// Snapshot is a copy of the scalar state of a Global.
	Snapshot struct {
		Version     *Version
		PackageName string
		Loader      ClassLoader
		Census      Census
		Ready       bool
	}
)

// New creates a Global with a closed barrier.
func New(opts ...Option) *Global {
	return &Global{
		barrier: NewBarrier(),
		opts:    applyOptions(opts),
	}
}

var (
	global     *Global
	globalOnce sync.Once
)

// Default returns the process Global, created on first use.
func Default() *Global {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// InitDefault creates the process Global with opts. Only the first call, or Default, has effect.
func InitDefault(opts ...Option) *Global {
	globalOnce.Do(func() {
		global = New(opts...)
	})
	return global
}

// ResetDefault forgets the process Global. Not safe for concurrent use, tests only.
func ResetDefault() {
	globalOnce = sync.Once{}
	global = nil
}

func (g *Global) Mode() Mode { return g.opts.mode }

// Version returns the detected host version.
func (g *Global) Version() (Version, bool) {
	if v := g.version.Load(); v != nil {
		return *v, true
	}
	return Version{}, false
}

func (g *Global) PackageName() string {
	if p := g.pkg.Load(); p != nil {
		return *p
	}
	return ""
}

func (g *Global) Loader() (ClassLoader, bool) {
	if l := g.loader.Load(); l != nil && l.ClassLoader != nil {
		return l.ClassLoader, true
	}
	return nil, false
}

// Census returns the classes found in the host archive, nil when the walk failed or did not run.
// The result is shared and must not be modified.
func (g *Global) Census() Census {
	if c := g.census.Load(); c != nil {
		return *c
	}
	return nil
}

// Ready reports whether probing has finished, successfully or not.
func (g *Global) Ready() bool { return g.barrier.IsOpen() }

// Done is closed once probing has finished.
func (g *Global) Done() <-chan struct{} { return g.barrier.Done() }

// Await waits on the barrier, see Barrier.Await for the meaning of the result.
func (g *Global) Await(timeout time.Duration) bool { return g.barrier.Await(timeout) }

func (g *Global) Snapshot() Snapshot {
	s := Snapshot{
		PackageName: g.PackageName(),
		Census:      g.Census(),
		Ready:       g.Ready(),
	}
	if v, ok := g.Version(); ok {
		s.Version = &v
	}
	s.Loader, _ = g.Loader()
	return s
}

// Install replaces the scalar state with s and opens the barrier. Only a Global in ModeTest accepts it.
func (g *Global) Install(s Snapshot) error {
	if g.opts.mode != ModeTest {
		return ErrNotTestMode
	}
	g.store(s)
	g.barrier.Open()
	return nil
}

func (g *Global) store(s Snapshot) {
	if s.Version != nil {
		v := Version{parts: s.Version.Components()}
		g.version.Store(&v)
	} else {
		g.version.Store(nil)
	}
	pkg := s.PackageName
	g.pkg.Store(&pkg)
	g.loader.Store(&loaderRef{s.Loader})
	if s.Census != nil {
		c := s.Census
		g.census.Store(&c)
	} else {
		g.census.Store(nil)
	}
}

func (g *Global) log() *zap.Logger {
	if g.opts.logger != nil {
		return g.opts.logger
	}
	return Logger()
}

func (g *Global) debugf(msg string, fields ...zap.Field) {
	if g.opts.debug {
		g.log().Debug(msg, fields...)
	}
}
