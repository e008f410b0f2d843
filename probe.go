package spellbook

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZenLiuCN/spellbook/archive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type (
	// AttachParams describes the host process, supplied once at attach time.
	AttachParams struct {
		PackageName string
		Loader      ClassLoader
		// ArchivePath is the installed application archive read for the class census.
		ArchivePath string
		// VersionSource reports the host version, ManifestVersionSource(ArchivePath) when nil.
		// An apk keeps its version name in the binary AndroidManifest.xml, not in META-INF/MANIFEST.MF,
		// so apk hosts must supply a source that asks the package manager.
		VersionSource VersionSource
	}

	// VersionSource reads the version string of the host package.
	VersionSource interface {
		HostVersion(packageName string) (string, error)
	}
	// VersionFunc adapts a function to VersionSource.
	VersionFunc func(packageName string) (string, error)
)

func (f VersionFunc) HostVersion(packageName string) (string, error) { return f(packageName) }

// StaticVersion always reports v.
func StaticVersion(v string) VersionSource {
	return VersionFunc(func(string) (string, error) { return v, nil })
}

// ManifestVersionSource reads the version from the manifest of the archive at path.
func ManifestVersionSource(path string) VersionSource {
	return VersionFunc(func(string) (string, error) { return archive.ManifestVersion(path) })
}

// Attach probes the host on a new goroutine and returns a channel closed when probing has finished.
func (g *Global) Attach(p AttachParams) <-chan struct{} {
	go g.Probe(p)
	return g.barrier.Done()
}

// Probe fills g from the host and opens the barrier. It runs at most once per Global:
// later calls, and calls racing with a running probe, return without doing anything.
//
// Failures are logged and swallowed, the fields they concern stay absent.
func (g *Global) Probe(p AttachParams) {
	if g.barrier.IsOpen() {
		g.debugf("probe ignored, already attached", zap.String("package", p.PackageName))
		return
	}
	if !g.probing.CompareAndSwap(false, true) {
		g.debugf("probe ignored, already running", zap.String("package", p.PackageName))
		return
	}
	start := time.Now()
	var failures atomic.Int32
	defer func() {
		if r := recover(); r != nil {
			failures.Add(1)
			g.log().Error("probe panic", zap.Any("panic", r))
		}
		g.barrier.Open()
		g.opts.metrics.observeProbe(time.Since(start), int(failures.Load()))
		g.log().Info("probe finished",
			zap.String("package", g.PackageName()),
			zap.Stringer("version", versionField{g}),
			zap.Int("classes", len(g.Census())),
			zap.Duration("took", time.Since(start)))
	}()

	pkg := p.PackageName
	g.pkg.Store(&pkg)
	if p.Loader != nil {
		g.loader.Store(&loaderRef{p.Loader})
	}
	source := p.VersionSource
	if source == nil {
		source = ManifestVersionSource(p.ArchivePath)
	}

	var eg errgroup.Group
	eg.Go(guarded("version", func() error {
		s, err := source.HostVersion(p.PackageName)
		if err != nil {
			return err
		}
		v, err := ParseVersion(s)
		if err != nil {
			return err
		}
		g.version.Store(&v)
		return nil
	}, g, &failures))
	eg.Go(guarded("census", func() error {
		if p.ArchivePath == "" {
			return fmt.Errorf("no archive path")
		}
		names, err := archive.Classes(p.ArchivePath)
		if err != nil {
			return err
		}
		c := NewCensus(names)
		g.census.Store(&c)
		return nil
	}, g, &failures))
	_ = eg.Wait()
}

func guarded(step string, f func() error, g *Global, failures *atomic.Int32) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			if err != nil {
				failures.Add(1)
				g.log().Warn("probe step failed", zap.String("step", step), zap.Error(err))
			}
		}()
		return f()
	}
}

type versionField struct{ g *Global }

func (f versionField) String() string {
	if v, ok := f.g.Version(); ok {
		return v.String()
	}
	return "<absent>"
}
