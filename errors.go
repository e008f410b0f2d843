package spellbook

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVersion occurs when a version string can not be parsed.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrMissingPrerequisite occurs when the host version or class loader is not known (yet).
	ErrMissingPrerequisite = errors.New("missing prerequisite")
	// ErrNoCandidate occurs when no guard of a rule matches the detected version.
	ErrNoCandidate = errors.New("no candidate for version")
	// ErrSymbolNotFound occurs when nothing matches the requested shape.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrAmbiguousSymbol occurs when more than one member matches the requested shape.
	ErrAmbiguousSymbol = errors.New("ambiguous symbol")
	// ErrClassNotFound occurs when the class loader does not know a class.
	ErrClassNotFound = errors.New("class not found")
	// ErrNotInvokable occurs when calling a member that carries no implementation.
	ErrNotInvokable = errors.New("member not invokable")
	// ErrNotTestMode occurs when installing fixture state into a production Global.
	ErrNotTestMode = errors.New("global not in test mode")
)

// ResolutionError is the terminal failure of a symbol. A failed Binding returns the same instance on every read.
type ResolutionError struct {
	Symbol  string
	Version string // detected version, empty when absent
	Err     error
}

func (e *ResolutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Version == "" {
		return fmt.Sprintf("failed to evaluate %s: %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("failed to evaluate %s (host %s): %v", e.Symbol, e.Version, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func resolutionError(symbol string, g *Global, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) && re.Symbol == symbol {
		return err
	}
	re = &ResolutionError{Symbol: symbol, Err: err}
	if g != nil {
		if v, ok := g.Version(); ok {
			re.Version = v.String()
		}
	}
	return re
}
