package spellbook

import (
	"fmt"
	"sort"
)

type (
	// Guard decides whether a candidate applies to a host version.
	Guard interface {
		Match(v Version) (bool, error)
		// Floor is the lowest version the guard can match, used to order candidates.
		// Guards without a floor report false.
		Floor() (Version, bool)
		String() string
	}

	// Strategy resolves a symbol against the Global.
	Strategy[T any] func(g *Global) (T, error)

	// Candidate pairs a Guard with the Strategy used when it matches.
	Candidate[T any] struct {
		Guard   Guard
		Resolve Strategy[T]
	}

	// Rule is the ordered candidate table of one symbol.
	Rule[T any] struct {
		Symbol     string
		candidates []Candidate[T]
	}

	// ClassRef produces the owner class of a member lookup.
	ClassRef func(g *Global) (Class, error)

	sinceGuard   struct{ v Version }
	beforeGuard  struct{ v Version }
	betweenGuard struct{ lo, hi Version }
	defaultGuard struct{}
)

// Since matches versions >= v.
func Since(v string) Guard { return sinceGuard{MustParseVersion(v)} }

// Before matches versions < v.
func Before(v string) Guard { return beforeGuard{MustParseVersion(v)} }

// Between matches lo <= version < hi.
func Between(lo, hi string) Guard { return betweenGuard{MustParseVersion(lo), MustParseVersion(hi)} }

// Otherwise matches any version and always sorts last.
func Otherwise() Guard { return defaultGuard{} }

func (s sinceGuard) Match(v Version) (bool, error) { return v.AtLeast(s.v), nil }
func (s sinceGuard) Floor() (Version, bool)        { return s.v, true }
func (s sinceGuard) String() string                { return ">=" + s.v.String() }

func (b beforeGuard) Match(v Version) (bool, error) { return v.Less(b.v), nil }
func (b beforeGuard) Floor() (Version, bool)        { return Version{}, false }
func (b beforeGuard) String() string                { return "<" + b.v.String() }

func (b betweenGuard) Match(v Version) (bool, error) { return v.AtLeast(b.lo) && v.Less(b.hi), nil }
func (b betweenGuard) Floor() (Version, bool)        { return b.lo, true }
func (b betweenGuard) String() string                { return "[" + b.lo.String() + "," + b.hi.String() + ")" }

func (defaultGuard) Match(Version) (bool, error) { return true, nil }
func (defaultGuard) Floor() (Version, bool)      { return Version{}, false }
func (defaultGuard) String() string              { return "default" }

// When builds a Candidate.
func When[T any](g Guard, s Strategy[T]) Candidate[T] {
	return Candidate[T]{Guard: g, Resolve: s}
}

// NewRule orders candidates by specificity: guards with a floor first, highest floor first;
// then floor-less guards in declaration order; Otherwise last.
func NewRule[T any](symbol string, candidates ...Candidate[T]) Rule[T] {
	c := make([]Candidate[T], len(candidates))
	copy(c, candidates)
	sort.SliceStable(c, func(i, j int) bool {
		return specificity(c[i].Guard, c[j].Guard) > 0
	})
	return Rule[T]{Symbol: symbol, candidates: c}
}

// specificity > 0 when a must be tried before b.
func specificity(a, b Guard) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	if ra != 2 {
		return 0
	}
	fa, _ := a.Floor()
	fb, _ := b.Floor()
	return fa.Compare(fb)
}

func rank(g Guard) int {
	if _, ok := g.(defaultGuard); ok || g == nil {
		return 0
	}
	if _, ok := g.Floor(); ok {
		return 2
	}
	return 1
}

// Candidates returns the candidates in evaluation order.
func (r Rule[T]) Candidates() []Candidate[T] {
	out := make([]Candidate[T], len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Select returns the first candidate whose guard matches v and its position.
func (r Rule[T]) Select(v Version) (c Candidate[T], index int, err error) {
	for i, cd := range r.candidates {
		ok := true
		if cd.Guard != nil {
			if ok, err = cd.Guard.Match(v); err != nil {
				return c, -1, fmt.Errorf("guard %s: %w", cd.Guard, err)
			}
		}
		if ok {
			return cd, i, nil
		}
	}
	return c, -1, fmt.Errorf("%w %s", ErrNoCandidate, v)
}

// Resolve evaluates the rule against the detected version of g.
func (r Rule[T]) Resolve(g *Global) (t T, err error) {
	v, ok := g.Version()
	if !ok {
		return t, resolutionError(r.Symbol, g, fmt.Errorf("%w: host version", ErrMissingPrerequisite))
	}
	c, _, err := r.Select(v)
	if err != nil {
		return t, resolutionError(r.Symbol, g, err)
	}
	if c.Resolve == nil {
		return t, resolutionError(r.Symbol, g, fmt.Errorf("%w: empty strategy for %s", ErrSymbolNotFound, c.Guard))
	}
	if t, err = c.Resolve(g); err != nil {
		return t, resolutionError(r.Symbol, g, err)
	}
	return t, nil
}

// Strategy adapts the rule for use where a Strategy is expected, such as Lazy.
func (r Rule[T]) Strategy() Strategy[T] {
	return r.Resolve
}

// ClassNamed loads name through the class loader of g.
func ClassNamed(name ClassName) ClassRef {
	return func(g *Global) (Class, error) {
		l, ok := g.Loader()
		if !ok {
			return nil, fmt.Errorf("%w: class loader", ErrMissingPrerequisite)
		}
		c, err := l.LoadClass(name)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
		}
		return c, nil
	}
}

// ClassOf uses a class binding as owner.
func ClassOf(b *Binding[Class]) ClassRef {
	return func(*Global) (Class, error) {
		return b.Get()
	}
}

// LoadClass is ClassNamed as a Strategy.
func LoadClass(name ClassName) Strategy[Class] {
	return Strategy[Class](ClassNamed(name))
}

// ClassInCensus loads every class of the census under pkg (see Census.InPackage)
// and returns the single one accepted by match.
func ClassInCensus(pkg string, depth int, match func(Class) bool) Strategy[Class] {
	return func(g *Global) (Class, error) {
		census := g.Census()
		if census == nil {
			return nil, fmt.Errorf("%w: class census", ErrMissingPrerequisite)
		}
		l, ok := g.Loader()
		if !ok {
			return nil, fmt.Errorf("%w: class loader", ErrMissingPrerequisite)
		}
		var found []Class
		for _, name := range census.InPackage(pkg, depth) {
			c, err := l.LoadClass(name)
			if err != nil || c == nil {
				continue
			}
			if match(c) {
				found = append(found, c)
			}
		}
		return exactlyOne(found, func(c Class) string { return string(c.Name()) }, "class in "+pkg)
	}
}

// MethodByShape finds the single method of owner with exactly this return and parameter types, whatever its name.
func MethodByShape(owner ClassRef, ret Type, params ...Type) Strategy[Method] {
	return methodLookup(owner, "", ret, params)
}

// MethodNamed is MethodByShape restricted to one name.
func MethodNamed(owner ClassRef, name string, ret Type, params ...Type) Strategy[Method] {
	return methodLookup(owner, name, ret, params)
}

func methodLookup(owner ClassRef, name string, ret Type, params []Type) Strategy[Method] {
	return func(g *Global) (m Method, err error) {
		c, err := owner(g)
		if err != nil {
			return m, err
		}
		var found []Method
		for _, cm := range c.Methods() {
			if name != "" && cm.Name != name {
				continue
			}
			if cm.Matches(ret, params...) {
				found = append(found, cm)
			}
		}
		shape := Method{Owner: c.Name(), Name: name, Return: ret, Params: params}
		return exactlyOne(found, Method.String, shape.String())
	}
}

// FieldByType finds the single field of owner declared with type t.
func FieldByType(owner ClassRef, t Type) Strategy[Field] {
	return fieldLookup(owner, "", t)
}

// FieldNamed finds the field called name, t must match unless empty.
func FieldNamed(owner ClassRef, name string, t Type) Strategy[Field] {
	return fieldLookup(owner, name, t)
}

func fieldLookup(owner ClassRef, name string, t Type) Strategy[Field] {
	return func(g *Global) (f Field, err error) {
		c, err := owner(g)
		if err != nil {
			return f, err
		}
		var found []Field
		for _, cf := range c.Fields() {
			if name != "" && cf.Name != name {
				continue
			}
			if t != "" && cf.Type != t {
				continue
			}
			found = append(found, cf)
		}
		return exactlyOne(found, Field.String, Field{Owner: c.Name(), Name: name, Type: t}.String())
	}
}

func exactlyOne[T any](found []T, describe func(T) string, want string) (t T, err error) {
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return t, fmt.Errorf("%w: %s", ErrSymbolNotFound, want)
	default:
		names := make([]string, len(found))
		for i, f := range found {
			names[i] = describe(f)
		}
		return t, fmt.Errorf("%w: %s matches %v", ErrAmbiguousSymbol, want, names)
	}
}
