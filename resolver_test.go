package spellbook

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClass is a Class with fixed members.
type fakeClass struct {
	name    ClassName
	methods []Method
	fields  []Field
}

func (c *fakeClass) Name() ClassName   { return c.name }
func (c *fakeClass) Methods() []Method { return c.methods }
func (c *fakeClass) Fields() []Field   { return c.fields }

type fakeLoader map[ClassName]Class

func (l fakeLoader) LoadClass(name ClassName) (Class, error) {
	if c, ok := l[name]; ok {
		return c, nil
	}
	return nil, ErrClassNotFound
}

func value[T any](v T) Strategy[T] {
	return func(*Global) (T, error) { return v, nil }
}

func installed(t *testing.T, version string, l ClassLoader, census ...string) *Global {
	t.Helper()
	g := New(WithMode(ModeTest))
	s := Snapshot{Loader: l, Census: NewCensus(census)}
	if version != "" {
		v := MustParseVersion(version)
		s.Version = &v
	}
	require.NoError(t, g.Install(s))
	return g
}

func TestRuleOrdering(t *testing.T) {
	r := NewRule("s",
		When(Otherwise(), value("default")),
		When(Before("6.0"), value("old")),
		When(Since("6.5.8"), value("new")),
		When(Between("6.0", "6.5.8"), value("mid")),
		When(Since("7"), value("newest")),
	)
	var order []string
	for _, c := range r.Candidates() {
		order = append(order, c.Guard.String())
	}
	assert.Equal(t, []string{">=7", ">=6.5.8", "[6.0,6.5.8)", "<6.0", "default"}, order)

	for version, want := range map[string]string{
		"8.0":   "newest",
		"7":     "newest",
		"6.7.3": "new",
		"6.5.8": "new",
		"6.5.7": "mid",
		"6.0":   "mid",
		"5.9":   "old",
	} {
		got, err := r.Resolve(installed(t, version, nil))
		require.NoError(t, err, version)
		assert.Equal(t, want, got, version)
	}
}

func TestRuleDefaultOnly(t *testing.T) {
	r := NewRule("s",
		When(Since("6.5.8"), value("A")),
		When(Otherwise(), value("B")),
	)
	got, err := r.Resolve(installed(t, "6.5.8", nil))
	require.NoError(t, err)
	assert.Equal(t, "A", got)
	got, err = r.Resolve(installed(t, "6.5.7", nil))
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestRuleFailures(t *testing.T) {
	r := NewRule("s", When(Since("7"), value(1)))

	_, err := r.Resolve(installed(t, "", nil))
	require.ErrorIs(t, err, ErrMissingPrerequisite)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "s", re.Symbol)
	assert.Empty(t, re.Version)

	_, err = r.Resolve(installed(t, "6.9", nil))
	require.ErrorIs(t, err, ErrNoCandidate)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "6.9", re.Version)

	_, err = NewRule[int]("s", When[int](Otherwise(), nil)).Resolve(installed(t, "1", nil))
	require.ErrorIs(t, err, ErrSymbolNotFound)

	boom := errors.New("boom")
	_, err = NewRule("s", When(Otherwise(), func(*Global) (int, error) { return 0, boom })).Resolve(installed(t, "1", nil))
	require.ErrorIs(t, err, boom)

	_, _, err = NewRule[int]("s").Select(MustParseVersion("1"))
	require.ErrorIs(t, err, ErrNoCandidate)
}

var (
	clsStorage = &fakeClass{
		name: "com.host.Storage",
		methods: []Method{
			{Owner: "com.host.Storage", Name: "a", Return: Long, Params: []Type{"com.host.MsgInfo", String, Long, Boolean}},
			{Owner: "com.host.Storage", Name: "b", Return: Long, Params: []Type{"com.host.MsgInfo", String, Long}},
			{Owner: "com.host.Storage", Name: "c", Return: Void, Params: []Type{String}},
			{Owner: "com.host.Storage", Name: "d", Return: Void, Params: []Type{String}},
		},
		fields: []Field{
			{Owner: "com.host.Storage", Name: "e", Type: Int},
			{Owner: "com.host.Storage", Name: "f", Type: String},
			{Owner: "com.host.Storage", Name: "g", Type: String},
		},
	}
	clsOther   = &fakeClass{name: "com.host.sub.Other", methods: []Method{{Name: "x", Return: Int}}}
	hostLoader = fakeLoader{clsStorage.name: clsStorage, clsOther.name: clsOther}
)

func TestMethodByShape(t *testing.T) {
	owner := ClassNamed("com.host.Storage")
	insert := NewRule("Storage_insert",
		When(Since("6.5.8"), MethodByShape(owner, Long, "com.host.MsgInfo", String, Long, Boolean)),
		When(Otherwise(), MethodByShape(owner, Long, "com.host.MsgInfo", String, Long)),
	)
	m, err := insert.Resolve(installed(t, "6.7.3", hostLoader))
	require.NoError(t, err)
	assert.Equal(t, "a", m.Name)
	m, err = insert.Resolve(installed(t, "6.0.0", hostLoader))
	require.NoError(t, err)
	assert.Equal(t, "b", m.Name)

	g := installed(t, "1", hostLoader)
	_, err = MethodByShape(owner, Void, String)(g)
	require.ErrorIs(t, err, ErrAmbiguousSymbol)
	t.Log(err)
	m, err = MethodNamed(owner, "d", Void, String)(g)
	require.NoError(t, err)
	assert.Equal(t, "d", m.Name)
	_, err = MethodByShape(owner, Int)(g)
	require.ErrorIs(t, err, ErrSymbolNotFound)

	_, err = MethodByShape(ClassNamed("com.host.Missing"), Int)(g)
	require.ErrorIs(t, err, ErrClassNotFound)
	_, err = MethodByShape(owner, Int)(installed(t, "1", nil))
	require.ErrorIs(t, err, ErrMissingPrerequisite)
}

func TestFieldLookup(t *testing.T) {
	g := installed(t, "1", hostLoader)
	owner := ClassNamed("com.host.Storage")
	f, err := FieldByType(owner, Int)(g)
	require.NoError(t, err)
	assert.Equal(t, "e", f.Name)
	_, err = FieldByType(owner, String)(g)
	require.ErrorIs(t, err, ErrAmbiguousSymbol)
	f, err = FieldNamed(owner, "g", "")(g)
	require.NoError(t, err)
	assert.Equal(t, String, f.Type)
	_, err = FieldNamed(owner, "g", Int)(g)
	require.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestClassInCensus(t *testing.T) {
	hasInt := func(c Class) bool {
		for _, m := range c.Methods() {
			if m.Matches(Int) {
				return true
			}
		}
		return false
	}
	g := installed(t, "1", hostLoader, "com.host.Storage", "com.host.sub.Other", "com.host.sub.Missing")
	c, err := ClassInCensus("com.host", -1, hasInt)(g)
	require.NoError(t, err)
	assert.Equal(t, clsOther.name, c.Name())

	_, err = ClassInCensus("com.host", 0, hasInt)(g)
	require.ErrorIs(t, err, ErrSymbolNotFound)
	_, err = ClassInCensus("com.host", -1, func(Class) bool { return true })(g)
	require.ErrorIs(t, err, ErrAmbiguousSymbol)

	_, err = ClassInCensus("com.host", -1, hasInt)(installed(t, "1", hostLoader))
	require.ErrorIs(t, err, ErrSymbolNotFound, "empty census")
	g = New(WithMode(ModeTest))
	require.NoError(t, g.Install(Snapshot{Loader: hostLoader}))
	_, err = ClassInCensus("com.host", -1, hasInt)(g)
	require.ErrorIs(t, err, ErrMissingPrerequisite, "no census")
}

func TestCensus(t *testing.T) {
	c := NewCensus([]string{"b.C", "a.B", "a.b.C", "a.b.c.D", "", "a.B"})
	assert.Equal(t, Census{"a.B", "a.b.C", "a.b.c.D", "b.C"}, c)
	assert.Equal(t, Census{"a.B"}, c.InPackage("a", 0))
	assert.Equal(t, Census{"a.B", "a.b.C"}, c.InPackage("a", 1))
	assert.Equal(t, Census{"a.B", "a.b.C", "a.b.c.D"}, c.InPackage("a", -1))
	assert.Equal(t, Census{"a.b.C", "b.C"}, c.Named("C"))
	assert.True(t, c.Contains("a.b.c.D"))
	assert.False(t, c.Contains("a.b.c"))
}
