package rules

import (
	"strings"
	"testing"

	"github.com/ZenLiuCN/spellbook"
	"github.com/ZenLiuCN/spellbook/pool"
	"github.com/ZenLiuCN/spellbook/reflecthost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = `
symbols:
  - name: Storage_class
    kind: class
    candidates:
      - target: com.host.storage.Storage
  - name: Storage_insert
    kind: method
    class: com.host.storage.Storage
    candidates:
      - when: below(version, "6.5.8")
        return: long
        params: [com.host.storage.MsgInfo, java.lang.String, long]
      - since: 6.5.8
        return: long
        params: [com.host.storage.MsgInfo, java.lang.String, long, boolean]
  - name: Storage_count
    kind: field
    class: com.host.storage.Storage
    candidates:
      - type: int
`

type msgInfo struct{}

type hostStorage struct {
	Count int32
	Name  string
}

func (s *hostStorage) A(*msgInfo, string, int64, bool) int64 { return 4 }
func (s *hostStorage) B(*msgInfo, string, int64) int64       { return 3 }

func TestLoadCompileBind(t *testing.T) {
	tb, err := Load(strings.NewReader(table))
	require.NoError(t, err)
	require.Len(t, tb.Symbols, 3)
	c, err := tb.Compile()
	require.NoError(t, err)
	require.Len(t, c.Methods, 1)
	require.Len(t, c.Fields, 1)
	require.Len(t, c.Classes, 1)

	g := spellbook.New(spellbook.WithMode(spellbook.ModeTest))
	p := pool.NewPool(g)
	require.NoError(t, c.Bind(p))
	require.Equal(t, []string{"Storage_class", "Storage_insert", "Storage_count"}, p.Symbols())

	l := reflecthost.New().
		MustDefine("com.host.storage.Storage", (*hostStorage)(nil)).
		MustDefine("com.host.storage.MsgInfo", (*msgInfo)(nil))
	v := spellbook.MustParseVersion("6.7.3")
	require.NoError(t, g.Install(spellbook.Snapshot{Version: &v, Loader: l}))

	rep, err := p.Preload(t.Context(), 2)
	require.NoError(t, err)
	require.Empty(t, rep.Failed())

	insert, err := pool.Require[spellbook.Method](p, "Storage_insert")
	require.NoError(t, err)
	assert.Equal(t, "A", insert.MustGet().Name)

	count, err := pool.Require[spellbook.Field](p, "Storage_count")
	require.NoError(t, err)
	assert.Equal(t, "Count", count.MustGet().Name)

	v = spellbook.MustParseVersion("6.5.7")
	require.NoError(t, g.Install(spellbook.Snapshot{Version: &v, Loader: l}))
	require.Equal(t, 3, p.Refresh())
	assert.Equal(t, "B", insert.MustGet().Name)
}

func TestSelect(t *testing.T) {
	tb, err := Load(strings.NewReader(table))
	require.NoError(t, err)
	c, err := tb.Compile()
	require.NoError(t, err)

	choices := c.Select(spellbook.MustParseVersion("7.0"))
	require.Len(t, choices, 3)
	insert := choices[1]
	require.Equal(t, "Storage_insert", insert.Symbol)
	require.NoError(t, insert.Err)
	// the since guard has a floor and moves ahead of the expression
	assert.Equal(t, 0, insert.Index)
	assert.Equal(t, ">=6.5.8", insert.Guard)

	insert = c.Select(spellbook.MustParseVersion("6.0"))[1]
	assert.Equal(t, 1, insert.Index)
	assert.Equal(t, `expr(below(version, "6.5.8"))`, insert.Guard)
}

func TestCELEngine(t *testing.T) {
	tb, err := Load(strings.NewReader(`
engine: cel
symbols:
  - name: s
    kind: class
    candidates:
      - when: major >= 7 && atLeast(version, "7.1")
        since: "7"
        target: a.B
      - target: a.C
`))
	require.NoError(t, err)
	c, err := tb.Compile()
	require.NoError(t, err)
	assert.Equal(t, 0, c.Select(spellbook.MustParseVersion("7.1.2"))[0].Index)
	assert.Equal(t, 1, c.Select(spellbook.MustParseVersion("7.0.9"))[0].Index)
	assert.Equal(t, 1, c.Select(spellbook.MustParseVersion("6.9"))[0].Index)
}

func TestInvalid(t *testing.T) {
	for name, src := range map[string]string{
		"empty":         `symbols: []`,
		"unknown kind":  "symbols:\n  - {name: s, kind: ctor, class: a.B, candidates: [{target: a.B}]}",
		"missing class": "symbols:\n  - {name: s, kind: method, candidates: [{return: int}]}",
		"bad version":   "symbols:\n  - {name: s, kind: class, candidates: [{since: 6.x, target: a.B}]}",
		"duplicate":     "symbols:\n  - {name: s, kind: class, candidates: [{target: a.B}]}\n  - {name: s, kind: class, candidates: [{target: a.B}]}",
		"unknown field": "symbols:\n  - {name: s, kind: class, oops: 1, candidates: [{target: a.B}]}",
		"bad engine":    "engine: lua\nsymbols:\n  - {name: s, kind: class, candidates: [{target: a.B}]}",
		"no candidates": "symbols:\n  - {name: s, kind: class, candidates: []}",
		"not yaml":      "{",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(src))
			require.Error(t, err)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	for name, src := range map[string]string{
		"bad expression":   "symbols:\n  - {name: s, kind: class, candidates: [{when: 'version +', target: a.B}]}",
		"non bool":         "symbols:\n  - {name: s, kind: class, candidates: [{when: 'major', target: a.B}]}",
		"method no return": "symbols:\n  - {name: s, kind: method, class: a.B, candidates: [{params: [int]}]}",
		"field no match":   "symbols:\n  - {name: s, kind: field, class: a.B, candidates: [{}]}",
		"class no target":  "symbols:\n  - {name: s, kind: class, candidates: [{}]}",
	} {
		t.Run(name, func(t *testing.T) {
			tb, err := Load(strings.NewReader(src))
			require.NoError(t, err)
			_, err = tb.Compile()
			require.Error(t, err)
		})
	}
}
