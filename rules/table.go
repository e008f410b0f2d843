// Package rules loads symbol rule tables from YAML.
//
//	engine: expr            # expr (default) or cel, used by "when"
//	symbols:
//	  - name: Storage_insert
//	    kind: method        # method, field or class
//	    class: com.host.storage.Storage
//	    candidates:
//	      - since: 6.5.8
//	        return: long
//	        params: [com.host.storage.MsgInfo, java.lang.String, long, boolean]
//	      - when: below(version, "6.5.8")
//	        return: long
//	        params: [com.host.storage.MsgInfo, java.lang.String, long]
//
// A candidate matches by "since"/"until" bounds, a "when" expression, or both; a candidate with
// none of them is the default. Method candidates may restrict "method" to one name, field
// candidates match "field" and/or "type", class candidates name a "target" class or walk the census
// of "package" (with "depth") for the single class declaring a method of the given shape.
package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/spellbook"
	"github.com/ZenLiuCN/spellbook/pool"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type (
	// Table is a parsed rule file.
	Table struct {
		Engine  string   `yaml:"engine" validate:"omitempty,oneof=expr cel"`
		Symbols []Symbol `yaml:"symbols" validate:"required,min=1,unique=Name,dive"`
	}
	// Symbol is one logical symbol with its candidates.
	Symbol struct {
		Name       string      `yaml:"name" validate:"required"`
		Kind       string      `yaml:"kind" validate:"required,oneof=method field class"`
		Class      string      `yaml:"class" validate:"required_unless=Kind class"`
		Candidates []Candidate `yaml:"candidates" validate:"required,min=1,dive"`
	}
	// Candidate is one guarded resolution.
	Candidate struct {
		Since string `yaml:"since" validate:"omitempty,version"`
		Until string `yaml:"until" validate:"omitempty,version"`
		When  string `yaml:"when"`

		Method string   `yaml:"method"`
		Return string   `yaml:"return"`
		Params []string `yaml:"params"`

		Field string `yaml:"field"`
		Type  string `yaml:"type"`

		Target  string `yaml:"target"`
		Package string `yaml:"package"`
		Depth   int    `yaml:"depth"`
	}

	// Compiled holds the rules of a Table by kind, in file order.
	Compiled struct {
		Methods []spellbook.Rule[spellbook.Method]
		Fields  []spellbook.Rule[spellbook.Field]
		Classes []spellbook.Rule[spellbook.Class]
	}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	fn.Panic(v.RegisterValidation("version", func(fl validator.FieldLevel) bool {
		_, err := spellbook.ParseVersion(fl.Field().String())
		return err == nil
	}))
	return v
}

// Load parses and validates a table.
func Load(r io.Reader) (*Table, error) {
	t := new(Table)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil {
		return nil, fmt.Errorf("rules: decode: %w", err)
	}
	if err := validate.Struct(t); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return t, nil
}

// LoadFile is Load of the file at path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fn.IgnoreClose(f)
	return Load(f)
}

// Compile turns the table into rules. Guards are compiled eagerly, so errors surface here.
func (t *Table) Compile() (*Compiled, error) {
	c := new(Compiled)
	var errs []error
	for _, s := range t.Symbols {
		switch s.Kind {
		case "method":
			r, err := compileSymbol(t.Engine, s, methodStrategy)
			errs = append(errs, err)
			c.Methods = append(c.Methods, r)
		case "field":
			r, err := compileSymbol(t.Engine, s, fieldStrategy)
			errs = append(errs, err)
			c.Fields = append(c.Fields, r)
		case "class":
			r, err := compileSymbol(t.Engine, s, classStrategy)
			errs = append(errs, err)
			c.Classes = append(c.Classes, r)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Bind registers every compiled rule into p.
func (c *Compiled) Bind(p *pool.Pool, opts ...spellbook.BindingOption) error {
	var errs []error
	for _, r := range c.Classes {
		_, err := pool.Add(p, r, opts...)
		errs = append(errs, err)
	}
	for _, r := range c.Methods {
		_, err := pool.Add(p, r, opts...)
		errs = append(errs, err)
	}
	for _, r := range c.Fields {
		_, err := pool.Add(p, r, opts...)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Choice describes the candidate a symbol picks for a version.
type Choice struct {
	Symbol string
	Index  int // position after specificity ordering, -1 when none matched
	Guard  string
	Err    error
}

// Select reports, without touching any host, which candidate each symbol picks for v.
func (c *Compiled) Select(v spellbook.Version) []Choice {
	var out []Choice
	out = appendChoices(out, c.Classes, v)
	out = appendChoices(out, c.Methods, v)
	out = appendChoices(out, c.Fields, v)
	return out
}

func appendChoices[T any](out []Choice, rules []spellbook.Rule[T], v spellbook.Version) []Choice {
	for _, r := range rules {
		cd, i, err := r.Select(v)
		ch := Choice{Symbol: r.Symbol, Index: i, Err: err}
		if err == nil && cd.Guard != nil {
			ch.Guard = cd.Guard.String()
		}
		out = append(out, ch)
	}
	return out
}

func compileSymbol[T any](engine string, s Symbol, strategy func(Symbol, Candidate) (spellbook.Strategy[T], error)) (spellbook.Rule[T], error) {
	cs := make([]spellbook.Candidate[T], 0, len(s.Candidates))
	for i, c := range s.Candidates {
		g, err := c.guard(engine)
		if err != nil {
			return spellbook.Rule[T]{}, fmt.Errorf("rules: %s candidate %d: %w", s.Name, i, err)
		}
		st, err := strategy(s, c)
		if err != nil {
			return spellbook.Rule[T]{}, fmt.Errorf("rules: %s candidate %d: %w", s.Name, i, err)
		}
		cs = append(cs, spellbook.When(g, st))
	}
	return spellbook.NewRule(s.Name, cs...), nil
}

func (c Candidate) guard(engine string) (g spellbook.Guard, err error) {
	var parts []spellbook.Guard
	switch {
	case c.Since != "" && c.Until != "":
		parts = append(parts, spellbook.Between(c.Since, c.Until))
	case c.Since != "":
		parts = append(parts, spellbook.Since(c.Since))
	case c.Until != "":
		parts = append(parts, spellbook.Before(c.Until))
	}
	if c.When != "" {
		var w spellbook.Guard
		if engine == "cel" {
			w, err = spellbook.CELGuard(c.When)
		} else {
			w, err = spellbook.ExprGuard(c.When)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, w)
	}
	switch len(parts) {
	case 0:
		return spellbook.Otherwise(), nil
	case 1:
		return parts[0], nil
	default:
		return allOf(parts), nil
	}
}

// allOf matches when every part matches, its floor is the floor of the first part.
type allOf []spellbook.Guard

func (a allOf) Match(v spellbook.Version) (bool, error) {
	for _, g := range a {
		if ok, err := g.Match(v); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a allOf) Floor() (spellbook.Version, bool) { return a[0].Floor() }

func (a allOf) String() string {
	s := make([]string, len(a))
	for i, g := range a {
		s[i] = g.String()
	}
	return fmt.Sprint(s)
}

func types(in []string) []spellbook.Type {
	out := make([]spellbook.Type, len(in))
	for i, s := range in {
		out[i] = spellbook.Type(s)
	}
	return out
}

func methodStrategy(s Symbol, c Candidate) (spellbook.Strategy[spellbook.Method], error) {
	if c.Return == "" {
		return nil, fmt.Errorf("method candidate needs a return type")
	}
	owner := spellbook.ClassNamed(spellbook.ClassName(s.Class))
	if c.Method != "" {
		return spellbook.MethodNamed(owner, c.Method, spellbook.Type(c.Return), types(c.Params)...), nil
	}
	return spellbook.MethodByShape(owner, spellbook.Type(c.Return), types(c.Params)...), nil
}

func fieldStrategy(s Symbol, c Candidate) (spellbook.Strategy[spellbook.Field], error) {
	if c.Field == "" && c.Type == "" {
		return nil, fmt.Errorf("field candidate needs a field name or a type")
	}
	owner := spellbook.ClassNamed(spellbook.ClassName(s.Class))
	if c.Field != "" {
		return spellbook.FieldNamed(owner, c.Field, spellbook.Type(c.Type)), nil
	}
	return spellbook.FieldByType(owner, spellbook.Type(c.Type)), nil
}

func classStrategy(_ Symbol, c Candidate) (spellbook.Strategy[spellbook.Class], error) {
	switch {
	case c.Target != "":
		return spellbook.LoadClass(spellbook.ClassName(c.Target)), nil
	case c.Package != "" && c.Return != "":
		ret, params := spellbook.Type(c.Return), types(c.Params)
		return spellbook.ClassInCensus(c.Package, c.Depth, func(cl spellbook.Class) bool {
			return slices.ContainsFunc(cl.Methods(), func(m spellbook.Method) bool {
				return (c.Method == "" || m.Name == c.Method) && m.Matches(ret, params...)
			})
		}), nil
	default:
		return nil, fmt.Errorf("class candidate needs a target, or a package with a method shape")
	}
}
