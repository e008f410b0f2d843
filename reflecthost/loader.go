// Package reflecthost is a spellbook.ClassLoader over Go types.
//
// Each defined Go type becomes a host class: its method set (pointer receiver included) becomes the
// declared methods and its exported struct fields become the declared fields. Calls go through reflect.
// It serves Go hosts and, in tests, simulated hosts whose layout changes between cases.
package reflecthost

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/spellbook"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type (
	// Loader maps class names to Go types.
	Loader struct {
		mu      sync.RWMutex
		classes map[spellbook.ClassName]*class
		names   map[reflect.Type]spellbook.ClassName
		gen     uint64 // bumped by Define, member shapes built at an older gen are stale
	}
	class struct {
		name    spellbook.ClassName
		typ     reflect.Type // the non pointer type
		loader  *Loader
		mu      sync.Mutex
		built   bool
		gen     uint64
		methods []spellbook.Method
		fields  []spellbook.Field
	}
)

// New creates an empty Loader.
func New() *Loader {
	return &Loader{
		classes: make(map[spellbook.ClassName]*class),
		names:   make(map[reflect.Type]spellbook.ClassName),
	}
}

// Define registers the type of sample under name. sample may be a value or a (nil) pointer.
func (l *Loader) Define(name spellbook.ClassName, sample any) error {
	if sample == nil {
		return fmt.Errorf("reflecthost: nil sample for %s", name)
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.classes[name]; ok {
		return fmt.Errorf("reflecthost: %s already defined", name)
	}
	if prev, ok := l.names[t]; ok {
		return fmt.Errorf("reflecthost: %s already defined as %s", t, prev)
	}
	l.classes[name] = &class{name: name, typ: t, loader: l}
	l.names[t] = name
	l.gen++
	return nil
}

// MustDefine is Define that panics.
func (l *Loader) MustDefine(name spellbook.ClassName, sample any) *Loader {
	if err := l.Define(name, sample); err != nil {
		panic(err)
	}
	return l
}

// LoadClass implements spellbook.ClassLoader.
func (l *Loader) LoadClass(name spellbook.ClassName) (spellbook.Class, error) {
	l.mu.RLock()
	c, ok := l.classes[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", spellbook.ErrClassNotFound, name)
	}
	return c, nil
}

// Names lists the defined classes, usable as a census.
func (l *Loader) Names() []string {
	l.mu.RLock()
	keys := fn.MapKeys(l.classes)
	l.mu.RUnlock()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	sort.Strings(out)
	return out
}

// TypeOf names a Go type the way the host sees it.
func (l *Loader) TypeOf(t reflect.Type) spellbook.Type {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.typeOf(t)
}

func (l *Loader) typeOf(t reflect.Type) spellbook.Type {
	if n, ok := l.names[t]; ok {
		return spellbook.TypeOf(n)
	}
	switch t.Kind() {
	case reflect.Pointer:
		if n, ok := l.names[t.Elem()]; ok {
			return spellbook.TypeOf(n)
		}
	case reflect.Bool:
		return spellbook.Boolean
	case reflect.Int8, reflect.Uint8:
		return spellbook.Byte
	case reflect.Uint16:
		return spellbook.Char
	case reflect.Int16:
		return spellbook.Short
	case reflect.Int32:
		return spellbook.Int
	case reflect.Int, reflect.Int64:
		return spellbook.Long
	case reflect.Float32:
		return spellbook.Float
	case reflect.Float64:
		return spellbook.Double
	case reflect.String:
		return spellbook.String
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return spellbook.Object
		}
	case reflect.Slice, reflect.Array:
		return spellbook.ArrayOf(l.typeOf(t.Elem()))
	}
	return spellbook.Type(t.String())
}

func (c *class) Name() spellbook.ClassName { return c.name }

func (c *class) Methods() []spellbook.Method {
	m, _ := c.members()
	return m
}

func (c *class) Fields() []spellbook.Field {
	_, f := c.members()
	return f
}

// members builds the member shapes, again whenever a later Define may rename a parameter type.
func (c *class) members() ([]spellbook.Method, []spellbook.Field) {
	c.loader.mu.RLock()
	defer c.loader.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built && c.gen == c.loader.gen {
		return c.methods, c.fields
	}
	var (
		methods []spellbook.Method
		fields  []spellbook.Field
	)
	pt := reflect.PointerTo(c.typ)
	for i := 0; i < pt.NumMethod(); i++ {
		methods = append(methods, c.method(pt.Method(i)))
	}
	if c.typ.Kind() == reflect.Struct {
		for i := 0; i < c.typ.NumField(); i++ {
			if f := c.typ.Field(i); f.IsExported() {
				fields = append(fields, c.field(f))
			}
		}
	}
	c.methods, c.fields = methods, fields
	c.built, c.gen = true, c.loader.gen
	return methods, fields
}

func (c *class) method(m reflect.Method) spellbook.Method {
	mt := m.Type
	params := make([]spellbook.Type, 0, mt.NumIn()-1)
	for i := 1; i < mt.NumIn(); i++ {
		params = append(params, c.loader.typeOf(mt.In(i)))
	}
	ret := spellbook.Void
	outs := mt.NumOut()
	if outs > 0 && mt.Out(outs-1) == errorType {
		outs--
	}
	if outs > 0 {
		ret = c.loader.typeOf(mt.Out(0))
	}
	name := m.Name
	return spellbook.Method{
		Owner:  c.name,
		Name:   name,
		Params: params,
		Return: ret,
		Invoke: func(receiver any, args ...any) (out []any, err error) {
			defer func() {
				if r := recover(); r != nil {
					out, err = nil, fmt.Errorf("reflecthost: %s: %v", name, r)
				}
			}()
			rv, err := c.receiver(receiver)
			if err != nil {
				return nil, err
			}
			fv := rv.MethodByName(name)
			ft := fv.Type()
			if len(args) != ft.NumIn() {
				return nil, fmt.Errorf("reflecthost: %s takes %d arguments, got %d", name, ft.NumIn(), len(args))
			}
			in := make([]reflect.Value, len(args))
			for i, a := range args {
				// the variadic parameter is passed as one slice
				want := ft.In(i)
				if a == nil {
					in[i] = reflect.Zero(want)
					continue
				}
				av := reflect.ValueOf(a)
				if !av.Type().AssignableTo(want) {
					if !av.Type().ConvertibleTo(want) {
						return nil, fmt.Errorf("reflecthost: %s argument %d: %s is not %s", name, i, av.Type(), want)
					}
					av = av.Convert(want)
				}
				in[i] = av
			}
			if ft.IsVariadic() {
				return results(fv.CallSlice(in))
			}
			return results(fv.Call(in))
		},
	}
}

func (c *class) field(f reflect.StructField) spellbook.Field {
	idx := f.Index
	return spellbook.Field{
		Owner: c.name,
		Name:  f.Name,
		Type:  c.loader.typeOf(f.Type),
		Read: func(receiver any) (any, error) {
			rv, err := c.receiver(receiver)
			if err != nil {
				return nil, err
			}
			return rv.Elem().FieldByIndex(idx).Interface(), nil
		},
		Write: func(receiver, value any) error {
			rv, err := c.receiver(receiver)
			if err != nil {
				return err
			}
			fv := rv.Elem().FieldByIndex(idx)
			if value == nil {
				fv.Set(reflect.Zero(fv.Type()))
				return nil
			}
			vv := reflect.ValueOf(value)
			if !vv.Type().AssignableTo(fv.Type()) {
				return fmt.Errorf("reflecthost: field %s: %s is not %s", f.Name, vv.Type(), fv.Type())
			}
			fv.Set(vv)
			return nil
		},
	}
}

// receiver requires a non nil pointer to the class type.
func (c *class) receiver(receiver any) (reflect.Value, error) {
	rv := reflect.ValueOf(receiver)
	if !rv.IsValid() || rv.Type() != reflect.PointerTo(c.typ) || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("reflecthost: receiver %T is not *%s", receiver, c.typ)
	}
	return rv, nil
}

func results(out []reflect.Value) ([]any, error) {
	var err error
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e := out[n-1].Interface(); e != nil {
			err = e.(error)
		}
		out = out[:n-1]
	}
	res := make([]any, len(out))
	for i, v := range out {
		res[i] = v.Interface()
	}
	return res, err
}
