package spellbook

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// Type names a host type by its fully qualified name, primitives by their keyword.
	Type string
	// ClassName is a fully qualified, dot separated class name such as com.host.storage.Storage.
	ClassName string

	// ClassLoader loads classes of the host. Implementations must be safe for concurrent use.
	ClassLoader interface {
		LoadClass(name ClassName) (Class, error)
	}
	// Class is a loaded host class with its declared members.
	Class interface {
		Name() ClassName
		Methods() []Method
		Fields() []Field
	}

	// Method describes one declared method. Host names are often obfuscated, so lookups go by shape.
	Method struct {
		Owner  ClassName
		Name   string
		Params []Type
		Return Type
		Invoke func(receiver any, args ...any) ([]any, error)
	}
	// Field describes one declared field.
	Field struct {
		Owner ClassName
		Name  string
		Type  Type
		Read  func(receiver any) (any, error)
		Write func(receiver, value any) error
	}
)

// Host primitive and well known types.
const (
	Void    Type = "void"
	Boolean Type = "boolean"
	Byte    Type = "byte"
	Char    Type = "char"
	Short   Type = "short"
	Int     Type = "int"
	Long    Type = "long"
	Float   Type = "float"
	Double  Type = "double"
	String  Type = "java.lang.String"
	Object  Type = "java.lang.Object"
)

// TypeOf returns the Type naming class c.
func TypeOf(c ClassName) Type { return Type(c) }

// ArrayOf returns the array type of t.
func ArrayOf(t Type) Type { return t + "[]" }

// ClassNameOf converts a type descriptor (Lcom/host/Foo;) or a slash separated path to a ClassName.
func ClassNameOf(descriptor string) ClassName {
	s := descriptor
	if strings.HasPrefix(s, "L") && strings.HasSuffix(s, ";") {
		s = s[1 : len(s)-1]
	}
	return ClassName(strings.ReplaceAll(s, "/", "."))
}

// Package returns the package part, empty for the default package.
func (c ClassName) Package() string {
	if i := strings.LastIndexByte(string(c), '.'); i >= 0 {
		return string(c[:i])
	}
	return ""
}

// Simple returns the name without package.
func (c ClassName) Simple() string {
	if i := strings.LastIndexByte(string(c), '.'); i >= 0 {
		return string(c[i+1:])
	}
	return string(c)
}

// Matches reports whether m has exactly the given return and parameter types.
func (m Method) Matches(ret Type, params ...Type) bool {
	return m.Return == ret && slices.Equal(m.Params, params)
}

// Call invokes the method on receiver.
func (m Method) Call(receiver any, args ...any) ([]any, error) {
	if m.Invoke == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInvokable, m)
	}
	if len(args) != len(m.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", m, len(m.Params), len(args))
	}
	return m.Invoke(receiver, args...)
}

func (m Method) String() string {
	p := make([]string, len(m.Params))
	for i, t := range m.Params {
		p[i] = string(t)
	}
	return fmt.Sprintf("%s %s.%s(%s)", m.Return, m.Owner, m.Name, strings.Join(p, ", "))
}

// Get reads the field of receiver.
func (f Field) Get(receiver any) (any, error) {
	if f.Read == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInvokable, f)
	}
	return f.Read(receiver)
}

// Set writes the field of receiver.
func (f Field) Set(receiver, value any) error {
	if f.Write == nil {
		return fmt.Errorf("%w: %s", ErrNotInvokable, f)
	}
	return f.Write(receiver, value)
}

func (f Field) String() string {
	return fmt.Sprintf("%s %s.%s", f.Type, f.Owner, f.Name)
}
