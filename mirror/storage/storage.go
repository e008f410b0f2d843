// Package storage mirrors the message storage of the host.
//
// The insert method of the storage class gained a trailing boolean parameter in 6.5.8 and its name
// is obfuscated in every release, so it is found by shape against the detected host version.
package storage

import (
	"errors"
	"fmt"

	. "github.com/ZenLiuCN/spellbook"
	"github.com/ZenLiuCN/spellbook/pool"
)

const (
	ClassStorage ClassName = "com.host.storage.Storage"
	ClassMsgInfo ClassName = "com.host.storage.MsgInfo"

	// SlotStorage holds the storage instance the host created.
	SlotStorage Slot = "storage"

	SymbolStorageClass = "Storage_class"
	SymbolInsert       = "Storage_insert"
)

// InsertSince is the first host release whose insert takes the trailing flag.
const InsertSince = "6.5.8"

var ErrNoStorage = errors.New("storage instance not registered")

// Mirror holds the storage bindings of one Global.
type Mirror struct {
	g      *Global
	Class  *Binding[Class]
	Insert *Binding[Method]
}

// ClassRule loads the storage class.
func ClassRule() Rule[Class] {
	return NewRule(SymbolStorageClass, When(Otherwise(), LoadClass(ClassStorage)))
}

// InsertRule picks the insert overload by host version, owner is the storage class.
func InsertRule(owner ClassRef) Rule[Method] {
	msg := TypeOf(ClassMsgInfo)
	return NewRule(SymbolInsert,
		When(Since(InsertSince), MethodByShape(owner, Long, msg, String, Long, Boolean)),
		When(Otherwise(), MethodByShape(owner, Long, msg, String, Long)),
	)
}

// NewMirror binds the mirror against g.
func NewMirror(g *Global, opts ...BindingOption) *Mirror {
	m := &Mirror{g: g}
	m.Class = Bind(g, ClassRule(), opts...)
	m.Insert = Bind(g, InsertRule(ClassOf(m.Class)), opts...)
	return m
}

// Register adds the mirror bindings to p.
func (m *Mirror) Register(p *pool.Pool) error {
	return errors.Join(p.Register(m.Class), p.Register(m.Insert))
}

// Store calls the resolved insert on the live storage instance. The flag is dropped for hosts
// whose insert does not take it.
func (m *Mirror) Store(msg any, peer string, seq int64, flag bool) (int64, error) {
	method, err := m.Insert.Get()
	if err != nil {
		return 0, err
	}
	recv, ok := m.g.LiveObject(SlotStorage)
	if !ok {
		return 0, ErrNoStorage
	}
	args := []any{msg, peer, seq}
	if len(method.Params) == 4 {
		args = append(args, flag)
	}
	out, err := method.Call(recv, args...)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%s returned %d values", method, len(out))
	}
	id, ok := out[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%s returned %T", method, out[0])
	}
	return id, nil
}
