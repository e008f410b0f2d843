package spellbook

// Slot names a live host object that collaborators register as the host creates it.
type Slot string

// SetLiveObject stores ref under slot, replacing any previous object. A nil ref clears the slot.
//
// The Global never owns the object: collaborators overwrite or clear it when the host recreates
// or drops it, and readers must always handle absence.
func (g *Global) SetLiveObject(slot Slot, ref any) {
	if ref == nil || isNil(ref) {
		g.slots.Delete(slot)
		return
	}
	g.slots.Store(slot, ref)
}

// LiveObject returns the object currently registered under slot.
func (g *Global) LiveObject(slot Slot) (any, bool) {
	return g.slots.Load(slot)
}

func (g *Global) ClearLiveObject(slot Slot) {
	g.slots.Delete(slot)
}

// LiveObjectAs returns the object under slot when present and of type T.
func LiveObjectAs[T any](g *Global, slot Slot) (t T, ok bool) {
	v, found := g.slots.Load(slot)
	if !found {
		return
	}
	t, ok = v.(T)
	return
}
