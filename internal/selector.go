package dispatch

import (
	"fmt"
	"reflect"
	"sync"
	"unicode"
)

// Selector names a method. It is resolved to an implementation only when a
// call is dispatched.
type Selector string

type selectorRegistry struct {
	mu    sync.RWMutex
	ids   map[Selector]uint32
	names []Selector
}

// Selector ids are process wide, id 0 is never handed out.
var selectors = &selectorRegistry{
	ids:   map[Selector]uint32{},
	names: []Selector{""},
}

// ID returns the process wide id of the selector, registering it on first use.
// The empty selector is always 0.
func (s Selector) ID() uint32 {
	if s == "" {
		return 0
	}

	selectors.mu.RLock()
	id, ok := selectors.ids[s]
	selectors.mu.RUnlock()
	if ok {
		return id
	}

	selectors.mu.Lock()
	defer selectors.mu.Unlock()
	if id, ok = selectors.ids[s]; ok {
		return id
	}
	id = uint32(len(selectors.names))
	selectors.names = append(selectors.names, s)
	selectors.ids[s] = id
	return id
}

// SelectorForID returns the selector registered under id.
func SelectorForID(id uint32) (Selector, bool) {
	selectors.mu.RLock()
	defer selectors.mu.RUnlock()
	if id == 0 || int(id) >= len(selectors.names) {
		return "", false
	}
	return selectors.names[id], true
}

// exported returns the selector with its first letter upper-cased, the name
// a Go method for it would have.
func (s Selector) exported() Selector {
	if s == "" {
		return s
	}
	r := []rune(string(s))
	r[0] = unicode.ToUpper(r[0])
	return Selector(r)
}

type selectorCodec struct{}

func (st *selectorCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	rv := reflect.ValueOf(o)
	if rv.Kind() != reflect.String {
		return mismatch(td, o)
	}

	putUint(dst, td.size, uint64(Selector(rv.String()).ID()))
	return nil
}

func (st *selectorCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	id := getUint(src, td.size)
	if id == 0 {
		return convertTo(td, Selector("")), nil
	}

	sel, ok := SelectorForID(uint32(id))
	if !ok {
		return nil, fmt.Errorf("%w: unknown selector id %d", ErrTypeMismatch, id)
	}
	return convertTo(td, sel), nil
}
