package dispatch

import (
	"fmt"
	"sync"
)

type handleEntry struct {
	value    any
	refCount int
}

// handleTable hands out reference counted integer handles for Go values so
// they can travel through raw call slots. Handle 0 is always nil.
type handleTable struct {
	mu        sync.Mutex
	allocated []*handleEntry
	freelist  []int32
}

func newHandleTable() *handleTable {
	return &handleTable{
		allocated: []*handleEntry{
			nil, // Reserve slot 0 so that 0 is always the nil object.
		},
		freelist: []int32{},
	}
}

func (ht *handleTable) get(id int32) (*handleEntry, error) {
	if id < 1 || int(id) > len(ht.allocated)-1 || ht.allocated[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, id)
	}

	return ht.allocated[id], nil
}

// toHandle allocates a handle with a reference count of 1.
func (ht *handleTable) toHandle(value any) int32 {
	if value == nil {
		return 0
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()

	entry := &handleEntry{value: value, refCount: 1}

	// Reuse freed slots when available.
	if len(ht.freelist) > 0 {
		id := ht.freelist[len(ht.freelist)-1]
		ht.freelist = ht.freelist[:len(ht.freelist)-1]
		ht.allocated[id] = entry
		return id
	}

	id := int32(len(ht.allocated))
	ht.allocated = append(ht.allocated, entry)
	return id
}

func (ht *handleTable) toValue(id int32) (any, error) {
	if id == 0 {
		return nil, nil
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()

	entry, err := ht.get(id)
	if err != nil {
		return nil, err
	}

	return entry.value, nil
}

func (ht *handleTable) incref(id int32) error {
	if id == 0 {
		return nil
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()

	entry, err := ht.get(id)
	if err != nil {
		return err
	}
	entry.refCount++
	return nil
}

func (ht *handleTable) decref(id int32) error {
	if id == 0 {
		return nil
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()

	entry, err := ht.get(id)
	if err != nil {
		return err
	}

	entry.refCount--
	if entry.refCount == 0 {
		// Drop the value so the table never keeps it alive.
		ht.allocated[id] = nil
		ht.freelist = append(ht.freelist, id)
	}

	return nil
}

// count returns the number of live handles.
func (ht *handleTable) count() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return len(ht.allocated) - 1 - len(ht.freelist)
}
