package dispatch

import (
	"reflect"
)

// Pointer is a raw address, for example an offset into wasm linear memory.
// Go pointers are passed as objects instead, the garbage collector does not
// allow them to be stored as integers.
type Pointer uintptr

type pointerCodec struct{}

func (pt *pointerCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	if o == nil {
		putUint(dst, td.size, 0)
		return nil
	}

	rv := reflect.ValueOf(o)
	switch rv.Kind() {
	case reflect.Uintptr, reflect.Uint, reflect.Uint32, reflect.Uint64:
		v := rv.Uint()
		if td.size < 8 && v > 1<<(td.size*8)-1 {
			if err := sc.precisionLoss(td, o); err != nil {
				return err
			}
		}
		putUint(dst, td.size, v)
		return nil
	}

	return mismatch(td, o)
}

func (pt *pointerCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	return convertTo(td, Pointer(getUint(src, td.size))), nil
}
