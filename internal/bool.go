package dispatch

import (
	"reflect"
)

type boolCodec struct{}

func (bt *boolCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	rv := reflect.ValueOf(o)
	if rv.Kind() != reflect.Bool {
		return mismatch(td, o)
	}

	if rv.Bool() {
		putUint(dst, td.size, 1)
	} else {
		putUint(dst, td.size, 0)
	}
	return nil
}

func (bt *boolCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	return convertTo(td, getUint(src, td.size) != 0), nil
}
