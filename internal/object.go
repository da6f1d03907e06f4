package dispatch

import (
	"fmt"
	"reflect"
)

// objectCodec passes Go values by handle. Every handle created while packing
// is retained by the slot context until the call is over.
type objectCodec struct{}

func (ot *objectCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	if o != nil && td.goType != nil && !reflect.TypeOf(o).AssignableTo(td.goType) {
		return mismatch(td, o)
	}

	handle := sc.handles.toHandle(o)
	sc.retain(handle)
	putUint(dst, td.size, uint64(uint32(handle)))
	return nil
}

func (ot *objectCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	handle := int32(getUint(src, td.size))
	value, err := sc.handles.toValue(handle)
	if err != nil {
		return nil, fmt.Errorf("could not read object slot: %w", err)
	}
	if value != nil && td.goType != nil && !reflect.TypeOf(value).AssignableTo(td.goType) {
		return nil, mismatch(td, value)
	}
	return value, nil
}
