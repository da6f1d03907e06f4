package dispatch

type voidCodec struct{}

func (vt *voidCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	if o != nil {
		return mismatch(td, o)
	}
	return nil
}

func (vt *voidCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	return nil, nil
}
