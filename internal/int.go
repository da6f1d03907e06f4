package dispatch

import (
	"math"
	"reflect"
)

type intCodec struct{}

func (it *intCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	v, overflow, ok := toInt64(o)
	if !ok {
		return mismatch(td, o)
	}

	if overflow || (td.size < 8 && (v < -(1<<(td.size*8-1)) || v > 1<<(td.size*8-1)-1)) {
		if err := sc.precisionLoss(td, o); err != nil {
			return err
		}
	}

	putUint(dst, td.size, uint64(v))
	return nil
}

func (it *intCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	raw := getUint(src, td.size)
	var v any
	switch td.size {
	case 1:
		v = int8(raw)
	case 2:
		v = int16(raw)
	case 4:
		v = int32(raw)
	default:
		v = int64(raw)
	}
	return convertTo(td, v), nil
}

type uintCodec struct{}

func (ut *uintCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	v, overflow, ok := toUint64(o)
	if !ok {
		return mismatch(td, o)
	}

	if overflow || (td.size < 8 && v > 1<<(td.size*8)-1) {
		if err := sc.precisionLoss(td, o); err != nil {
			return err
		}
	}

	putUint(dst, td.size, v)
	return nil
}

func (ut *uintCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	raw := getUint(src, td.size)
	var v any
	switch td.size {
	case 1:
		v = uint8(raw)
	case 2:
		v = uint16(raw)
	case 4:
		v = uint32(raw)
	default:
		v = raw
	}
	return convertTo(td, v), nil
}

// toInt64 reads any Go integer (or bool, as 0/1) as an int64. overflow is set
// when an unsigned value does not fit.
func toInt64(o any) (v int64, overflow bool, ok bool) {
	if b, isBool := o.(bool); isBool {
		if b {
			return 1, false, true
		}
		return 0, false, true
	}

	rv := reflect.ValueOf(o)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), false, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		return int64(u), u > math.MaxInt64, true
	}

	return 0, false, false
}

// toUint64 is the unsigned counterpart of toInt64, negative values overflow.
func toUint64(o any) (v uint64, overflow bool, ok bool) {
	if b, isBool := o.(bool); isBool {
		if b {
			return 1, false, true
		}
		return 0, false, true
	}

	rv := reflect.ValueOf(o)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		return uint64(i), i < 0, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), false, true
	}

	return 0, false, false
}
