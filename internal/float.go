package dispatch

import (
	"math"
	"reflect"
)

type floatCodec struct{}

func (ft *floatCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	// Keep float32 bit patterns (NaN payloads included) untouched.
	if f32, ok := o.(float32); ok && td.size == 4 {
		putUint(dst, 4, uint64(math.Float32bits(f32)))
		return nil
	}

	var f float64
	exact := true

	rv := reflect.ValueOf(o)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f = rv.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		f = float64(i)
		exact = f != 0x1p63 && int64(f) == i
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		f = float64(u)
		exact = f != 0x1p64 && uint64(f) == u
	default:
		return mismatch(td, o)
	}

	if td.size == 4 {
		f32 := float32(f)
		if !math.IsNaN(f) && float64(f32) != f {
			exact = false
		}
		if !exact {
			if err := sc.precisionLoss(td, o); err != nil {
				return err
			}
		}
		putUint(dst, 4, uint64(math.Float32bits(f32)))
		return nil
	}

	if !exact {
		if err := sc.precisionLoss(td, o); err != nil {
			return err
		}
	}
	putUint(dst, 8, math.Float64bits(f))
	return nil
}

func (ft *floatCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	if td.size == 4 {
		return convertTo(td, math.Float32frombits(uint32(getUint(src, 4)))), nil
	}
	return convertTo(td, math.Float64frombits(getUint(src, 8))), nil
}
