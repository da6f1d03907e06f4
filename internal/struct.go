package dispatch

import (
	"fmt"
	"reflect"
)

// structCodec packs aggregates member by member at their computed offsets.
// Fixed arrays are aggregates with identical members.
type structCodec struct{}

func (st *structCodec) ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error {
	values, err := aggregateMembers(td, o)
	if err != nil {
		return err
	}

	for i, field := range td.fields {
		offset := td.offsets[i]
		err = field.codec().ToSlot(sc, field, dst[offset:offset+field.size], values[i])
		if err != nil {
			return fmt.Errorf("member %d of %s: %w", i, td, err)
		}
	}

	return nil
}

func (st *structCodec) FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error) {
	values := make([]any, len(td.fields))
	for i, field := range td.fields {
		offset := td.offsets[i]
		value, err := field.codec().FromSlot(sc, field, src[offset:offset+field.size])
		if err != nil {
			return nil, fmt.Errorf("member %d of %s: %w", i, td, err)
		}
		values[i] = value
	}

	if td.goType == nil {
		return values, nil
	}

	out := reflect.New(td.goType).Elem()
	for i := range values {
		var member reflect.Value
		if out.Kind() == reflect.Array {
			member = out.Index(i)
		} else {
			member = out.Field(i)
		}
		if err := assignValue(member, values[i]); err != nil {
			return nil, fmt.Errorf("member %d of %s: %w", i, td, err)
		}
	}
	return out.Interface(), nil
}

// aggregateMembers splits a Go struct, array, slice or []any into one value
// per member of td.
func aggregateMembers(td *TypeDescriptor, o any) ([]any, error) {
	if o == nil {
		return nil, mismatch(td, o)
	}

	if list, ok := o.([]any); ok {
		if len(list) != len(td.fields) {
			return nil, fmt.Errorf("%w: %d members given for %s, need %d", ErrTypeMismatch, len(list), td, len(td.fields))
		}
		return list, nil
	}

	rv := reflect.ValueOf(o)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, mismatch(td, o)
		}
		rv = rv.Elem()
	}

	values := make([]any, len(td.fields))
	switch rv.Kind() {
	case reflect.Struct:
		if rv.NumField() != len(td.fields) {
			return nil, fmt.Errorf("%w: %T has %d fields, %s has %d members", ErrTypeMismatch, o, rv.NumField(), td, len(td.fields))
		}
		for i := range values {
			field := rv.Field(i)
			if !field.CanInterface() {
				return nil, fmt.Errorf("%w: field %s of %T is not exported", ErrTypeMismatch, rv.Type().Field(i).Name, o)
			}
			values[i] = field.Interface()
		}
	case reflect.Array, reflect.Slice:
		if rv.Len() != len(td.fields) {
			return nil, fmt.Errorf("%w: %d members given for %s, need %d", ErrTypeMismatch, rv.Len(), td, len(td.fields))
		}
		for i := range values {
			values[i] = rv.Index(i).Interface()
		}
	default:
		return nil, mismatch(td, o)
	}

	return values, nil
}

// assignValue stores v into dst, converting between compatible kinds.
// A nil v leaves dst at its zero value.
func assignValue(dst reflect.Value, v any) error {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}

	if list, ok := v.([]any); ok {
		switch dst.Kind() {
		case reflect.Struct:
			if dst.NumField() != len(list) {
				break
			}
			for i := range list {
				if !dst.Field(i).CanSet() {
					return fmt.Errorf("%w: field %s of %s is not exported", ErrTypeMismatch, dst.Type().Field(i).Name, dst.Type())
				}
				if err := assignValue(dst.Field(i), list[i]); err != nil {
					return err
				}
			}
			return nil
		case reflect.Array:
			if dst.Len() != len(list) {
				break
			}
			for i := range list {
				if err := assignValue(dst.Index(i), list[i]); err != nil {
					return err
				}
			}
			return nil
		}
	}

	if convertible(rv.Type(), dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}

	return fmt.Errorf("%w: cannot use %T as %s", ErrTypeMismatch, v, dst.Type())
}

// convertible limits reflect conversions to ones that keep the meaning of the
// value: between numeric kinds, and between types sharing a kind.
func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	if from.Kind() == to.Kind() {
		return true
	}
	return isNumeric(from.Kind()) && isNumeric(to.Kind())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
