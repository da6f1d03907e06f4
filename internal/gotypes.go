package dispatch

import (
	"context"
	"fmt"
	"math/bits"
	"reflect"
	"strings"
)

var (
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	selectorType = reflect.TypeOf(Selector(""))
	pointerType  = reflect.TypeOf(Pointer(0))
)

// EncodingForType returns the type encoding used for values of Go type t.
func EncodingForType(t reflect.Type) (string, error) {
	if t == nil {
		return "v", nil
	}

	switch t {
	case selectorType:
		return ":", nil
	case pointerType:
		return "^v", nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return "B", nil
	case reflect.Int8:
		return "c", nil
	case reflect.Uint8:
		return "C", nil
	case reflect.Int16:
		return "s", nil
	case reflect.Uint16:
		return "S", nil
	case reflect.Int32:
		return "i", nil
	case reflect.Uint32:
		return "I", nil
	case reflect.Int64:
		return "q", nil
	case reflect.Uint64:
		return "Q", nil
	case reflect.Int:
		if bits.UintSize == 64 {
			return "q", nil
		}
		return "i", nil
	case reflect.Uint:
		if bits.UintSize == 64 {
			return "Q", nil
		}
		return "I", nil
	case reflect.Uintptr:
		return "^v", nil
	case reflect.Float32:
		return "f", nil
	case reflect.Float64:
		return "d", nil
	case reflect.String, reflect.Pointer, reflect.Interface, reflect.Slice,
		reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "@", nil
	case reflect.Array:
		elem, err := EncodingForType(t.Elem())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%d%s]", t.Len(), elem), nil
	case reflect.Struct:
		name := t.Name()
		if name == "" {
			name = "?"
		}
		sb := strings.Builder{}
		sb.WriteString("{" + name + "=")
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				return "", fmt.Errorf("%w: struct %s has unexported field %s", ErrUnsupportedSignature, t, t.Field(i).Name)
			}
			field, err := EncodingForType(t.Field(i).Type)
			if err != nil {
				return "", err
			}
			sb.WriteString(field)
		}
		sb.WriteString("}")
		return sb.String(), nil
	}

	return "", fmt.Errorf("%w: Go type %s has no encoding", ErrUnsupportedSignature, t)
}

// descriptorForType parses the encoding of t and ties the result to t, so
// that unpacked values come back as t.
func descriptorForType(t reflect.Type) (*TypeDescriptor, error) {
	encoding, err := EncodingForType(t)
	if err != nil {
		return nil, err
	}
	p := &signatureParser{src: encoding}
	td, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return td, nil
	}
	return td.withGoType(t), nil
}

// funcShape describes how a Go func maps onto a message style signature.
type funcShape struct {
	// hasContext is set when the parameter after the receiver is a
	// context.Context.
	hasContext bool

	// hasSelector is set when the parameter after the receiver (and context)
	// is a Selector.
	hasSelector bool

	// firstArg is the index of the first caller visible parameter.
	firstArg int

	hasResult bool
	hasError  bool
}

func shapeOfFunc(ft reflect.Type) (*funcShape, error) {
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %s is not a func", ErrTypeMismatch, ft)
	}
	if ft.NumIn() == 0 {
		return nil, fmt.Errorf("%w: func %s has no receiver parameter", ErrUnsupportedSignature, ft)
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%w: func %s is variadic", ErrUnsupportedSignature, ft)
	}

	shape := &funcShape{firstArg: 1}
	if ft.NumIn() > shape.firstArg && ft.In(shape.firstArg) == contextType {
		shape.hasContext = true
		shape.firstArg++
	}
	if ft.NumIn() > shape.firstArg && ft.In(shape.firstArg) == selectorType {
		shape.hasSelector = true
		shape.firstArg++
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			shape.hasError = true
		} else {
			shape.hasResult = true
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("%w: second result of %s must be an error", ErrUnsupportedSignature, ft)
		}
		shape.hasResult = true
		shape.hasError = true
	default:
		return nil, fmt.Errorf("%w: func %s has too many results", ErrUnsupportedSignature, ft)
	}

	return shape, nil
}

// encodingForFunc returns the message style encoding of a Go func whose
// first parameter is the receiver.
func encodingForFunc(ft reflect.Type) (string, error) {
	shape, err := shapeOfFunc(ft)
	if err != nil {
		return "", err
	}

	sb := strings.Builder{}
	if shape.hasResult {
		ret, err := EncodingForType(ft.Out(0))
		if err != nil {
			return "", err
		}
		sb.WriteString(ret)
	} else {
		sb.WriteString("v")
	}
	sb.WriteString("@:")

	for i := shape.firstArg; i < ft.NumIn(); i++ {
		arg, err := EncodingForType(ft.In(i))
		if err != nil {
			return "", err
		}
		sb.WriteString(arg)
	}

	return sb.String(), nil
}

// signatureForFunc derives a message style signature from a Go func. The
// descriptors remember their Go types, so the result is not cached.
func signatureForFunc(ft reflect.Type) (*Signature, error) {
	encoding, err := encodingForFunc(ft)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseSignature(encoding)
	if err != nil {
		return nil, err
	}
	return bindGoTypes(parsed, ft)
}

// bindGoTypes returns a copy of sig whose caller visible argument and return
// descriptors unpack into the Go types of ft. The layouts must match.
func bindGoTypes(sig *Signature, ft reflect.Type) (*Signature, error) {
	shape, err := shapeOfFunc(ft)
	if err != nil {
		return nil, err
	}
	numArgs := ft.NumIn() - shape.firstArg
	if numArgs != sig.NumArguments() {
		return nil, fmt.Errorf("%w: func %s takes %d arguments, signature %q has %d", ErrSignatureMismatch, ft, numArgs, sig.encoding, sig.NumArguments())
	}
	if shape.hasResult == sig.IsVoidReturn() {
		return nil, fmt.Errorf("%w: return of func %s does not match signature %q", ErrSignatureMismatch, ft, sig.encoding)
	}

	bound := &Signature{
		encoding: sig.encoding,
		ret:      sig.ret,
		frame:    append([]*TypeDescriptor(nil), sig.frame...),
		implicit: sig.implicit,
	}

	check := func(td *TypeDescriptor, t reflect.Type) (*TypeDescriptor, error) {
		derived, err := descriptorForType(t)
		if err != nil {
			return nil, err
		}
		if derived.class != td.class && !(isIntegral(derived.class) && isIntegral(td.class)) {
			return nil, fmt.Errorf("%w: Go type %s can not be used for %s", ErrSignatureMismatch, t, td)
		}
		if td.class == TypeClassStruct && !sameLayout(derived, td) {
			return nil, fmt.Errorf("%w: layout of Go type %s differs from %s", ErrSignatureMismatch, t, td)
		}
		return td.withGoType(t), nil
	}

	if shape.hasResult {
		if bound.ret, err = check(sig.ret, ft.Out(0)); err != nil {
			return nil, err
		}
	}
	for i := 0; i < numArgs; i++ {
		slot := sig.implicit + i
		if bound.frame[slot], err = check(sig.frame[slot], ft.In(shape.firstArg+i)); err != nil {
			return nil, err
		}
	}

	return bound, nil
}

func isIntegral(c TypeClass) bool {
	return c == TypeClassInt || c == TypeClassUint
}
