package dispatch

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/go-logr/logr"
)

// TypeClass is the semantic class of an encoded type.
type TypeClass int

const (
	TypeClassVoid TypeClass = iota
	TypeClassInt
	TypeClassUint
	TypeClassFloat
	TypeClassBool
	TypeClassPointer
	TypeClassObject
	TypeClassSelector
	TypeClassStruct
	TypeClassUnsupported
)

func (c TypeClass) String() string {
	switch c {
	case TypeClassVoid:
		return "void"
	case TypeClassInt:
		return "integer"
	case TypeClassUint:
		return "unsigned integer"
	case TypeClassFloat:
		return "floating point"
	case TypeClassBool:
		return "boolean"
	case TypeClassPointer:
		return "pointer"
	case TypeClassObject:
		return "object"
	case TypeClassSelector:
		return "selector"
	case TypeClassStruct:
		return "struct"
	}
	return "unsupported"
}

// TypeDescriptor describes the layout of one argument or return slot. Size
// and alignment are fixed when the encoding is parsed.
type TypeDescriptor struct {
	class     TypeClass
	size      int
	alignment int
	encoding  string
	name      string
	fields    []*TypeDescriptor
	offsets   []int

	// goType is only set for descriptors derived from Go types, it decides
	// which Go type a slot is unpacked into.
	goType reflect.Type
}

func (td *TypeDescriptor) Class() TypeClass {
	return td.class
}

func (td *TypeDescriptor) Size() int {
	return td.size
}

func (td *TypeDescriptor) Alignment() int {
	return td.alignment
}

func (td *TypeDescriptor) Encoding() string {
	return td.encoding
}

// Name returns the struct name for struct descriptors.
func (td *TypeDescriptor) Name() string {
	return td.name
}

func (td *TypeDescriptor) Fields() []*TypeDescriptor {
	return append([]*TypeDescriptor(nil), td.fields...)
}

func (td *TypeDescriptor) Offsets() []int {
	return append([]int(nil), td.offsets...)
}

func (td *TypeDescriptor) GoType() reflect.Type {
	return td.goType
}

func (td *TypeDescriptor) String() string {
	return fmt.Sprintf("%s %q", td.class, td.encoding)
}

func (td *TypeDescriptor) codec() typeCodec {
	switch td.class {
	case TypeClassInt:
		return &intCodec{}
	case TypeClassUint:
		return &uintCodec{}
	case TypeClassFloat:
		return &floatCodec{}
	case TypeClassBool:
		return &boolCodec{}
	case TypeClassPointer:
		return &pointerCodec{}
	case TypeClassObject:
		return &objectCodec{}
	case TypeClassSelector:
		return &selectorCodec{}
	case TypeClassStruct:
		return &structCodec{}
	}
	return &voidCodec{}
}

// withGoType returns a copy of the descriptor that unpacks into t. The layout
// is copied, never recomputed.
func (td *TypeDescriptor) withGoType(t reflect.Type) *TypeDescriptor {
	ret := *td
	ret.goType = t
	if td.class == TypeClassStruct && len(td.fields) > 0 {
		ret.fields = make([]*TypeDescriptor, len(td.fields))
		for i := range td.fields {
			var fieldType reflect.Type
			if t.Kind() == reflect.Array {
				fieldType = t.Elem()
			} else {
				fieldType = t.Field(i).Type
			}
			ret.fields[i] = td.fields[i].withGoType(fieldType)
		}
	}
	return &ret
}

// sameLayout reports whether two descriptors have the same class, size and
// alignment, recursively for struct members.
func sameLayout(a, b *TypeDescriptor) bool {
	if a.class != b.class || a.size != b.size || a.alignment != b.alignment {
		return false
	}
	if len(a.fields) != len(b.fields) {
		return false
	}
	for i := range a.fields {
		if a.offsets[i] != b.offsets[i] || !sameLayout(a.fields[i], b.fields[i]) {
			return false
		}
	}
	return true
}

// typeCodec converts between boxed Go values and the raw bytes of one slot.
type typeCodec interface {
	ToSlot(sc *slotContext, td *TypeDescriptor, dst []byte, o any) error
	FromSlot(sc *slotContext, td *TypeDescriptor, src []byte) (any, error)
}

// slotContext is the state shared by every slot of one call: the handle
// table object slots are registered in, and the handles to release once the
// call is over.
type slotContext struct {
	handles  *handleTable
	lossy    bool
	logger   logr.Logger
	releases []int32
}

func (sc *slotContext) precisionLoss(td *TypeDescriptor, o any) error {
	if !sc.lossy {
		return fmt.Errorf("%w: value %v (%T) does not fit in %s", ErrPrecisionLoss, o, o, td)
	}
	sc.logger.V(1).Info("lossy coercion", "value", o, "type", td.encoding)
	return nil
}

func (sc *slotContext) retain(handle int32) {
	if handle != 0 {
		sc.releases = append(sc.releases, handle)
	}
}

// release drops every handle retained through this context.
func (sc *slotContext) release() {
	for _, handle := range sc.releases {
		if err := sc.handles.decref(handle); err != nil {
			sc.logger.Error(err, "could not release object handle", "handle", handle)
		}
	}
	sc.releases = nil
}

func putUint(dst []byte, size int, v uint64) {
	switch size {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.NativeEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.NativeEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.NativeEndian.PutUint64(dst, v)
	}
}

func getUint(src []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(binary.NativeEndian.Uint16(src))
	case 4:
		return uint64(binary.NativeEndian.Uint32(src))
	case 8:
		return binary.NativeEndian.Uint64(src)
	}
	return 0
}

func mismatch(td *TypeDescriptor, o any) error {
	if o == nil {
		return fmt.Errorf("%w: nil given for %s", ErrTypeMismatch, td)
	}
	return fmt.Errorf("%w: value of type %T given for %s", ErrTypeMismatch, o, td)
}

// convertTo converts an unpacked value into the descriptor's Go type, when
// there is one.
func convertTo(td *TypeDescriptor, v any) any {
	if td.goType == nil || v == nil {
		return v
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == td.goType {
		return v
	}
	if convertible(rv.Type(), td.goType) {
		return rv.Convert(td.goType).Interface()
	}
	return v
}
