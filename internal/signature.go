package dispatch

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"sync"
)

// PointerSize is the size of pointers, object references and selectors in a
// call slot on the host platform.
const PointerSize = bits.UintSize / 8

// Signature is the parsed layout of a call: one descriptor per frame slot and
// one for the return value. It never changes after construction.
type Signature struct {
	encoding string
	ret      *TypeDescriptor
	frame    []*TypeDescriptor

	// implicit is the number of leading frame slots (receiver and selector)
	// hidden from callers.
	implicit int
}

// Aggregates are laid out in full in every call frame, these bound the
// memory a single encoding can ask for.
const (
	maxArrayLength   = 1 << 16
	maxAggregateSize = 1 << 20
)

var signatureCache sync.Map

// ParseSignature parses an encoded signature, return type first. Results are
// cached by encoding.
func ParseSignature(encoding string) (*Signature, error) {
	if cached, ok := signatureCache.Load(encoding); ok {
		return cached.(*Signature), nil
	}

	p := &signatureParser{src: encoding}
	types, err := p.parseAll()
	if err != nil {
		return nil, err
	}

	sig := newSignature(encoding, types[0], types[1:])
	actual, _ := signatureCache.LoadOrStore(encoding, sig)
	return actual.(*Signature), nil
}

func newSignature(encoding string, ret *TypeDescriptor, frame []*TypeDescriptor) *Signature {
	sig := &Signature{
		encoding: encoding,
		ret:      ret,
		frame:    frame,
	}
	if len(frame) >= 2 && frame[0].class == TypeClassObject && frame[1].class == TypeClassSelector {
		sig.implicit = 2
	}
	return sig
}

func (s *Signature) Encoding() string {
	return s.encoding
}

func (s *Signature) ReturnType() *TypeDescriptor {
	return s.ret
}

// NumArguments returns the number of caller visible arguments.
func (s *Signature) NumArguments() int {
	return len(s.frame) - s.implicit
}

// ArgumentType returns the descriptor of caller visible argument i.
func (s *Signature) ArgumentType(i int) (*TypeDescriptor, error) {
	if i < 0 || i >= s.NumArguments() {
		return nil, fmt.Errorf("%w: argument %d of %d", ErrIndexOutOfBounds, i, s.NumArguments())
	}
	return s.frame[s.implicit+i], nil
}

// FrameLength returns the number of slots in the call frame, including the
// receiver and selector of message style signatures.
func (s *Signature) FrameLength() int {
	return len(s.frame)
}

func (s *Signature) FrameType(i int) *TypeDescriptor {
	return s.frame[i]
}

// IsMessageStyle reports whether the first two frame slots are the receiver
// and the selector.
func (s *Signature) IsMessageStyle() bool {
	return s.implicit == 2
}

func (s *Signature) IsVoidReturn() bool {
	return s.ret.class == TypeClassVoid
}

// LayoutCompatible reports whether calls built for s can be made through o:
// same frame length and the same class, size and alignment in every slot.
func (s *Signature) LayoutCompatible(o *Signature) bool {
	if len(s.frame) != len(o.frame) || !sameLayout(s.ret, o.ret) {
		return false
	}
	for i := range s.frame {
		if !sameLayout(s.frame[i], o.frame[i]) {
			return false
		}
	}
	return true
}

func (s *Signature) String() string {
	return s.encoding
}

type signatureParser struct {
	src string
	pos int
}

func (p *signatureParser) unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d of %q", ErrUnsupportedSignature, fmt.Sprintf(format, args...), p.pos, p.src)
}

func (p *signatureParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *signatureParser) parseAll() ([]*TypeDescriptor, error) {
	if p.src == "" {
		return nil, p.unsupported("empty signature")
	}

	types := []*TypeDescriptor{}
	for p.pos < len(p.src) {
		td, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if len(types) > 0 && td.class == TypeClassVoid {
			return nil, p.unsupported("void argument")
		}
		types = append(types, td)
		p.skipOffset()
	}
	return types, nil
}

// skipOffset skips the frame offset digits that may follow a top level type.
func (p *signatureParser) skipOffset() {
	if p.peek() == '-' || p.peek() == '+' {
		p.pos++
	}
	for c := p.peek(); c >= '0' && c <= '9'; c = p.peek() {
		p.pos++
	}
}

func (p *signatureParser) skipQualifiers() {
	for strings.IndexByte("rnNoORV", p.peek()) >= 0 && p.peek() != 0 {
		p.pos++
	}
}

func scalar(class TypeClass, size int, encoding string) *TypeDescriptor {
	return &TypeDescriptor{
		class:     class,
		size:      size,
		alignment: size,
		encoding:  encoding,
	}
}

func (p *signatureParser) parseType() (*TypeDescriptor, error) {
	p.skipQualifiers()
	start := p.pos
	c := p.peek()
	if c == 0 {
		return nil, p.unsupported("missing type")
	}
	p.pos++

	switch c {
	case 'v':
		return &TypeDescriptor{class: TypeClassVoid, alignment: 1, encoding: "v"}, nil
	case 'c':
		return scalar(TypeClassInt, 1, "c"), nil
	case 'C':
		return scalar(TypeClassUint, 1, "C"), nil
	case 's':
		return scalar(TypeClassInt, 2, "s"), nil
	case 'S':
		return scalar(TypeClassUint, 2, "S"), nil
	case 'i', 'l':
		return scalar(TypeClassInt, 4, string(c)), nil
	case 'I', 'L':
		return scalar(TypeClassUint, 4, string(c)), nil
	case 'q':
		return scalar(TypeClassInt, 8, "q"), nil
	case 'Q':
		return scalar(TypeClassUint, 8, "Q"), nil
	case 'f':
		return scalar(TypeClassFloat, 4, "f"), nil
	case 'd':
		return scalar(TypeClassFloat, 8, "d"), nil
	case 'B':
		return scalar(TypeClassBool, 1, "B"), nil
	case '*':
		return scalar(TypeClassPointer, PointerSize, "*"), nil
	case ':':
		return scalar(TypeClassSelector, PointerSize, ":"), nil
	case '#':
		return scalar(TypeClassObject, PointerSize, "#"), nil
	case '@':
		if p.peek() == '?' {
			p.pos = start
			return nil, p.unsupported("block")
		}
		if p.peek() == '"' {
			end := strings.IndexByte(p.src[p.pos+1:], '"')
			if end < 0 {
				return nil, p.unsupported("unterminated class name")
			}
			p.pos += end + 2
		}
		return scalar(TypeClassObject, PointerSize, p.src[start:p.pos]), nil
	case '^':
		if p.peek() == '?' {
			p.pos = start
			return nil, p.unsupported("function pointer")
		}
		if err := p.skipPointee(); err != nil {
			return nil, err
		}
		return scalar(TypeClassPointer, PointerSize, p.src[start:p.pos]), nil
	case '{':
		return p.parseStruct(start)
	case '[':
		return p.parseArray(start)
	case '(':
		p.pos = start
		return nil, p.unsupported("union")
	case 'b':
		p.pos = start
		return nil, p.unsupported("bit field")
	case 'D':
		p.pos = start
		return nil, p.unsupported("long double")
	case 'j':
		p.pos = start
		return nil, p.unsupported("complex number")
	case '.':
		p.pos = start
		return nil, p.unsupported("variable arguments")
	case '?':
		p.pos = start
		return nil, p.unsupported("unknown type")
	}

	p.pos = start
	return nil, p.unsupported("unknown type %q", c)
}

// skipPointee consumes the type a pointer points to. Only its extent matters,
// so unions and opaque structs are allowed behind a pointer.
func (p *signatureParser) skipPointee() error {
	p.skipQualifiers()
	c := p.peek()
	if c == 0 {
		return p.unsupported("missing pointee type")
	}

	closers := map[byte]byte{'{': '}', '(': ')', '[': ']'}
	closer, nested := closers[c]
	if !nested {
		p.pos++
		switch c {
		case '^':
			return p.skipPointee()
		case '@':
			if p.peek() == '"' {
				end := strings.IndexByte(p.src[p.pos+1:], '"')
				if end < 0 {
					return p.unsupported("unterminated class name")
				}
				p.pos += end + 2
			}
		}
		return nil
	}

	depth := 0
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case c:
			depth++
		case closer:
			depth--
		}
		p.pos++
		if depth == 0 {
			return nil
		}
	}
	return p.unsupported("unterminated %q", c)
}

func (p *signatureParser) parseStruct(start int) (*TypeDescriptor, error) {
	nameEnd := strings.IndexAny(p.src[p.pos:], "=}")
	if nameEnd < 0 {
		return nil, p.unsupported("unterminated struct")
	}
	name := p.src[p.pos : p.pos+nameEnd]
	p.pos += nameEnd
	if p.peek() == '}' {
		p.pos = start
		return nil, p.unsupported("opaque struct %s passed by value", name)
	}
	p.pos++

	td := &TypeDescriptor{
		class:     TypeClassStruct,
		alignment: 1,
		name:      name,
	}
	for p.peek() != '}' {
		if p.peek() == 0 {
			return nil, p.unsupported("unterminated struct %s", name)
		}
		// Member names, as written in ivar encodings.
		if p.peek() == '"' {
			end := strings.IndexByte(p.src[p.pos+1:], '"')
			if end < 0 {
				return nil, p.unsupported("unterminated member name")
			}
			p.pos += end + 2
		}
		member, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if member.class == TypeClassVoid {
			return nil, p.unsupported("void member in struct %s", name)
		}
		td.addMember(member)
		if td.size > maxAggregateSize {
			return nil, p.unsupported("struct %s is larger than %d bytes", name, maxAggregateSize)
		}
	}
	p.pos++

	td.finish()
	td.encoding = p.src[start:p.pos]
	return td, nil
}

func (p *signatureParser) parseArray(start int) (*TypeDescriptor, error) {
	digits := p.pos
	for c := p.peek(); c >= '0' && c <= '9'; c = p.peek() {
		p.pos++
	}
	count, err := strconv.Atoi(p.src[digits:p.pos])
	if err != nil {
		return nil, p.unsupported("array without length")
	}
	if count > maxArrayLength {
		return nil, p.unsupported("array of %d elements, at most %d are supported", count, maxArrayLength)
	}

	elem, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if elem.class == TypeClassVoid {
		return nil, p.unsupported("array of void")
	}
	if elem.size > 0 && count > maxAggregateSize/elem.size {
		return nil, p.unsupported("array of %d elements of %d bytes is larger than %d bytes", count, elem.size, maxAggregateSize)
	}
	if p.peek() != ']' {
		return nil, p.unsupported("unterminated array")
	}
	p.pos++

	td := &TypeDescriptor{
		class:     TypeClassStruct,
		alignment: 1,
	}
	for i := 0; i < count; i++ {
		td.addMember(elem)
	}
	td.alignment = max(td.alignment, elem.alignment)
	td.finish()
	td.encoding = p.src[start:p.pos]
	return td, nil
}

// addMember places a member at the next offset that satisfies its alignment.
func (td *TypeDescriptor) addMember(member *TypeDescriptor) {
	offset := alignTo(td.size, member.alignment)
	td.fields = append(td.fields, member)
	td.offsets = append(td.offsets, offset)
	td.size = offset + member.size
	td.alignment = max(td.alignment, member.alignment)
}

// finish pads the aggregate to a multiple of its alignment.
func (td *TypeDescriptor) finish() {
	td.size = alignTo(td.size, td.alignment)
}

func alignTo(offset, alignment int) int {
	if alignment <= 1 {
		return offset
	}
	return (offset + alignment - 1) / alignment * alignment
}
