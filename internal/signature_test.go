package dispatch

import (
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parsing signatures", Label("signature"), func() {
	When("the signature is message style", func() {
		It("hides the receiver and selector", func() {
			sig, err := ParseSignature("i@:if")
			Expect(err).To(BeNil())
			Expect(sig.IsMessageStyle()).To(BeTrue())
			Expect(sig.FrameLength()).To(Equal(4))
			Expect(sig.NumArguments()).To(Equal(2))
			Expect(sig.ReturnType().Class()).To(Equal(TypeClassInt))
			Expect(sig.ReturnType().Size()).To(Equal(4))

			arg, err := sig.ArgumentType(0)
			Expect(err).To(BeNil())
			Expect(arg.Class()).To(Equal(TypeClassInt))

			arg, err = sig.ArgumentType(1)
			Expect(err).To(BeNil())
			Expect(arg.Class()).To(Equal(TypeClassFloat))
			Expect(arg.Size()).To(Equal(4))

			_, err = sig.ArgumentType(2)
			Expect(err).To(MatchError(ErrIndexOutOfBounds))
		})

		It("knows void returns", func() {
			sig, err := ParseSignature("v@:")
			Expect(err).To(BeNil())
			Expect(sig.IsVoidReturn()).To(BeTrue())
			Expect(sig.NumArguments()).To(Equal(0))
		})

		It("skips frame offsets and qualifiers", func() {
			sig, err := ParseSignature("Vv24@0:8r*16")
			Expect(err).To(BeNil())
			Expect(sig.IsVoidReturn()).To(BeTrue())
			Expect(sig.NumArguments()).To(Equal(1))

			arg, err := sig.ArgumentType(0)
			Expect(err).To(BeNil())
			Expect(arg.Class()).To(Equal(TypeClassPointer))
			Expect(arg.Size()).To(Equal(PointerSize))
		})

		It("accepts class names on objects", func() {
			sig, err := ParseSignature(`@"NSString"@:#`)
			Expect(err).To(BeNil())
			Expect(sig.ReturnType().Class()).To(Equal(TypeClassObject))
			Expect(sig.ReturnType().Encoding()).To(Equal(`@"NSString"`))

			arg, err := sig.ArgumentType(0)
			Expect(err).To(BeNil())
			Expect(arg.Class()).To(Equal(TypeClassObject))
		})
	})

	When("the signature is not message style", func() {
		It("exposes every slot as argument", func() {
			sig, err := ParseSignature("iii")
			Expect(err).To(BeNil())
			Expect(sig.IsMessageStyle()).To(BeFalse())
			Expect(sig.NumArguments()).To(Equal(2))
		})
	})

	Context("scalar layouts", func() {
		It("uses the native sizes", func() {
			sizes := map[string]int{
				"c": 1, "C": 1, "s": 2, "S": 2, "i": 4, "I": 4, "l": 4, "L": 4,
				"q": 8, "Q": 8, "f": 4, "d": 8, "B": 1,
				"*": PointerSize, "^i": PointerSize, "@": PointerSize, "#": PointerSize, ":": PointerSize,
			}
			for encoding, size := range sizes {
				sig, err := ParseSignature(encoding + "@:")
				Expect(err).To(BeNil(), encoding)
				Expect(sig.ReturnType().Size()).To(Equal(size), encoding)
				Expect(sig.ReturnType().Alignment()).To(Equal(size), encoding)
			}
		})

		It("allows pointers to types that can not be passed by value", func() {
			_, err := ParseSignature("v@:^{Opaque}^(Union=ic)^^d")
			Expect(err).To(BeNil())
		})
	})

	Context("aggregate layouts", func() {
		It("pads members to their alignment", func() {
			sig, err := ParseSignature("{Mixed=cid}@:")
			Expect(err).To(BeNil())
			td := sig.ReturnType()
			Expect(td.Class()).To(Equal(TypeClassStruct))
			Expect(td.Name()).To(Equal("Mixed"))
			Expect(td.Offsets()).To(Equal([]int{0, 4, 8}))
			Expect(td.Size()).To(Equal(16))
			Expect(td.Alignment()).To(Equal(8))
		})

		It("pads the size to the largest alignment", func() {
			sig, err := ParseSignature("{Tail=dc}@:")
			Expect(err).To(BeNil())
			Expect(sig.ReturnType().Offsets()).To(Equal([]int{0, 8}))
			Expect(sig.ReturnType().Size()).To(Equal(16))
		})

		It("nests aggregates", func() {
			sig, err := ParseSignature("{Outer={Inner=cs}i}@:")
			Expect(err).To(BeNil())
			td := sig.ReturnType()
			Expect(td.Fields()).To(HaveLen(2))
			Expect(td.Fields()[0].Size()).To(Equal(4))
			Expect(td.Fields()[0].Alignment()).To(Equal(2))
			Expect(td.Fields()[0].Offsets()).To(Equal([]int{0, 2}))
			Expect(td.Offsets()).To(Equal([]int{0, 4}))
			Expect(td.Size()).To(Equal(8))
			Expect(td.Alignment()).To(Equal(4))
		})

		It("lays out arrays as repeated members", func() {
			sig, err := ParseSignature("v@:[3s]")
			Expect(err).To(BeNil())
			td, err := sig.ArgumentType(0)
			Expect(err).To(BeNil())
			Expect(td.Class()).To(Equal(TypeClassStruct))
			Expect(td.Offsets()).To(Equal([]int{0, 2, 4}))
			Expect(td.Size()).To(Equal(6))
			Expect(td.Alignment()).To(Equal(2))
		})
	})

	Context("unsupported encodings", func() {
		It("fails the whole signature", func() {
			for _, encoding := range []string{
				"",
				"(Union=ic)@:",
				"i@:.",
				"i@:i.",
				"v@:^?",
				"v@:@?",
				"v@:b4",
				"D@:",
				"v@:j",
				"v@:{Opaque}",
				"v@:?",
				"v@:z",
				"i@:v",
				"v@:{Open=i",
				"v@:[4i",
			} {
				sig, err := ParseSignature(encoding)
				Expect(err).To(MatchError(ErrUnsupportedSignature), encoding)
				Expect(sig).To(BeNil(), encoding)
			}
		})
	})

	It("refuses aggregates that are too large", func() {
		for _, encoding := range []string{
			"v@:[99999999999999999999i]",
			"v@:[4611686018427387904c]",
			"v@:[65537c]",
			"v@:[40000[32c]]",
			"v@:[1024[1024q]]",
			"v@:{Big=[65536q][65536q][65536q]}",
		} {
			sig, err := ParseSignature(encoding)
			Expect(err).To(MatchError(ErrUnsupportedSignature), encoding)
			Expect(sig).To(BeNil(), encoding)
		}

		sig, err := ParseSignature("v@:[65536c]")
		Expect(err).To(BeNil())
		td, err := sig.ArgumentType(0)
		Expect(err).To(BeNil())
		Expect(td.Size()).To(Equal(65536))
	})

	It("caches parsed signatures", func() {
		a, err := ParseSignature("q@:qq")
		Expect(err).To(BeNil())
		b, err := ParseSignature("q@:qq")
		Expect(err).To(BeNil())
		Expect(a).To(BeIdenticalTo(b))
	})

	It("compares layouts", func() {
		a, _ := ParseSignature("i@:ii")
		b, _ := ParseSignature("l@:ll")
		c, _ := ParseSignature("I@:ii")
		d, _ := ParseSignature("i@:i")
		Expect(a.LayoutCompatible(b)).To(BeTrue())
		Expect(a.LayoutCompatible(c)).To(BeFalse())
		Expect(a.LayoutCompatible(d)).To(BeFalse())
	})
})

var _ = Describe("Deriving signatures from Go types", Label("signature"), func() {
	type point struct {
		X int32
		Y float64
	}
	type hidden struct {
		x int32
	}

	It("encodes Go types", func() {
		Expect(EncodingForType(reflect.TypeOf(int8(0)))).To(Equal("c"))
		Expect(EncodingForType(reflect.TypeOf(uint32(0)))).To(Equal("I"))
		Expect(EncodingForType(reflect.TypeOf(true))).To(Equal("B"))
		Expect(EncodingForType(reflect.TypeOf(float32(0)))).To(Equal("f"))
		Expect(EncodingForType(reflect.TypeOf(""))).To(Equal("@"))
		Expect(EncodingForType(reflect.TypeOf([]int{}))).To(Equal("@"))
		Expect(EncodingForType(reflect.TypeOf(Selector("")))).To(Equal(":"))
		Expect(EncodingForType(reflect.TypeOf(Pointer(0)))).To(Equal("^v"))
		Expect(EncodingForType(reflect.TypeOf(point{}))).To(Equal("{point=id}"))
		Expect(EncodingForType(reflect.TypeOf([2]uint16{}))).To(Equal("[2S]"))

		_, err := EncodingForType(reflect.TypeOf(complex64(0)))
		Expect(err).To(MatchError(ErrUnsupportedSignature))
		_, err = EncodingForType(reflect.TypeOf(hidden{}))
		Expect(err).To(MatchError(ErrUnsupportedSignature))
	})

	It("derives message style signatures from methods", func() {
		method, ok := reflect.TypeOf(&counter{}).MethodByName("Scale")
		Expect(ok).To(BeTrue())
		sig, err := signatureForFunc(method.Type)
		Expect(err).To(BeNil())
		Expect(sig.Encoding()).To(Equal("d@:id"))

		arg, err := sig.ArgumentType(0)
		Expect(err).To(BeNil())
		Expect(arg.GoType()).To(Equal(reflect.TypeOf(int32(0))))
	})

	It("leaves out contexts and error results", func() {
		method, ok := reflect.TypeOf(&counter{}).MethodByName("HasContext")
		Expect(ok).To(BeTrue())
		sig, err := signatureForFunc(method.Type)
		Expect(err).To(BeNil())
		Expect(sig.Encoding()).To(Equal("B@:"))

		method, ok = reflect.TypeOf(&counter{}).MethodByName("Fail")
		Expect(ok).To(BeTrue())
		sig, err = signatureForFunc(method.Type)
		Expect(err).To(BeNil())
		Expect(sig.Encoding()).To(Equal("v@:"))
	})

	It("rejects funcs without an encoding", func() {
		_, err := signatureForFunc(reflect.TypeOf(func(any, ...int) {}))
		Expect(err).To(MatchError(ErrUnsupportedSignature))

		_, err = signatureForFunc(reflect.TypeOf(func(any) (int, int) { return 0, 0 }))
		Expect(err).To(MatchError(ErrUnsupportedSignature))
	})
})
