package dispatch

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

type pair struct {
	A, B int32
}

var _ = Describe("Wasm methods", Label("wasm"), func() {
	var e *engine
	var r wazero.Runtime
	var mod api.Module
	var c *counter
	var lastSelector uint32
	var lastReceiver any

	BeforeEach(func() {
		e = newTestEngine()
		c = &counter{value: 3}
		r = wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())

		var err error
		mod, err = r.NewHostModuleBuilder("calc").
			NewFunctionBuilder().
			WithFunc(func(self, cmd, a, b int32) int32 {
				lastSelector = uint32(cmd)
				lastReceiver, _ = e.handles.toValue(self)
				return a * b
			}).
			Export("mul").
			NewFunctionBuilder().
			WithFunc(func(self, cmd, a, b, c, d int32) int32 {
				return a + b + c + d
			}).
			Export("sum_pairs").
			NewFunctionBuilder().
			WithFunc(func(self, cmd int32, v int64) int64 {
				return v * 2
			}).
			Export("double").
			NewFunctionBuilder().
			WithFunc(func(self, cmd int32, f float32, d float64) float64 {
				return float64(f) + d
			}).
			Export("mix").
			NewFunctionBuilder().
			WithFunc(func(self, cmd, v int32) int32 {
				return v - 1
			}).
			Export("dec").
			NewFunctionBuilder().
			WithFunc(func(self, cmd, a, b int32) int32 {
				// Returned objects carry a reference for the caller.
				Expect(e.handles.incref(b)).To(Succeed())
				return b
			}).
			Export("second").
			NewFunctionBuilder().
			WithFunc(func(self, cmd int32) int32 {
				return 0
			}).
			Export("nothing").
			NewFunctionBuilder().
			WithFunc(func(self, cmd int32, p uint32) uint32 {
				return p + 1
			}).
			Export("next").
			Instantiate(ctx)
		Expect(err).To(BeNil())

		Expect(e.RegisterClass("Counter", &counter{})).To(Succeed())
	})

	AfterEach(func() {
		Expect(e.CountHandles()).To(Equal(0))
		Expect(r.Close(ctx)).To(Succeed())
	})

	It("calls the function with the receiver and selector", func() {
		Expect(e.AddWasmMethod("Counter", "mul", "i@:ii", mod.ExportedFunction("mul"))).To(Succeed())

		res, err := e.Perform(ctx, c, "mul", 6, 7)
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int32(42)))
		Expect(lastSelector).To(Equal(Selector("mul").ID()))
		Expect(lastReceiver).To(BeIdenticalTo(c))
	})

	It("flattens aggregates", func() {
		Expect(e.AddWasmMethod("Counter", "sumPairs", "i@:{Pair=ii}{Pair=ii}", mod.ExportedFunction("sum_pairs"))).To(Succeed())

		res, err := e.Perform(ctx, c, "sumPairs", pair{A: 1, B: 2}, []any{3, 4})
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int32(10)))
	})

	It("passes 64 bit and floating point values", func() {
		Expect(e.AddWasmMethod("Counter", "double", "q@:q", mod.ExportedFunction("double"))).To(Succeed())
		Expect(e.AddWasmMethod("Counter", "mix", "d@:fd", mod.ExportedFunction("mix"))).To(Succeed())

		res, err := e.Perform(ctx, c, "double", int64(1)<<40)
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int64(1) << 41))

		res, err = e.Perform(ctx, c, "mix", float32(0.5), 0.25)
		Expect(err).To(BeNil())
		Expect(res).To(Equal(0.75))
	})

	It("keeps the sign of small integers", func() {
		Expect(e.AddWasmMethod("Counter", "dec", "s@:s", mod.ExportedFunction("dec"))).To(Succeed())

		res, err := e.Perform(ctx, c, "dec", int16(-5))
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int16(-6)))
	})

	It("takes over returned objects", func() {
		Expect(e.AddWasmMethod("Counter", "second", "@@:@@", mod.ExportedFunction("second"))).To(Succeed())

		other := &counter{}
		res, err := e.Perform(ctx, c, "second", c, other)
		Expect(err).To(BeNil())
		Expect(res).To(BeIdenticalTo(other))
	})

	It("passes pointers that fit in wasm32", func() {
		Expect(e.AddWasmMethod("Counter", "next", "^v@:^v", mod.ExportedFunction("next"))).To(Succeed())

		res, err := e.Perform(ctx, c, "next", Pointer(4096))
		Expect(err).To(BeNil())
		Expect(res).To(Equal(Pointer(4097)))

		if PointerSize < 8 {
			return
		}
		wide := uint64(1) << 33
		_, err = e.Perform(ctx, c, "next", Pointer(wide))
		Expect(err).To(MatchError(ErrPrecisionLoss))
	})

	It("truncates wide pointers in lossy mode", func() {
		if PointerSize < 8 {
			Skip("pointers are 32-bit on this platform")
		}
		lossy := CreateEngine(NewConfig().WithLossyCoercion(true).WithLogger(GinkgoLogr)).(*engine)
		Expect(lossy.RegisterClass("Counter", &counter{})).To(Succeed())
		Expect(lossy.AddWasmMethod("Counter", "next", "^v@:^v", mod.ExportedFunction("next"))).To(Succeed())

		wide := uint64(1)<<33 | 7
		res, err := lossy.Perform(ctx, c, "next", Pointer(wide))
		Expect(err).To(BeNil())
		Expect(res).To(Equal(Pointer(8)))
		Expect(lossy.CountHandles()).To(Equal(0))
	})

	It("reads a zero handle as nil", func() {
		Expect(e.AddWasmMethod("Counter", "nothing", "@@:", mod.ExportedFunction("nothing"))).To(Succeed())

		res, err := e.Perform(ctx, c, "nothing")
		Expect(err).To(BeNil())
		Expect(res).To(BeNil())
	})

	It("can be dispatched through invocations and proxies", func() {
		Expect(e.AddWasmMethod("Counter", "mul", "i@:ii", mod.ExportedFunction("mul"))).To(Succeed())

		inv, err := e.NewInvocation(e.ObjectProxy(c), "mul")
		Expect(err).To(BeNil())
		Expect(inv.SetArguments(3, 5)).To(Succeed())
		Expect(inv.Dispatch(ctx)).To(Succeed())
		Expect(inv.ReturnValue()).To(Equal(int32(15)))
		Expect(lastReceiver).To(BeIdenticalTo(c))
	})

	Context("call shapes", func() {
		It("refuses functions with other value types", func() {
			err := e.AddWasmMethod("Counter", "mul", "q@:qq", mod.ExportedFunction("mul"))
			Expect(err).To(MatchError(ErrUnsupportedCallShape))
			Expect(err).To(MatchError(ContainSubstring("i64")))

			err = e.AddWasmMethod("Counter", "mul", "i@:i", mod.ExportedFunction("mul"))
			Expect(err).To(MatchError(ErrUnsupportedCallShape))
		})

		It("refuses too many params", func() {
			encoding := "i@:" + strings.Repeat("i", 15)
			err := e.AddWasmMethod("Counter", "many", encoding, mod.ExportedFunction("mul"))
			Expect(err).To(MatchError(ErrUnsupportedCallShape))
			Expect(err).To(MatchError(ContainSubstring("17 wasm params")))
		})

		It("refuses aggregate results", func() {
			err := e.AddWasmMethod("Counter", "pair", "{Pair=ii}@:", mod.ExportedFunction("nothing"))
			Expect(err).To(MatchError(ErrUnsupportedCallShape))
		})

		It("needs a receiver and selector", func() {
			err := e.AddWasmMethod("Counter", "mul", "iii", mod.ExportedFunction("mul"))
			Expect(err).To(MatchError(ErrUnsupportedSignature))
		})

		It("needs a registered class", func() {
			err := e.AddWasmMethod("Calculator", "mul", "i@:ii", mod.ExportedFunction("mul"))
			Expect(err).To(MatchError(ContainSubstring("not registered")))
		})
	})
})
