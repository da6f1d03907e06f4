package dispatch

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// memoryModule only has a memory holding "add" at 0 and "add" as UTF-16 at 3.
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x0b, 0x0f, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x09,
	'a', 'd', 'd',
	'a', 0x00, 'd', 0x00, 'd', 0x00,
}

var _ = Describe("Host functions", Label("host"), func() {
	var e *engine
	var r wazero.Runtime
	var mod api.Module
	var engineCtx = ctx

	BeforeEach(func() {
		e = newTestEngine()
		engineCtx = e.Attach(ctx)
		r = wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())

		var err error
		mod, err = r.Instantiate(ctx, memoryModule)
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		Expect(r.Close(ctx)).To(Succeed())
	})

	It("registers selectors from guest memory", func() {
		stack := []uint64{0, 3}
		RegisterSelector(engineCtx, mod, stack)
		Expect(api.DecodeU32(stack[0])).To(Equal(Selector("add").ID()))

		stack = []uint64{3, 6}
		RegisterSelectorUTF16(engineCtx, mod, stack)
		Expect(api.DecodeU32(stack[0])).To(Equal(Selector("add").ID()))
	})

	It("refuses names outside of memory", func() {
		Expect(func() {
			RegisterSelector(engineCtx, mod, []uint64{65535, 10})
		}).To(PanicWith(MatchError(ContainSubstring("out of range"))))

		Expect(func() {
			RegisterSelector(engineCtx, mod, []uint64{0, 0})
		}).To(Panic())
	})

	It("retains and releases objects for the guest", func() {
		handle := e.handles.toHandle(&counter{})
		Expect(e.CountHandles()).To(Equal(1))

		ObjectRetain(engineCtx, mod, []uint64{api.EncodeI32(handle)})
		ObjectRelease(engineCtx, mod, []uint64{api.EncodeI32(handle)})
		Expect(e.CountHandles()).To(Equal(1))
		ObjectRelease(engineCtx, mod, []uint64{api.EncodeI32(handle)})
		Expect(e.CountHandles()).To(Equal(0))

		Expect(func() {
			ObjectRelease(engineCtx, mod, []uint64{api.EncodeI32(handle)})
		}).To(PanicWith(MatchError(ErrInvalidHandle)))
	})

	It("performs selectors for the guest", func() {
		handle := e.handles.toHandle(&counter{value: 9})
		stack := []uint64{api.EncodeI32(handle), api.EncodeU32(Selector("value").ID())}
		Perform(engineCtx, mod, stack)

		result := api.DecodeI32(stack[0])
		value, err := e.handles.toValue(result)
		Expect(err).To(BeNil())
		Expect(value).To(Equal(int32(9)))

		Expect(e.handles.decref(result)).To(Succeed())
		Expect(e.handles.decref(handle)).To(Succeed())
		Expect(e.CountHandles()).To(Equal(0))
	})

	It("needs an engine in the context", func() {
		Expect(func() {
			ObjectRetain(ctx, mod, []uint64{1})
		}).To(Panic())
	})
})
