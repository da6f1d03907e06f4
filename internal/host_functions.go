package dispatch

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/text/encoding/unicode"
)

// ObjectRetain increments the reference count of an object handle held by
// the guest.
var ObjectRetain = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	engine := MustGetEngineFromContext(ctx).(*engine)
	handle := api.DecodeI32(stack[0])
	if handle == 0 {
		return
	}

	if err := engine.handles.incref(handle); err != nil {
		panic(fmt.Errorf("could not retain object: %w", err))
	}
})

// ObjectRelease drops a reference to an object handle held by the guest.
var ObjectRelease = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	engine := MustGetEngineFromContext(ctx).(*engine)
	handle := api.DecodeI32(stack[0])
	if handle == 0 {
		return
	}

	if err := engine.handles.decref(handle); err != nil {
		panic(fmt.Errorf("could not release object: %w", err))
	}
})

// RegisterSelector reads a selector name from guest memory and returns its id.
var RegisterSelector = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	namePtr := api.DecodeU32(stack[0])
	nameLen := api.DecodeU32(stack[1])

	name, ok := mod.Memory().Read(namePtr, nameLen)
	if !ok {
		panic(fmt.Errorf("could not read selector name at %d with length %d: out of range", namePtr, nameLen))
	}
	if len(name) == 0 {
		panic(fmt.Errorf("could not register selector: empty name"))
	}

	stack[0] = api.EncodeU32(Selector(name).ID())
})

// RegisterSelectorUTF16 is RegisterSelector for guests that keep strings as
// little endian UTF-16, nameLen is in bytes.
var RegisterSelectorUTF16 = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	namePtr := api.DecodeU32(stack[0])
	nameLen := api.DecodeU32(stack[1])

	raw, ok := mod.Memory().Read(namePtr, nameLen)
	if !ok {
		panic(fmt.Errorf("could not read selector name at %d with length %d: out of range", namePtr, nameLen))
	}

	name, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		panic(fmt.Errorf("could not decode selector name: %w", err))
	}
	if len(name) == 0 {
		panic(fmt.Errorf("could not register selector: empty name"))
	}

	stack[0] = api.EncodeU32(Selector(name).ID())
})

// Perform sends a selector without arguments to an object. The result is
// returned as a new handle that the guest has to release.
var Perform = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	engine := MustGetEngineFromContext(ctx).(*engine)
	receiverHandle := api.DecodeI32(stack[0])
	selectorID := api.DecodeU32(stack[1])

	receiver, err := engine.handles.toValue(receiverHandle)
	if err != nil {
		panic(fmt.Errorf("could not read receiver: %w", err))
	}

	sel, ok := SelectorForID(selectorID)
	if !ok {
		panic(fmt.Errorf("could not perform selector: unknown selector id %d", selectorID))
	}

	result, err := engine.Perform(ctx, receiver, sel)
	if err != nil {
		panic(fmt.Errorf("could not perform %s: %w", sel, err))
	}

	stack[0] = api.EncodeI32(engine.handles.toHandle(result))
})
