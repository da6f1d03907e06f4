package dispatch

import (
	"context"
	"fmt"
)

// entryPoint is the implementation a selector resolves to.
type entryPoint interface {
	// bridge returns the foreign call bridge able to call this entry point.
	bridge() callBridge
	String() string
}

// callPlan is what a bridge prepared for one signature. It is opaque to
// everything but the bridge that made it.
type callPlan interface{}

// callBridge performs calls for one kind of entry point. The frame layout
// passed to invoke must be the one the plan was prepared for.
type callBridge interface {
	prepareCall(sig *Signature, entry entryPoint) (callPlan, error)
	invoke(ctx context.Context, sc *slotContext, plan callPlan, entry entryPoint, frame *callFrame) error
}

// callFrame holds the raw argument and return slots of one call. It lives
// only as long as the dispatch that created it.
type callFrame struct {
	sig  *Signature
	args [][]byte
	ret  []byte
}

func newCallFrame(sig *Signature) *callFrame {
	size := sig.ret.size
	for _, td := range sig.frame {
		size += td.size
	}

	// One backing buffer, every slot starts on a multiple of its alignment.
	buf := make([]byte, 0, size+8*(len(sig.frame)+1))
	slot := func(td *TypeDescriptor) []byte {
		start := alignTo(len(buf), td.alignment)
		buf = buf[:start+td.size]
		return buf[start : start+td.size : start+td.size]
	}

	frame := &callFrame{
		sig:  sig,
		args: make([][]byte, len(sig.frame)),
	}
	for i, td := range sig.frame {
		frame.args[i] = slot(td)
	}
	frame.ret = slot(sig.ret)
	return frame
}

// pack writes values into the frame slots. values holds one value per frame
// slot, receiver and selector included.
func (f *callFrame) pack(sc *slotContext, values []any) error {
	for i, td := range f.sig.frame {
		if err := td.codec().ToSlot(sc, td, f.args[i], values[i]); err != nil {
			return argumentError(f.sig, i, err)
		}
	}
	return nil
}

func (f *callFrame) unpackReturn(sc *slotContext) (any, error) {
	return f.sig.ret.codec().FromSlot(sc, f.sig.ret, f.ret)
}

// argumentError reports errors in caller visible argument numbers.
func argumentError(sig *Signature, slot int, err error) error {
	switch {
	case slot == 0 && sig.implicit > 0:
		return fmt.Errorf("receiver: %w", err)
	case slot == 1 && sig.implicit > 1:
		return fmt.Errorf("selector: %w", err)
	}
	return fmt.Errorf("argument %d: %w", slot-sig.implicit, err)
}
