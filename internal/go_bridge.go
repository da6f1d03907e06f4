package dispatch

import (
	"context"
	"fmt"
	"reflect"
)

// goEntry is a Go func implementing a method. Its first parameter is the
// receiver.
type goEntry struct {
	name  string
	fn    reflect.Value
	shape *funcShape
}

func newGoEntry(name string, fn any) (*goEntry, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, fmt.Errorf("%w: method %s needs a func, got %T", ErrTypeMismatch, name, fn)
	}
	return newGoEntryFromValue(name, rv)
}

func newGoEntryFromValue(name string, fn reflect.Value) (*goEntry, error) {
	shape, err := shapeOfFunc(fn.Type())
	if err != nil {
		return nil, err
	}
	return &goEntry{
		name:  name,
		fn:    fn,
		shape: shape,
	}, nil
}

func (ge *goEntry) bridge() callBridge {
	return theGoBridge
}

func (ge *goEntry) String() string {
	return fmt.Sprintf("Go func %s (%s)", ge.name, ge.fn.Type())
}

type goBridge struct{}

var theGoBridge = &goBridge{}

type goPlan struct {
	// sig is bound to the func's Go types, slots are unpacked with it.
	sig *Signature
}

func (gb *goBridge) prepareCall(sig *Signature, entry entryPoint) (callPlan, error) {
	ge, ok := entry.(*goEntry)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a Go func", ErrUnsupportedCallShape, entry)
	}
	if !sig.IsMessageStyle() {
		return nil, fmt.Errorf("%w: Go methods need a receiver and selector, signature %q has none", ErrUnsupportedCallShape, sig.encoding)
	}

	bound, err := bindGoTypes(sig, ge.fn.Type())
	if err != nil {
		return nil, err
	}
	return &goPlan{sig: bound}, nil
}

func (gb *goBridge) invoke(ctx context.Context, sc *slotContext, plan callPlan, entry entryPoint, frame *callFrame) error {
	gp := plan.(*goPlan)
	ge := entry.(*goEntry)
	ft := ge.fn.Type()

	unpack := func(slot int) (any, error) {
		td := gp.sig.frame[slot]
		return td.codec().FromSlot(sc, td, frame.args[slot])
	}

	in := make([]reflect.Value, 0, ft.NumIn())

	receiver, err := unpack(0)
	if err != nil {
		return fmt.Errorf("could not read receiver: %w", err)
	}
	rv, err := valueFor(ft.In(0), receiver)
	if err != nil {
		return fmt.Errorf("receiver of %s: %w", ge, err)
	}
	in = append(in, rv)

	if ge.shape.hasContext {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	if ge.shape.hasSelector {
		sel, err := unpack(1)
		if err != nil {
			return fmt.Errorf("could not read selector: %w", err)
		}
		in = append(in, reflect.ValueOf(sel))
	}

	for slot := gp.sig.implicit; slot < len(gp.sig.frame); slot++ {
		arg, err := unpack(slot)
		if err != nil {
			return argumentError(gp.sig, slot, err)
		}
		av, err := valueFor(ft.In(ge.shape.firstArg+slot-gp.sig.implicit), arg)
		if err != nil {
			return argumentError(gp.sig, slot, err)
		}
		in = append(in, av)
	}

	out := ge.fn.Call(in)

	if ge.shape.hasError {
		if errValue := out[len(out)-1]; !errValue.IsNil() {
			return errValue.Interface().(error)
		}
	}

	if ge.shape.hasResult {
		err = gp.sig.ret.codec().ToSlot(sc, gp.sig.ret, frame.ret, out[0].Interface())
		if err != nil {
			return fmt.Errorf("could not write result of %s: %w", ge, err)
		}
	}

	return nil
}

// valueFor turns an unpacked slot value into a reflect.Value of type t.
func valueFor(t reflect.Type, v any) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		if rv.Type() != t {
			converted := reflect.New(t).Elem()
			converted.Set(rv)
			return converted, nil
		}
		return rv, nil
	}

	out := reflect.New(t).Elem()
	if err := assignValue(out, v); err != nil {
		return reflect.Value{}, err
	}
	return out, nil
}
