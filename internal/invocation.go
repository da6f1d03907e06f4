package dispatch

import (
	"context"
	"fmt"
	"weak"
)

// TargetRef is a reference to the target of an Invocation that may not keep
// the target alive.
type TargetRef interface {
	// Value returns the target, alive is false once it has been released.
	Value() (target any, alive bool)
}

type weakTarget[T any] struct {
	pointer weak.Pointer[T]
}

func (w *weakTarget[T]) Value() (any, bool) {
	p := w.pointer.Value()
	if p == nil {
		return nil, false
	}
	return p, true
}

// WeakRef returns a TargetRef that does not keep p alive. Dispatching to it
// after p has been collected fails with ErrTargetReleased.
func WeakRef[T any](p *T) TargetRef {
	return &weakTarget[T]{pointer: weak.Make(p)}
}

// Invocation is a call that can be inspected, changed and dispatched any
// number of times. It is not safe for concurrent use.
type Invocation struct {
	engine *engine

	target      any
	selector    Selector
	sig         *Signature
	args        []any
	returnValue any
}

func (e *engine) NewInvocation(target any, sel Selector) (*Invocation, error) {
	sig, err := e.SignatureForSelector(target, sel)
	if err != nil {
		return nil, err
	}
	inv := e.NewInvocationWithSignature(sig)
	inv.target = target
	inv.selector = sel
	return inv, nil
}

func (e *engine) NewInvocationWithSignature(sig *Signature) *Invocation {
	inv := &Invocation{
		engine: e,
		sig:    sig,
		args:   make([]any, sig.NumArguments()),
	}

	sc := e.newSlotContext()
	defer sc.release()
	for i := range inv.args {
		td := sig.frame[sig.implicit+i]
		inv.args[i], _ = td.codec().FromSlot(sc, td, make([]byte, td.size))
	}
	inv.returnValue, _ = sig.ret.codec().FromSlot(sc, sig.ret, make([]byte, sig.ret.size))

	return inv
}

// Target returns the target, nil when there is none or when a weak target
// has been released.
func (inv *Invocation) Target() any {
	target, err := resolveTarget(inv.target)
	if err != nil {
		return nil
	}
	return target
}

// SetTarget sets the target. A TargetRef is stored as is, any other value is
// referenced directly.
func (inv *Invocation) SetTarget(target any) {
	inv.target = target
}

func (inv *Invocation) Selector() Selector {
	return inv.selector
}

// SetSelector changes the method that is called. The new selector is checked
// against the signature when the invocation is dispatched.
func (inv *Invocation) SetSelector(sel Selector) {
	inv.selector = sel
}

func (inv *Invocation) Signature() *Signature {
	return inv.sig
}

func (inv *Invocation) NumArguments() int {
	return len(inv.args)
}

func (inv *Invocation) Argument(index int) (any, error) {
	if index < 0 || index >= len(inv.args) {
		return nil, fmt.Errorf("%w: argument %d of %d", ErrIndexOutOfBounds, index, len(inv.args))
	}
	return inv.args[index], nil
}

// SetArgument coerces value against the type of argument index and stores
// the result.
func (inv *Invocation) SetArgument(index int, value any) error {
	td, err := inv.sig.ArgumentType(index)
	if err != nil {
		return err
	}
	coerced, err := inv.engine.coerce(td, value)
	if err != nil {
		return fmt.Errorf("argument %d: %w", index, err)
	}
	inv.args[index] = coerced
	return nil
}

// Arguments returns a copy of the current arguments.
func (inv *Invocation) Arguments() []any {
	return append([]any(nil), inv.args...)
}

// SetArguments replaces all arguments. Nothing is changed when one of them
// can not be coerced.
func (inv *Invocation) SetArguments(args ...any) error {
	if len(args) != len(inv.args) {
		return fmt.Errorf("%w: %d arguments given, signature %q takes %d", ErrTypeMismatch, len(args), inv.sig.encoding, len(inv.args))
	}

	coerced := make([]any, len(args))
	for i := range args {
		value, err := inv.engine.coerce(inv.sig.frame[inv.sig.implicit+i], args[i])
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		coerced[i] = value
	}
	copy(inv.args, coerced)
	return nil
}

// ReturnValue returns the result of the last successful dispatch. It is nil
// for void signatures.
func (inv *Invocation) ReturnValue() any {
	return inv.returnValue
}

// SetReturnValue stores a result without dispatching, for use by
// invocation handlers.
func (inv *Invocation) SetReturnValue(value any) error {
	coerced, err := inv.engine.coerce(inv.sig.ret, value)
	if err != nil {
		return fmt.Errorf("return value: %w", err)
	}
	inv.returnValue = coerced
	return nil
}

func (inv *Invocation) IsVoidReturn() bool {
	return inv.sig.IsVoidReturn()
}

// Dispatch calls the selector on the target with the current arguments and
// stores the result. On error the return value is left unchanged.
func (inv *Invocation) Dispatch(ctx context.Context) error {
	if inv.target == nil {
		return ErrNoTarget
	}
	target, err := resolveTarget(inv.target)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNoTarget
	}

	if proxy, ok := target.(*Proxy); ok {
		return proxy.forwardInvocation(ctx, inv)
	}

	if inv.selector == "" {
		return ErrNoSelector
	}
	if !inv.sig.IsMessageStyle() {
		return fmt.Errorf("%w: signature %q has no receiver and selector", ErrUnsupportedCallShape, inv.sig.encoding)
	}

	m, err := inv.engine.lookupMethod(target, inv.selector)
	if err != nil {
		return err
	}
	if !inv.sig.LayoutCompatible(m.signature) {
		return fmt.Errorf("%w: %s takes %q, invocation has %q", ErrSignatureMismatch, inv.selector, m.signature.encoding, inv.sig.encoding)
	}

	ret, err := inv.engine.call(ctx, m, target, inv.selector, inv.sig, inv.args)
	if err != nil {
		return fmt.Errorf("could not dispatch %s: %w", inv.selector, err)
	}
	inv.returnValue = ret
	return nil
}

// DispatchWithTarget sets the target and dispatches.
func (inv *Invocation) DispatchWithTarget(ctx context.Context, target any) error {
	inv.SetTarget(target)
	return inv.Dispatch(ctx)
}
