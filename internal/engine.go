package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-logr/logr"
	"github.com/tetratelabs/wazero/api"
)

type engine struct {
	config  IEngineConfig
	logger  logr.Logger
	handles *handleTable

	mu            sync.RWMutex
	classesByType map[reflect.Type]*class
	classesByName map[string]*class
}

func (e *engine) Attach(ctx context.Context) context.Context {
	return context.WithValue(ctx, EngineKey{}, e)
}

func (e *engine) Config() IEngineConfig {
	return e.config
}

func (e *engine) CountHandles() int {
	return e.handles.count()
}

func (e *engine) RegisterClass(name string, sample any) error {
	if sample == nil {
		return fmt.Errorf("could not register class %s, no sample value given", name)
	}
	goType := reflect.TypeOf(sample)

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.classesByName[name]; ok {
		return fmt.Errorf("could not register class %s with type %s, already registered with type %s", name, goType, existing.goType)
	}

	c, ok := e.classesByType[goType]
	if !ok {
		c = e.newClass(name, goType)
		e.classesByType[goType] = c
	}
	c.setName(name)
	e.classesByName[name] = c
	return nil
}

func (e *engine) AddMethod(className string, sel Selector, encoding string, fn any) error {
	c, err := e.registeredClass(className)
	if err != nil {
		return err
	}

	sig, err := ParseSignature(encoding)
	if err != nil {
		return err
	}

	entry, err := newGoEntry(string(sel), fn)
	if err != nil {
		return err
	}
	if receiverType := entry.fn.Type().In(0); !c.goType.AssignableTo(receiverType) {
		return fmt.Errorf("%w: receiver of method %s takes %s, class %s is %s", ErrTypeMismatch, sel, receiverType, className, c.goType)
	}

	m := &method{
		selector: sel,
		entry:    entry,
	}
	plan, err := entry.bridge().prepareCall(sig, entry)
	if err != nil {
		return fmt.Errorf("could not add method %s to class %s: %w", sel, className, err)
	}
	m.signature = plan.(*goPlan).sig
	m.planOnce.Do(func() {
		m.plan = plan
	})

	c.add(m)
	return nil
}

func (e *engine) AddWasmMethod(className string, sel Selector, encoding string, fn api.Function) error {
	c, err := e.registeredClass(className)
	if err != nil {
		return err
	}

	sig, err := ParseSignature(encoding)
	if err != nil {
		return err
	}
	if !sig.IsMessageStyle() {
		return fmt.Errorf("%w: wasm method %s needs a receiver and selector, signature %q has none", ErrUnsupportedSignature, sel, encoding)
	}

	entry := &wasmEntry{fn: fn}
	m := &method{
		selector:  sel,
		signature: sig,
		entry:     entry,
	}
	if _, err := m.callPlan(); err != nil {
		return fmt.Errorf("could not add wasm method %s to class %s: %w", sel, className, err)
	}

	c.add(m)
	return nil
}

func (e *engine) SignatureForSelector(target any, sel Selector) (*Signature, error) {
	target, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}
	if proxy, ok := target.(*Proxy); ok {
		return proxy.MethodSignatureForSelector(sel)
	}

	c, err := e.classFor(target)
	if err != nil {
		return nil, err
	}
	m, ok := c.lookup(sel)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no method %s", ErrSignatureNotFound, c.Name(), sel)
	}
	return m.signature, nil
}

func (e *engine) RespondsToSelector(target any, sel Selector) bool {
	_, err := e.SignatureForSelector(target, sel)
	return err == nil
}

func (e *engine) Perform(ctx context.Context, target any, sel Selector, args ...any) (any, error) {
	resolved, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}
	if proxy, ok := resolved.(*Proxy); ok {
		return proxy.Send(ctx, sel, args...)
	}

	inv, err := e.NewInvocation(target, sel)
	if err != nil {
		return nil, err
	}
	if err := inv.SetArguments(args...); err != nil {
		return nil, err
	}
	if err := inv.Dispatch(ctx); err != nil {
		return nil, err
	}
	return inv.ReturnValue(), nil
}

func (e *engine) newSlotContext() *slotContext {
	return &slotContext{
		handles: e.handles,
		lossy:   e.config.LossyCoercion(),
		logger:  e.logger,
	}
}

// call packs the receiver, selector and args into a fresh frame laid out for
// sig, calls m and unpacks the result. Object handles created for the call
// are released before call returns, also when m panics.
func (e *engine) call(ctx context.Context, m *method, target any, sel Selector, sig *Signature, args []any) (any, error) {
	plan, err := m.callPlan()
	if err != nil {
		return nil, err
	}

	if _, err := GetEngineFromContext(ctx); err != nil {
		ctx = e.Attach(ctx)
	}

	sc := e.newSlotContext()
	defer sc.release()

	frame := newCallFrame(sig)
	values := make([]any, 0, sig.FrameLength())
	if sig.IsMessageStyle() {
		values = append(values, target, sel)
	}
	values = append(values, args...)
	if err := frame.pack(sc, values); err != nil {
		return nil, err
	}

	err = m.entry.bridge().invoke(ctx, sc, plan, m.entry, frame)
	if err != nil {
		return nil, err
	}

	return frame.unpackReturn(sc)
}

// coerce runs v through a scratch slot of td, the value that comes out is
// what a call would see.
func (e *engine) coerce(td *TypeDescriptor, v any) (any, error) {
	sc := e.newSlotContext()
	defer sc.release()

	scratch := make([]byte, td.size)
	codec := td.codec()
	if err := codec.ToSlot(sc, td, scratch, v); err != nil {
		return nil, err
	}
	return codec.FromSlot(sc, td, scratch)
}

// resolveTarget dereferences target refs. A released weak target is an error.
func resolveTarget(target any) (any, error) {
	ref, ok := target.(TargetRef)
	if !ok {
		return target, nil
	}
	value, alive := ref.Value()
	if !alive {
		return nil, ErrTargetReleased
	}
	return value, nil
}

// isDispatchMiss reports whether err means the target has no such method.
func isDispatchMiss(err error) bool {
	return errors.Is(err, ErrSignatureNotFound) || errors.Is(err, ErrMethodNotImplemented)
}
