package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// InvocationHandler receives the calls made to a handler proxy. The
// invocation is not dispatched for it; the handler may dispatch it, change
// it, or set a return value itself.
type InvocationHandler func(ctx context.Context, inv *Invocation) error

// Proxy stands in for another object. It either forwards every call to its
// delegate, or hands every call to its handler. The binding is fixed when
// the proxy is created.
type Proxy struct {
	engine *engine

	delegate any

	handler  InvocationHandler
	nominal  any
	declared *Signature
}

// ObjectProxy returns a proxy forwarding every call to target unchanged.
func (e *engine) ObjectProxy(target any) *Proxy {
	return &Proxy{
		engine:   e,
		delegate: target,
	}
}

// ObjectProxyWithHandler returns a proxy handing every call to handler. The
// invocations the handler receives target target, so handlers can dispatch
// them to it. Without a handler it is ObjectProxy(target).
func (e *engine) ObjectProxyWithHandler(target any, handler InvocationHandler) *Proxy {
	if handler == nil {
		return e.ObjectProxy(target)
	}
	return &Proxy{
		engine:  e,
		handler: handler,
		nominal: target,
	}
}

// NewHandlerProxy returns a proxy without any target, handing every call to
// handler. Invocations it creates use declared as their signature when it is
// set, and have no target.
func (e *engine) NewHandlerProxy(handler InvocationHandler, declared *Signature) *Proxy {
	return &Proxy{
		engine:   e,
		handler:  handler,
		declared: declared,
	}
}

// Delegate returns the object calls are forwarded to, nil for handler proxies.
func (p *Proxy) Delegate() any {
	return p.delegate
}

// Target returns the object the proxy stands in for: the delegate, or the
// nominal target of a handler proxy.
func (p *Proxy) Target() any {
	if p.handler != nil {
		return p.nominal
	}
	return p.delegate
}

func (p *Proxy) String() string {
	if p.handler != nil {
		return fmt.Sprintf("handler proxy for %T", p.nominal)
	}
	return fmt.Sprintf("proxy for %T", p.delegate)
}

// MethodSignatureForSelector returns the signature the proxy answers sel
// with.
func (p *Proxy) MethodSignatureForSelector(sel Selector) (*Signature, error) {
	return p.signatureFor(sel, nil)
}

func (p *Proxy) signatureFor(sel Selector, args []any) (*Signature, error) {
	if p.handler == nil {
		if p.delegate == nil {
			return nil, fmt.Errorf("%w: proxy has no delegate or handler for %s", ErrDoesNotRecognizeSelector, sel)
		}
		sig, err := p.engine.SignatureForSelector(p.delegate, sel)
		if err != nil {
			if isDispatchMiss(err) {
				return nil, fmt.Errorf("%w: %s: %w", ErrDoesNotRecognizeSelector, sel, err)
			}
			return nil, err
		}
		return sig, nil
	}

	if p.nominal != nil {
		sig, err := p.engine.SignatureForSelector(p.nominal, sel)
		if err == nil {
			return sig, nil
		}
		if !isDispatchMiss(err) {
			return nil, err
		}
	}
	if p.declared != nil {
		return p.declared, nil
	}
	return inferSignature(args)
}

// inferSignature builds an object returning message signature that takes
// args. Values without an encoding are passed as objects.
func inferSignature(args []any) (*Signature, error) {
	sb := strings.Builder{}
	sb.WriteString("@@:")
	types := make([]reflect.Type, len(args))
	for i := range args {
		encoding := "@"
		if args[i] != nil {
			types[i] = reflect.TypeOf(args[i])
			if derived, err := EncodingForType(types[i]); err == nil {
				encoding = derived
			} else {
				types[i] = nil
			}
		}
		sb.WriteString(encoding)
	}

	parsed, err := ParseSignature(sb.String())
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return parsed, nil
	}

	frame := append([]*TypeDescriptor(nil), parsed.frame...)
	for i, t := range types {
		if t != nil {
			frame[parsed.implicit+i] = frame[parsed.implicit+i].withGoType(t)
		}
	}
	return newSignature(parsed.encoding, parsed.ret, frame), nil
}

// Send delivers sel with args to the proxy and returns the result, as if
// the call had been made to the object the proxy stands in for.
func (p *Proxy) Send(ctx context.Context, sel Selector, args ...any) (any, error) {
	sig, err := p.signatureFor(sel, args)
	if err != nil {
		return nil, err
	}

	inv := p.engine.NewInvocationWithSignature(sig)
	inv.selector = sel
	if err := inv.SetArguments(args...); err != nil {
		return nil, err
	}

	if err := p.deliver(ctx, inv); err != nil {
		return nil, err
	}
	return inv.ReturnValue(), nil
}

// forwardInvocation handles an invocation dispatched to the proxy. It works
// on a copy aimed at the delegate or nominal target, the result is copied
// back into inv.
func (p *Proxy) forwardInvocation(ctx context.Context, inv *Invocation) error {
	if inv.selector == "" {
		return ErrNoSelector
	}

	forwarded := &Invocation{
		engine:      inv.engine,
		selector:    inv.selector,
		sig:         inv.sig,
		args:        inv.Arguments(),
		returnValue: inv.returnValue,
	}
	if err := p.deliver(ctx, forwarded); err != nil {
		return err
	}
	inv.returnValue = forwarded.returnValue
	return nil
}

func (p *Proxy) deliver(ctx context.Context, inv *Invocation) error {
	if p.handler != nil {
		inv.target = p.nominal
		p.engine.logger.V(2).Info("handing invocation to handler", "selector", inv.selector, "proxy", p.String())
		if err := p.handler(ctx, inv); err != nil {
			return fmt.Errorf("invocation handler for %s: %w", inv.selector, err)
		}
		return nil
	}

	if p.delegate == nil {
		return fmt.Errorf("%w: proxy has no delegate or handler for %s", ErrDoesNotRecognizeSelector, inv.selector)
	}
	if !p.engine.RespondsToSelector(p.delegate, inv.selector) {
		return fmt.Errorf("%w: %T does not respond to %s", ErrDoesNotRecognizeSelector, p.delegate, inv.selector)
	}

	p.engine.logger.V(2).Info("forwarding invocation", "selector", inv.selector, "proxy", p.String())
	inv.target = p.delegate
	return inv.Dispatch(ctx)
}
