package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"
)

type IEngine interface {
	Attach(ctx context.Context) context.Context
	Config() IEngineConfig

	// RegisterClass makes the Go type of sample known under name, so that
	// methods can be added to it with AddMethod and AddWasmMethod.
	RegisterClass(name string, sample any) error

	// AddMethod binds selector sel of class to the Go func fn. The first
	// parameter of fn is the receiver, optionally followed by a
	// context.Context and a Selector, then the arguments of encoding.
	AddMethod(class string, sel Selector, encoding string, fn any) error

	// AddWasmMethod binds selector sel of class to a wasm function. The
	// function receives the receiver handle and the selector id, then the
	// arguments of encoding.
	AddWasmMethod(class string, sel Selector, encoding string, fn api.Function) error

	SignatureForSelector(target any, sel Selector) (*Signature, error)
	RespondsToSelector(target any, sel Selector) bool

	// Perform sends sel to target with args and returns the result.
	Perform(ctx context.Context, target any, sel Selector, args ...any) (any, error)

	NewInvocation(target any, sel Selector) (*Invocation, error)
	NewInvocationWithSignature(sig *Signature) *Invocation

	ObjectProxy(target any) *Proxy
	ObjectProxyWithHandler(target any, handler InvocationHandler) *Proxy
	NewHandlerProxy(handler InvocationHandler, declared *Signature) *Proxy

	ValueForKey(target any, key string) any
	SetValueForKey(target any, key string, value any)
	ValueForKeyPath(target any, path string) any
	SetValueForKeyPath(target any, path string, value any)
	SafeValueForKey(target any, key string) any
	SafeSetValueForKey(target any, key string, value any) bool
	SafeValueForKeyPath(target any, path string) any
	SafeSetValueForKeyPath(target any, path string, value any) bool

	// CountHandles returns the number of live object handles.
	CountHandles() int
}

func GetEngineFromContext(ctx context.Context) (IEngine, error) {
	raw := ctx.Value(EngineKey{})
	if raw == nil {
		return nil, fmt.Errorf("dispatch engine not found in context")
	}

	value, ok := raw.(IEngine)
	if !ok {
		return nil, fmt.Errorf("context value %v not of type %T", raw, new(IEngine))
	}

	return value, nil
}

func MustGetEngineFromContext(ctx context.Context) IEngine {
	e, err := GetEngineFromContext(ctx)
	if err != nil {
		panic(fmt.Errorf("could not get dispatch engine from context: %w, make sure to create an engine with dispatch.CreateEngine() and to attach it to the context with \"ctx = engine.Attach(ctx)\"", err))
	}

	return e
}

// EngineKey is the context key Attach stores the engine under.
type EngineKey struct{}

// CreateEngine returns a new dispatch engine. A nil config uses the defaults
// of NewConfig.
func CreateEngine(config IEngineConfig) IEngine {
	if config == nil {
		config = NewConfig()
	}
	return &engine{
		config:        config,
		logger:        config.Logger(),
		handles:       newHandleTable(),
		classesByType: map[reflect.Type]*class{},
		classesByName: map[string]*class{},
	}
}
