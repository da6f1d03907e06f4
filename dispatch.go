package dispatch

import (
	internal "github.com/jerbob92/wazero-dispatch/internal"
)

type Engine interface {
	internal.IEngine
	NewFunctionExporter() FunctionExporter
}

type EngineKey = internal.EngineKey

type Selector = internal.Selector

type Pointer = internal.Pointer

type Signature = internal.Signature

type TypeDescriptor = internal.TypeDescriptor

type TypeClass = internal.TypeClass

type Invocation = internal.Invocation

type InvocationHandler = internal.InvocationHandler

type Proxy = internal.Proxy

type TargetRef = internal.TargetRef

type Fault = internal.Fault

type CapturedFault = internal.CapturedFault

const (
	TypeClassVoid        = internal.TypeClassVoid
	TypeClassInt         = internal.TypeClassInt
	TypeClassUint        = internal.TypeClassUint
	TypeClassFloat       = internal.TypeClassFloat
	TypeClassBool        = internal.TypeClassBool
	TypeClassPointer     = internal.TypeClassPointer
	TypeClassObject      = internal.TypeClassObject
	TypeClassSelector    = internal.TypeClassSelector
	TypeClassStruct      = internal.TypeClassStruct
	TypeClassUnsupported = internal.TypeClassUnsupported
)

const (
	UnknownKeyFault      = internal.UnknownKeyFault
	ReadOnlyKeyFault     = internal.ReadOnlyKeyFault
	InvalidArgumentFault = internal.InvalidArgumentFault
	RuntimeFault         = internal.RuntimeFault
)

var (
	ErrUnsupportedSignature     = internal.ErrUnsupportedSignature
	ErrTypeMismatch             = internal.ErrTypeMismatch
	ErrPrecisionLoss            = internal.ErrPrecisionLoss
	ErrIndexOutOfBounds         = internal.ErrIndexOutOfBounds
	ErrSignatureNotFound        = internal.ErrSignatureNotFound
	ErrMethodNotImplemented     = internal.ErrMethodNotImplemented
	ErrDoesNotRecognizeSelector = internal.ErrDoesNotRecognizeSelector
	ErrUnsupportedCallShape     = internal.ErrUnsupportedCallShape
	ErrSignatureMismatch        = internal.ErrSignatureMismatch
	ErrNoTarget                 = internal.ErrNoTarget
	ErrTargetReleased           = internal.ErrTargetReleased
	ErrNoSelector               = internal.ErrNoSelector
	ErrInvalidHandle            = internal.ErrInvalidHandle
)

func NewConfig() internal.IEngineConfig {
	return internal.NewConfig()
}

// CreateEngine returns a new engine. Attach it to the context given to
// wazero when wasm modules call into it through the host functions.
func CreateEngine(config internal.IEngineConfig) Engine {
	return &wazeroEngine{
		IEngine: internal.CreateEngine(config),
	}
}

// ParseSignature parses a type encoding such as "i@:if".
func ParseSignature(encoding string) (*Signature, error) {
	return internal.ParseSignature(encoding)
}

// WeakRef returns an invocation target that does not keep p alive.
func WeakRef[T any](p *T) TargetRef {
	return internal.WeakRef(p)
}

// Raise signals a named fault, to be captured by RunProtected.
func Raise(name string, format string, args ...any) {
	internal.Raise(name, format, args...)
}

// RunProtected runs block and returns any fault raised in it as a
// *CapturedFault.
func RunProtected(block func()) error {
	return internal.RunProtected(block)
}
