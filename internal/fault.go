package dispatch

import (
	"errors"
	"fmt"
	"runtime"
)

// Names of the faults raised by the engine.
const (
	UnknownKeyFault      = "UnknownKeyFault"
	ReadOnlyKeyFault     = "ReadOnlyKeyFault"
	InvalidArgumentFault = "InvalidArgumentFault"
	RuntimeFault         = "RuntimeFault"
)

// Fault is a named fault signaled with Raise.
type Fault struct {
	Name   string
	Reason string
}

func (f *Fault) Error() string {
	return f.Name + ": " + f.Reason
}

// Raise signals a fault named name. It never returns: the fault unwinds the
// stack until a RunProtected call captures it.
func Raise(name string, format string, args ...any) {
	panic(&Fault{
		Name:   name,
		Reason: fmt.Sprintf(format, args...),
	})
}

// CapturedFault is a fault captured by RunProtected.
type CapturedFault struct {
	Name   string
	Reason string

	// Value is the value the fault was raised with.
	Value any
}

func (f *CapturedFault) Error() string {
	return fmt.Sprintf("captured %s: %s", f.Name, f.Reason)
}

func (f *CapturedFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

// RunProtected runs block and returns the fault raised while it ran as a
// *CapturedFault, or nil when block completed. Only faults raised on the
// calling goroutine are captured.
func RunProtected(block func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = captureFault(r)
		}
	}()

	block()
	return nil
}

func captureFault(r any) *CapturedFault {
	var fault *Fault
	if err, ok := r.(error); ok && errors.As(err, &fault) {
		return &CapturedFault{Name: fault.Name, Reason: fault.Reason, Value: r}
	}

	if runtimeErr, ok := r.(runtime.Error); ok {
		return &CapturedFault{Name: RuntimeFault, Reason: runtimeErr.Error(), Value: r}
	}

	if err, ok := r.(error); ok {
		return &CapturedFault{Name: InvalidArgumentFault, Reason: err.Error(), Value: r}
	}

	return &CapturedFault{Name: InvalidArgumentFault, Reason: fmt.Sprint(r), Value: r}
}
