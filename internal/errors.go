package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedSignature     = errors.New("unsupported signature")
	ErrTypeMismatch             = errors.New("type mismatch")
	ErrPrecisionLoss            = errors.New("precision loss")
	ErrIndexOutOfBounds         = errors.New("index out of bounds")
	ErrSignatureNotFound        = errors.New("signature not found")
	ErrMethodNotImplemented     = errors.New("method not implemented")
	ErrDoesNotRecognizeSelector = errors.New("does not recognize selector")
	ErrUnsupportedCallShape     = errors.New("unsupported call shape")

	// ErrSignatureMismatch is returned when a selector is swapped for one whose
	// layout differs from the signature the invocation was built with.
	ErrSignatureMismatch = fmt.Errorf("%w: incompatible signature", ErrTypeMismatch)

	ErrNoTarget       = errors.New("invocation has no target")
	ErrTargetReleased = errors.New("invocation target has been released")
	ErrNoSelector     = errors.New("invocation has no selector")
	ErrInvalidHandle  = errors.New("invalid object handle")
)
