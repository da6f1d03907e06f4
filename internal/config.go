package dispatch

import (
	"github.com/go-logr/logr"
)

// IEngineConfig controls engine behaviour. Every With* call returns a copy, the
// receiver is never modified.
type IEngineConfig interface {
	// WithLogger sets the logger used by the engine. Defaults to logr.Discard().
	WithLogger(logger logr.Logger) IEngineConfig

	// WithLossyCoercion controls what happens when an argument does not fit
	// its slot, for example an int64 of 1<<40 packed into a 32-bit slot.
	// When false (the default) this fails with ErrPrecisionLoss, when true the
	// value is truncated and the truncation is logged.
	WithLossyCoercion(lossy bool) IEngineConfig

	Logger() logr.Logger
	LossyCoercion() bool
}

type engineConfig struct {
	logger logr.Logger
	lossy  bool
}

func NewConfig() IEngineConfig {
	return &engineConfig{
		logger: logr.Discard(),
	}
}

func (c *engineConfig) clone() *engineConfig {
	ret := *c
	return &ret
}

func (c *engineConfig) WithLogger(logger logr.Logger) IEngineConfig {
	ret := c.clone()
	ret.logger = logger
	return ret
}

func (c *engineConfig) WithLossyCoercion(lossy bool) IEngineConfig {
	ret := c.clone()
	ret.lossy = lossy
	return ret
}

func (c *engineConfig) Logger() logr.Logger {
	return c.logger
}

func (c *engineConfig) LossyCoercion() bool {
	return c.lossy
}
