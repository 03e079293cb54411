// ABOUTME: Per-connection handler factory over a shared immutable pipeline

package server

import (
	"github.com/driftlock/sigv4gate/internal/sigv4"
)

// Factory hands out one authentication pipeline instance per accepted
// connection. Instances share the immutable configuration and collaborator
// handles; no mutable state crosses connections.
type Factory struct {
	pipeline *sigv4.Pipeline
}

// NewFactory creates a factory over the given pipeline.
func NewFactory(pipeline *sigv4.Pipeline) *Factory {
	return &Factory{pipeline: pipeline}
}

// Build returns the pipeline instance for a new connection.
func (f *Factory) Build() *sigv4.Pipeline {
	return f.pipeline.Clone()
}
