package segment

import "github.com/GriffinCanCode/skytrace/internal/propagation"

// Factory creates segment contexts stamped with one service identity.
type Factory struct {
	service  string
	instance string
}

func NewFactory(service, instance string) *Factory {
	return &Factory{service: service, instance: instance}
}

func (f *Factory) Service() string  { return f.service }
func (f *Factory) Instance() string { return f.instance }

// Create starts a new trace.
func (f *Factory) Create() *Context {
	return newContext(f.service, f.instance, nil, nil)
}

// CreateWithParent continues the trace described by parent. A nil parent
// starts a new trace; ext may be nil.
func (f *Factory) CreateWithParent(parent *propagation.SpanContext, ext *propagation.SpanContextExtension) *Context {
	return newContext(f.service, f.instance, parent, ext)
}
