package segment

import (
	"sync"

	agentv3 "skywalking.apache.org/repo/goapi/collect/language/agent/v3"

	"github.com/GriffinCanCode/skytrace/internal/propagation"
	"github.com/GriffinCanCode/skytrace/internal/shared/id"
)

// Context is one trace segment: the spans a single process records for one
// unit of work, in creation order.
type Context struct {
	traceID   string
	segmentID string
	service   string
	instance  string
	sampled   bool

	parent    *propagation.SpanContext
	parentExt *propagation.SpanContextExtension

	mu    sync.Mutex
	spans []*Span
}

func newContext(service, instance string, parent *propagation.SpanContext, ext *propagation.SpanContextExtension) *Context {
	c := &Context{
		segmentID: id.NewSegmentID().String(),
		service:   service,
		instance:  instance,
		sampled:   true,
		parent:    parent,
		parentExt: ext,
	}
	if parent != nil {
		c.traceID = parent.TraceID
		c.sampled = parent.Sample
	} else {
		c.traceID = id.NewTraceID().String()
	}
	return c
}

func (c *Context) TraceID() string   { return c.traceID }
func (c *Context) SegmentID() string { return c.segmentID }
func (c *Context) Service() string   { return c.service }
func (c *Context) Instance() string  { return c.instance }

// Parent returns the decoded caller context, nil for a trace root.
func (c *Context) Parent() *propagation.SpanContext { return c.parent }

// Extension returns the decoded sw8-x value, if any.
func (c *Context) Extension() *propagation.SpanContextExtension { return c.parentExt }

// Spans returns a snapshot of the span list.
func (c *Context) Spans() []*Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Span(nil), c.spans...)
}

// RootSpan returns the span with ID 0, or nil if none exists yet.
func (c *Context) RootSpan() *Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.spans) == 0 {
		return nil
	}
	return c.spans[0]
}

// CreateCurrentSegmentRootSpan creates the root span (ID 0, parent -1).
// When the segment continues a remote trace the root carries one
// cross-process reference to the caller. Calling it again returns the
// existing root.
func (c *Context) CreateCurrentSegmentRootSpan() *Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rootLocked()
}

func (c *Context) rootLocked() *Span {
	if len(c.spans) > 0 {
		return c.spans[0]
	}

	root := newSpan(0, RootParentSpanID, SpanTypeEntry, c.parentExt.SkipAnalysis())
	if p := c.parent; p != nil {
		root.addRef(&agentv3.SegmentReference{
			RefType:                  agentv3.RefType_CrossProcess,
			TraceId:                  p.TraceID,
			ParentTraceSegmentId:     p.ParentSegmentID,
			ParentSpanId:             p.ParentSpanID,
			ParentService:            p.ParentService,
			ParentServiceInstance:    p.ParentServiceInstance,
			ParentEndpoint:           p.ParentEndpoint,
			NetworkAddressUsedAtPeer: p.TargetAddress,
		})
	}
	c.spans = append(c.spans, root)
	return root
}

// CreateCurrentSegmentSpan creates a child span with the next sequential ID.
// A nil parent, or one from another segment, attaches the child to the root,
// creating the root first when the segment is empty.
func (c *Context) CreateCurrentSegmentSpan(parent *Span) *Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 && parent == nil {
		return c.rootLocked()
	}
	if parent == nil || !c.ownsLocked(parent) {
		parent = c.rootLocked()
	}

	span := newSpan(int32(len(c.spans)), parent.spanID, SpanTypeExit, c.parentExt.SkipAnalysis())
	c.spans = append(c.spans, span)
	return span
}

func (c *Context) ownsLocked(s *Span) bool {
	return int(s.spanID) < len(c.spans) && c.spans[s.spanID] == s
}

// CreateSW8HeaderValue encodes the sw8 value an outbound call made from span
// should carry. A nil span uses the most recent span; an empty segment
// yields "". The span's peer is set to targetAddress unless already set.
func (c *Context) CreateSW8HeaderValue(span *Span, targetAddress string) string {
	c.mu.Lock()
	if span == nil {
		if len(c.spans) == 0 {
			c.mu.Unlock()
			return ""
		}
		span = c.spans[len(c.spans)-1]
	}
	c.mu.Unlock()

	if targetAddress != "" && span.Peer() == "" {
		span.SetPeer(targetAddress)
	}

	sc := propagation.SpanContext{
		Sample:                c.sampled,
		TraceID:               c.traceID,
		ParentSegmentID:       c.segmentID,
		ParentSpanID:          span.SpanID(),
		ParentService:         c.service,
		ParentServiceInstance: c.instance,
		ParentEndpoint:        span.OperationName(),
		TargetAddress:         targetAddress,
	}
	return sc.Encode()
}

// ReadyToSend reports whether the root span exists and is finalized.
func (c *Context) ReadyToSend() bool {
	root := c.RootSpan()
	return root != nil && root.Finished()
}

// CreateSegmentObject maps the segment to its wire representation with spans
// in creation order.
func (c *Context) CreateSegmentObject() *agentv3.SegmentObject {
	spans := c.Spans()

	obj := &agentv3.SegmentObject{
		TraceId:         c.traceID,
		TraceSegmentId:  c.segmentID,
		Service:         c.service,
		ServiceInstance: c.instance,
		Spans:           make([]*agentv3.SpanObject, 0, len(spans)),
	}
	for _, s := range spans {
		obj.Spans = append(obj.Spans, s.CreateSpanObject())
	}
	return obj
}
