package segment

import (
	"sync"
	"time"

	commonv3 "skywalking.apache.org/repo/goapi/collect/common/v3"
	agentv3 "skywalking.apache.org/repo/goapi/collect/language/agent/v3"
)

// RootParentSpanID is the parent span ID carried by the root span only.
const RootParentSpanID int32 = -1

type (
	SpanType  = agentv3.SpanType
	SpanLayer = agentv3.SpanLayer
)

const (
	SpanTypeEntry = agentv3.SpanType_Entry
	SpanTypeExit  = agentv3.SpanType_Exit
	SpanTypeLocal = agentv3.SpanType_Local
)

const (
	SpanLayerUnknown      = agentv3.SpanLayer_Unknown
	SpanLayerDatabase     = agentv3.SpanLayer_Database
	SpanLayerRPCFramework = agentv3.SpanLayer_RPCFramework
	SpanLayerHTTP         = agentv3.SpanLayer_Http
	SpanLayerMQ           = agentv3.SpanLayer_MQ
	SpanLayerCache        = agentv3.SpanLayer_Cache
	SpanLayerFAAS         = agentv3.SpanLayer_FAAS
)

type tag struct {
	key, value string
}

type logEntry struct {
	time   int64
	fields []tag
}

// Span is one timed operation inside a segment. A span is mutable until its
// end time is set; after that every mutator is a no-op.
type Span struct {
	mu sync.Mutex

	spanID       int32
	parentSpanID int32
	startTime    int64
	endTime      int64

	operationName string
	peer          string
	spanType      agentv3.SpanType
	spanLayer     agentv3.SpanLayer
	componentID   int32
	isError       bool
	skipAnalysis  bool

	tags []tag
	logs []logEntry
	refs []*agentv3.SegmentReference
}

func newSpan(spanID, parentSpanID int32, spanType agentv3.SpanType, skipAnalysis bool) *Span {
	return &Span{
		spanID:       spanID,
		parentSpanID: parentSpanID,
		spanType:     spanType,
		spanLayer:    SpanLayerUnknown,
		skipAnalysis: skipAnalysis,
	}
}

// update runs fn under the span lock unless the span is finalized.
func (s *Span) update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.endTime != 0 {
		return
	}
	fn()
}

func (s *Span) SpanID() int32 { return s.spanID }

func (s *Span) ParentSpanID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parentSpanID
}

func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operationName
}

func (s *Span) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *Span) SpanType() agentv3.SpanType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spanType
}

func (s *Span) StartTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

func (s *Span) EndTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

func (s *Span) IsError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isError
}

// Finished reports whether the end time has been set.
func (s *Span) Finished() bool {
	return s.EndTime() != 0
}

func (s *Span) SetOperationName(name string) {
	s.update(func() { s.operationName = name })
}

func (s *Span) SetPeer(peer string) {
	s.update(func() { s.peer = peer })
}

func (s *Span) SetSpanType(spanType agentv3.SpanType) {
	s.update(func() { s.spanType = spanType })
}

func (s *Span) SetSpanLayer(layer agentv3.SpanLayer) {
	s.update(func() { s.spanLayer = layer })
}

// SetComponentID sets the collector's component registry ID for the library
// that produced the span.
func (s *Span) SetComponentID(id int32) {
	s.update(func() { s.componentID = id })
}

func (s *Span) SetParentSpanID(id int32) {
	s.update(func() { s.parentSpanID = id })
}

// SetStartTime sets the start timestamp in epoch milliseconds.
func (s *Span) SetStartTime(ms int64) {
	s.update(func() { s.startTime = ms })
}

// SetEndTime sets the end timestamp in epoch milliseconds and finalizes the
// span. A zero timestamp is ignored.
func (s *Span) SetEndTime(ms int64) {
	if ms == 0 {
		return
	}
	s.update(func() { s.endTime = ms })
}

// StartSpan stamps the start time with the wall clock.
func (s *Span) StartSpan() {
	s.SetStartTime(time.Now().UnixMilli())
}

// EndSpan stamps the end time with the wall clock and finalizes the span.
func (s *Span) EndSpan() {
	s.SetEndTime(time.Now().UnixMilli())
}

func (s *Span) ErrorOccurred() {
	s.update(func() { s.isError = true })
}

func (s *Span) SkipAnalysis() {
	s.update(func() { s.skipAnalysis = true })
}

func (s *Span) AddTag(key, value string) {
	s.update(func() { s.tags = append(s.tags, tag{key: key, value: value}) })
}

// AddLog appends a log entry stamped with the wall clock. kv is read as
// alternating keys and values; a trailing key gets an empty value.
func (s *Span) AddLog(kv ...string) {
	s.AddLogAt(time.Now().UnixMilli(), kv...)
}

// AddLogAt appends a log entry with an explicit timestamp.
func (s *Span) AddLogAt(ms int64, kv ...string) {
	fields := make([]tag, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		f := tag{key: kv[i]}
		if i+1 < len(kv) {
			f.value = kv[i+1]
		}
		fields = append(fields, f)
	}
	s.update(func() { s.logs = append(s.logs, logEntry{time: ms, fields: fields}) })
}

func (s *Span) addRef(ref *agentv3.SegmentReference) {
	s.update(func() { s.refs = append(s.refs, ref) })
}

// CreateSpanObject maps the span to its wire representation. The returned
// message shares nothing with the span.
func (s *Span) CreateSpanObject() *agentv3.SpanObject {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := &agentv3.SpanObject{
		SpanId:        s.spanID,
		ParentSpanId:  s.parentSpanID,
		StartTime:     s.startTime,
		EndTime:       s.endTime,
		OperationName: s.operationName,
		Peer:          s.peer,
		SpanType:      s.spanType,
		SpanLayer:     s.spanLayer,
		ComponentId:   s.componentID,
		IsError:       s.isError,
		SkipAnalysis:  s.skipAnalysis,
	}

	for _, ref := range s.refs {
		obj.Refs = append(obj.Refs, &agentv3.SegmentReference{
			RefType:                  ref.RefType,
			TraceId:                  ref.TraceId,
			ParentTraceSegmentId:     ref.ParentTraceSegmentId,
			ParentSpanId:             ref.ParentSpanId,
			ParentService:            ref.ParentService,
			ParentServiceInstance:    ref.ParentServiceInstance,
			ParentEndpoint:           ref.ParentEndpoint,
			NetworkAddressUsedAtPeer: ref.NetworkAddressUsedAtPeer,
		})
	}
	for _, t := range s.tags {
		obj.Tags = append(obj.Tags, &commonv3.KeyStringValuePair{Key: t.key, Value: t.value})
	}
	for _, l := range s.logs {
		entry := &agentv3.Log{Time: l.time}
		for _, f := range l.fields {
			entry.Data = append(entry.Data, &commonv3.KeyStringValuePair{Key: f.key, Value: f.value})
		}
		obj.Logs = append(obj.Logs, entry)
	}

	return obj
}
