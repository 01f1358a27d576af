package segment

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	commonv3 "skywalking.apache.org/repo/goapi/collect/common/v3"
	agentv3 "skywalking.apache.org/repo/goapi/collect/language/agent/v3"

	"github.com/GriffinCanCode/skytrace/internal/propagation"
)

func newTestFactory() *Factory {
	return NewFactory("mesh", "service_0")
}

func TestSpanIDsAreContiguous(t *testing.T) {
	ctx := newTestFactory().Create()

	root := ctx.CreateCurrentSegmentRootSpan()
	a := ctx.CreateCurrentSegmentSpan(root)
	b := ctx.CreateCurrentSegmentSpan(a)
	c := ctx.CreateCurrentSegmentSpan(root)

	spans := ctx.Spans()
	require.Len(t, spans, 4)
	for i, s := range spans {
		assert.Equal(t, int32(i), s.SpanID())
	}

	assert.Equal(t, RootParentSpanID, root.ParentSpanID())
	assert.Equal(t, int32(0), a.ParentSpanID())
	assert.Equal(t, int32(1), b.ParentSpanID())
	assert.Equal(t, int32(0), c.ParentSpanID())

	assert.Equal(t, SpanTypeEntry, root.SpanType())
	assert.Equal(t, SpanTypeExit, a.SpanType())
}

func TestSingleRootSentinel(t *testing.T) {
	ctx := newTestFactory().Create()

	first := ctx.CreateCurrentSegmentRootSpan()
	again := ctx.CreateCurrentSegmentRootSpan()
	orphan := ctx.CreateCurrentSegmentSpan(nil)
	foreign := newTestFactory().Create().CreateCurrentSegmentRootSpan()
	adopted := ctx.CreateCurrentSegmentSpan(foreign)

	assert.Same(t, first, again)
	assert.Equal(t, int32(0), orphan.ParentSpanID())
	assert.Equal(t, int32(0), adopted.ParentSpanID())

	roots := 0
	for _, s := range ctx.Spans() {
		if s.ParentSpanID() == RootParentSpanID {
			roots++
		}
	}
	assert.Equal(t, 1, roots)
}

func TestChildOnEmptySegmentBecomesRoot(t *testing.T) {
	ctx := newTestFactory().Create()

	span := ctx.CreateCurrentSegmentSpan(nil)

	assert.Equal(t, int32(0), span.SpanID())
	assert.Equal(t, RootParentSpanID, span.ParentSpanID())
	assert.Same(t, span, ctx.RootSpan())
}

func TestConcurrentSpanCreation(t *testing.T) {
	ctx := newTestFactory().Create()
	root := ctx.CreateCurrentSegmentRootSpan()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				ctx.CreateCurrentSegmentSpan(root)
			}
		}()
	}
	wg.Wait()

	spans := ctx.Spans()
	require.Len(t, spans, 201)
	for i, s := range spans {
		assert.Equal(t, int32(i), s.SpanID())
	}
}

func TestFinalizedSpanIsImmutable(t *testing.T) {
	ctx := newTestFactory().Create()
	span := ctx.CreateCurrentSegmentRootSpan()
	span.SetOperationName("/ping")
	span.SetStartTime(100)
	span.SetEndTime(200)

	span.SetOperationName("/pong")
	span.SetPeer("peer:1")
	span.SetSpanType(SpanTypeLocal)
	span.SetSpanLayer(SpanLayerDatabase)
	span.SetComponentID(1)
	span.SetParentSpanID(5)
	span.SetStartTime(1)
	span.SetEndTime(2)
	span.ErrorOccurred()
	span.SkipAnalysis()
	span.AddTag("k", "v")
	span.AddLog("event", "boom")

	obj := span.CreateSpanObject()
	want := &agentv3.SpanObject{
		SpanId:        0,
		ParentSpanId:  RootParentSpanID,
		StartTime:     100,
		EndTime:       200,
		OperationName: "/ping",
		SpanType:      SpanTypeEntry,
		SpanLayer:     SpanLayerUnknown,
	}
	assert.True(t, proto.Equal(want, obj), "got %v", obj)
}

func TestZeroEndTimeKeepsSpanOpen(t *testing.T) {
	span := newTestFactory().Create().CreateCurrentSegmentRootSpan()

	span.SetEndTime(0)
	assert.False(t, span.Finished())

	span.EndSpan()
	assert.True(t, span.Finished())
}

func TestReadyToSend(t *testing.T) {
	ctx := newTestFactory().Create()
	assert.False(t, ctx.ReadyToSend())

	root := ctx.CreateCurrentSegmentRootSpan()
	child := ctx.CreateCurrentSegmentSpan(root)
	child.EndSpan()
	assert.False(t, ctx.ReadyToSend())

	root.StartSpan()
	root.EndSpan()
	assert.True(t, ctx.ReadyToSend())
}

func TestCreateSegmentObject(t *testing.T) {
	ctx := newTestFactory().Create()

	root := ctx.CreateCurrentSegmentRootSpan()
	root.SetOperationName("/ping")
	root.SetSpanLayer(SpanLayerHTTP)
	root.SetComponentID(5006)
	root.SetStartTime(1000)
	root.AddTag("http.method", "GET")
	root.AddTag("status_code", "200")

	child := ctx.CreateCurrentSegmentSpan(root)
	child.SetOperationName("SELECT")
	child.SetPeer("db:5432")
	child.SetSpanLayer(SpanLayerDatabase)
	child.SetStartTime(1001)
	child.AddLogAt(1002, "event", "error", "dangling")
	child.ErrorOccurred()
	child.SetEndTime(1003)
	root.SetEndTime(1004)

	obj := ctx.CreateSegmentObject()

	want := &agentv3.SegmentObject{
		TraceId:         ctx.TraceID(),
		TraceSegmentId:  ctx.SegmentID(),
		Service:         "mesh",
		ServiceInstance: "service_0",
		Spans: []*agentv3.SpanObject{
			{
				SpanId:        0,
				ParentSpanId:  -1,
				StartTime:     1000,
				EndTime:       1004,
				OperationName: "/ping",
				SpanType:      agentv3.SpanType_Entry,
				SpanLayer:     agentv3.SpanLayer_Http,
				ComponentId:   5006,
				Tags: []*commonv3.KeyStringValuePair{
					{Key: "http.method", Value: "GET"},
					{Key: "status_code", Value: "200"},
				},
			},
			{
				SpanId:        1,
				ParentSpanId:  0,
				StartTime:     1001,
				EndTime:       1003,
				OperationName: "SELECT",
				Peer:          "db:5432",
				SpanType:      agentv3.SpanType_Exit,
				SpanLayer:     agentv3.SpanLayer_Database,
				IsError:       true,
				Logs: []*agentv3.Log{
					{
						Time: 1002,
						Data: []*commonv3.KeyStringValuePair{
							{Key: "event", Value: "error"},
							{Key: "dangling", Value: ""},
						},
					},
				},
			},
		},
	}
	assert.True(t, proto.Equal(want, obj), "got %v", obj)

	// the mapping is deterministic and detached from the live spans
	assert.True(t, proto.Equal(obj, ctx.CreateSegmentObject()))
	obj.Spans[0].Tags[0].Value = "POST"
	assert.Equal(t, "GET", ctx.CreateSegmentObject().Spans[0].Tags[0].Value)
}

func TestSW8HeaderRoundTrip(t *testing.T) {
	factory := newTestFactory()
	ctx := factory.Create()

	root := ctx.CreateCurrentSegmentRootSpan()
	root.SetOperationName("/api/v1/health")
	exit := ctx.CreateCurrentSegmentSpan(root)
	exit.SetOperationName("GET:/downstream")

	header := ctx.CreateSW8HeaderValue(exit, "example.com:8080")
	assert.Equal(t, "example.com:8080", exit.Peer())

	sc, err := propagation.Decode(header)
	require.NoError(t, err)
	assert.Equal(t, propagation.SpanContext{
		Sample:                true,
		TraceID:               ctx.TraceID(),
		ParentSegmentID:       ctx.SegmentID(),
		ParentSpanID:          1,
		ParentService:         "mesh",
		ParentServiceInstance: "service_0",
		ParentEndpoint:        "GET:/downstream",
		TargetAddress:         "example.com:8080",
	}, *sc)

	child := factory.CreateWithParent(sc, nil)
	assert.Equal(t, ctx.TraceID(), child.TraceID())
	assert.NotEqual(t, ctx.SegmentID(), child.SegmentID())

	childRoot := child.CreateCurrentSegmentRootSpan()
	refs := childRoot.CreateSpanObject().Refs
	require.Len(t, refs, 1)
	assert.True(t, proto.Equal(&agentv3.SegmentReference{
		RefType:                  agentv3.RefType_CrossProcess,
		TraceId:                  ctx.TraceID(),
		ParentTraceSegmentId:     ctx.SegmentID(),
		ParentSpanId:             1,
		ParentService:            "mesh",
		ParentServiceInstance:    "service_0",
		ParentEndpoint:           "GET:/downstream",
		NetworkAddressUsedAtPeer: "example.com:8080",
	}, refs[0]))
}

func TestSW8HeaderDefaultsToLastSpan(t *testing.T) {
	ctx := newTestFactory().Create()
	assert.Equal(t, "", ctx.CreateSW8HeaderValue(nil, "x:1"))

	root := ctx.CreateCurrentSegmentRootSpan()
	last := ctx.CreateCurrentSegmentSpan(root)
	last.SetPeer("preset:1")

	sc, err := propagation.Decode(ctx.CreateSW8HeaderValue(nil, "x:1"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), sc.ParentSpanID)
	assert.Equal(t, "preset:1", last.Peer())
}

func TestUnsampledParentPropagates(t *testing.T) {
	parent := &propagation.SpanContext{TraceID: "t", ParentSegmentID: "s", ParentSpanID: 2}
	ctx := newTestFactory().CreateWithParent(parent, nil)
	span := ctx.CreateCurrentSegmentRootSpan()

	sc, err := propagation.Decode(ctx.CreateSW8HeaderValue(span, "next:1"))
	require.NoError(t, err)
	assert.False(t, sc.Sample)
	assert.Equal(t, "t", sc.TraceID)
}

func TestSkipAnalysisExtension(t *testing.T) {
	ext := &propagation.SpanContextExtension{TracingMode: propagation.TracingModeSkipAnalysis}
	ctx := newTestFactory().CreateWithParent(nil, ext)

	root := ctx.CreateCurrentSegmentRootSpan()
	child := ctx.CreateCurrentSegmentSpan(root)

	assert.True(t, root.CreateSpanObject().SkipAnalysis)
	assert.True(t, child.CreateSpanObject().SkipAnalysis)
	assert.Empty(t, root.CreateSpanObject().Refs)
}
