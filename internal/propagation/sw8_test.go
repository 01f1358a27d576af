package propagation

import (
	"math/rand"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

func TestEncodeKnownValue(t *testing.T) {
	sc := SpanContext{
		Sample:                true,
		TraceID:               "1",
		ParentSegmentID:       "5",
		ParentSpanID:          3,
		ParentService:         "mesh",
		ParentServiceInstance: "instance",
		ParentEndpoint:        "/api/v1/health",
		TargetAddress:         "example.com:8080",
	}

	assert.Equal(t,
		"1-MQ==-NQ==-3-bWVzaA==-aW5zdGFuY2U=-L2FwaS92MS9oZWFsdGg=-ZXhhbXBsZS5jb206ODA4MA==",
		sc.Encode())
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		sc   SpanContext
	}{
		{
			name: "sampled",
			sc: SpanContext{
				Sample: true, TraceID: "trace", ParentSegmentID: "segment", ParentSpanID: 0,
				ParentService: "svc", ParentServiceInstance: "inst", ParentEndpoint: "/ping", TargetAddress: "10.0.0.1:80",
			},
		},
		{
			name: "unsampled with empty optional fields",
			sc:   SpanContext{TraceID: "t", ParentSegmentID: "s", ParentSpanID: 7},
		},
		{
			name: "separator inside values",
			sc: SpanContext{
				Sample: true, TraceID: "a-b-c", ParentSegmentID: "d-e", ParentSpanID: 2147483647,
				ParentService: "svc-name", ParentEndpoint: "GET:/a-b", TargetAddress: "host-1:9",
			},
		},
		{
			name: "negative span id",
			sc:   SpanContext{TraceID: "t", ParentSegmentID: "s", ParentSpanID: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(tt.sc.Encode())
			require.NoError(t, err)
			assert.Equal(t, tt.sc, *decoded)
		})
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randString := func(min int) string {
		b := make([]byte, min+rng.Intn(24))
		for i := range b {
			b[i] = byte(rng.Intn(256))
		}
		return string(b)
	}

	for i := 0; i < 500; i++ {
		sc := SpanContext{
			Sample:                rng.Intn(2) == 1,
			TraceID:               randString(1),
			ParentSegmentID:       randString(1),
			ParentSpanID:          rng.Int31(),
			ParentService:         randString(0),
			ParentServiceInstance: randString(0),
			ParentEndpoint:        randString(0),
			TargetAddress:         randString(0),
		}

		decoded, err := Decode(sc.Encode())
		require.NoError(t, err)
		require.Equal(t, sc, *decoded)
	}
}

func TestDecodeMalformed(t *testing.T) {
	valid := SpanContext{Sample: true, TraceID: "t", ParentSegmentID: "s", ParentSpanID: 1}.Encode()
	fields := strings.Split(valid, "-")
	replace := func(i int, v string) string {
		out := append([]string(nil), fields...)
		out[i] = v
		return strings.Join(out, "-")
	}

	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"too few fields", strings.Join(fields[:7], "-")},
		{"too many fields", valid + "-x"},
		{"bad sample flag", replace(0, "2")},
		{"bad span id", replace(3, "abc")},
		{"span id overflow", replace(3, "4294967296")},
		{"bad base64", replace(1, "!!!")},
		{"empty trace id", replace(1, "")},
		{"empty segment id", replace(2, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := Decode(tt.value)
			assert.ErrorIs(t, err, ErrMalformedHeader)
			assert.Nil(t, sc)
		})
	}
}

func TestDecodeExtension(t *testing.T) {
	tests := []struct {
		value   string
		want    TracingMode
		wantErr bool
	}{
		{value: "0", want: TracingModeDefault},
		{value: "1", want: TracingModeSkipAnalysis},
		{value: "1-1620000000000", want: TracingModeSkipAnalysis},
		{value: "-1620000000000", want: TracingModeDefault},
		{value: "", wantErr: true},
		{value: "7", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			ext, err := DecodeExtension(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedExtension)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ext.TracingMode)
		})
	}

	skip := SpanContextExtension{TracingMode: TracingModeSkipAnalysis}
	assert.Equal(t, "1", skip.Encode())
	assert.True(t, skip.SkipAnalysis())

	var none *SpanContextExtension
	assert.False(t, none.SkipAnalysis())
}

func TestCarriers(t *testing.T) {
	sc := SpanContext{Sample: true, TraceID: "t", ParentSegmentID: "s", ParentSpanID: 4, ParentEndpoint: "/x"}
	ext := &SpanContextExtension{TracingMode: TracingModeSkipAnalysis}

	t.Run("http header", func(t *testing.T) {
		h := http.Header{}
		Inject(HeaderCarrier(h), sc.Encode(), ext)

		assert.Equal(t, sc.Encode(), h.Get("Sw8"))
		gotSC, gotExt := Extract(HeaderCarrier(h))
		require.NotNil(t, gotSC)
		require.NotNil(t, gotExt)
		assert.Equal(t, sc, *gotSC)
		assert.True(t, gotExt.SkipAnalysis())
	})

	t.Run("grpc metadata", func(t *testing.T) {
		md := metadata.MD{}
		Inject(MetadataCarrier(md), sc.Encode(), nil)

		gotSC, gotExt := Extract(MetadataCarrier(md))
		require.NotNil(t, gotSC)
		assert.Equal(t, sc, *gotSC)
		assert.Nil(t, gotExt)
	})

	t.Run("malformed header yields nil", func(t *testing.T) {
		h := http.Header{}
		h.Set(Header, "garbage")

		gotSC, _ := Extract(HeaderCarrier(h))
		assert.Nil(t, gotSC)
	})

	t.Run("empty value is not injected", func(t *testing.T) {
		h := http.Header{}
		Inject(HeaderCarrier(h), "", ext)
		assert.Empty(t, h)
	})
}
