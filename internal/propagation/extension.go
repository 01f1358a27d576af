package propagation

import (
	"fmt"
	"strings"
)

// TracingMode selects how the collector treats a propagated trace
type TracingMode int

const (
	TracingModeDefault TracingMode = iota
	TracingModeSkipAnalysis
)

// String returns the string representation of the mode
func (m TracingMode) String() string {
	switch m {
	case TracingModeDefault:
		return "default"
	case TracingModeSkipAnalysis:
		return "skip-analysis"
	default:
		return "unknown"
	}
}

// SpanContextExtension is the decoded value of an sw8-x header.
type SpanContextExtension struct {
	TracingMode TracingMode
}

// SkipAnalysis reports whether spans of this trace must not be analyzed.
func (e *SpanContextExtension) SkipAnalysis() bool {
	return e != nil && e.TracingMode == TracingModeSkipAnalysis
}

// Encode renders the header value.
func (e SpanContextExtension) Encode() string {
	if e.TracingMode == TracingModeSkipAnalysis {
		return "1"
	}
	return "0"
}

// DecodeExtension parses an sw8-x header value. Only the first field is
// interpreted; later fields are reserved by the protocol and ignored.
func DecodeExtension(value string) (*SpanContextExtension, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedExtension)
	}

	mode, _, _ := strings.Cut(value, separator)
	switch mode {
	case "", "0":
		return &SpanContextExtension{TracingMode: TracingModeDefault}, nil
	case "1":
		return &SpanContextExtension{TracingMode: TracingModeSkipAnalysis}, nil
	default:
		return nil, fmt.Errorf("%w: tracing mode %q", ErrMalformedExtension, mode)
	}
}
