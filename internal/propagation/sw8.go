package propagation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Header is the propagation header name
	Header = "sw8"
	// HeaderExtension carries the tracing mode
	HeaderExtension = "sw8-x"

	fieldCount = 8
	separator  = "-"
)

var (
	ErrMalformedHeader    = errors.New("malformed sw8 header")
	ErrMalformedExtension = errors.New("malformed sw8-x header")
)

// SpanContext is the decoded value of an sw8 header: the caller's position
// in the trace as seen by the callee.
type SpanContext struct {
	Sample                bool
	TraceID               string
	ParentSegmentID       string
	ParentSpanID          int32
	ParentService         string
	ParentServiceInstance string
	ParentEndpoint        string
	TargetAddress         string
}

// Encode renders the header value.
func (sc SpanContext) Encode() string {
	sample := "0"
	if sc.Sample {
		sample = "1"
	}

	fields := []string{
		sample,
		encodeField(sc.TraceID),
		encodeField(sc.ParentSegmentID),
		strconv.FormatInt(int64(sc.ParentSpanID), 10),
		encodeField(sc.ParentService),
		encodeField(sc.ParentServiceInstance),
		encodeField(sc.ParentEndpoint),
		encodeField(sc.TargetAddress),
	}
	return strings.Join(fields, separator)
}

// Decode parses an sw8 header value. Any deviation from the eight field
// layout, a bad base64 field, or a missing trace or segment ID yields an
// error wrapping ErrMalformedHeader.
func Decode(value string) (*SpanContext, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedHeader)
	}

	fields := strings.Split(value, separator)
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedHeader, fieldCount, len(fields))
	}

	var sc SpanContext
	switch fields[0] {
	case "0":
	case "1":
		sc.Sample = true
	default:
		return nil, fmt.Errorf("%w: sample flag %q", ErrMalformedHeader, fields[0])
	}

	spanID, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: span id: %v", ErrMalformedHeader, err)
	}
	sc.ParentSpanID = int32(spanID)

	targets := []*string{
		1: &sc.TraceID,
		2: &sc.ParentSegmentID,
		4: &sc.ParentService,
		5: &sc.ParentServiceInstance,
		6: &sc.ParentEndpoint,
		7: &sc.TargetAddress,
	}
	for i, dst := range targets {
		if dst == nil {
			continue
		}
		decoded, err := decodeField(fields[i])
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedHeader, i, err)
		}
		*dst = decoded
	}

	if sc.TraceID == "" || sc.ParentSegmentID == "" {
		return nil, fmt.Errorf("%w: missing trace or segment id", ErrMalformedHeader)
	}

	return &sc, nil
}

func encodeField(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decodeField(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
