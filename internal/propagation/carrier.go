package propagation

import (
	"net/http"

	"google.golang.org/grpc/metadata"
)

// Carrier is a string map that propagation headers travel in
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// HeaderCarrier adapts http.Header
type HeaderCarrier http.Header

func (c HeaderCarrier) Get(key string) string { return http.Header(c).Get(key) }
func (c HeaderCarrier) Set(key, value string) { http.Header(c).Set(key, value) }

// MetadataCarrier adapts gRPC metadata
type MetadataCarrier metadata.MD

func (c MetadataCarrier) Get(key string) string {
	values := metadata.MD(c).Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (c MetadataCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

// Extract reads both headers from c. Missing or malformed headers yield nil
// values, which callers treat as the start of a new trace.
func Extract(c Carrier) (*SpanContext, *SpanContextExtension) {
	sc, err := Decode(c.Get(Header))
	if err != nil {
		sc = nil
	}
	ext, err := DecodeExtension(c.Get(HeaderExtension))
	if err != nil {
		ext = nil
	}
	return sc, ext
}

// Inject writes an encoded sw8 value and, when non-nil, the extension.
func Inject(c Carrier, sw8 string, ext *SpanContextExtension) {
	if sw8 == "" {
		return
	}
	c.Set(Header, sw8)
	if ext != nil {
		c.Set(HeaderExtension, ext.Encode())
	}
}
