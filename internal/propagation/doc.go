/*
Package propagation encodes and decodes the SkyWalking cross-process headers.

# Headers

	sw8    sample-traceId-segmentId-spanId-service-instance-endpoint-target
	sw8-x  tracing mode (0 default, 1 skip analysis)

Every string field of sw8 is standard base64. The sample flag is 0 or 1 and
the span ID is decimal, so the eight fields never contain the separator.

# Usage

	sc, err := propagation.Decode(r.Header.Get(propagation.Header))
	if errors.Is(err, propagation.ErrMalformedHeader) {
		// start a new trace
	}
	out.Header.Set(propagation.Header, sc.Encode())

Carriers adapt HTTP headers and gRPC metadata to the same Get/Set shape.
*/
package propagation
