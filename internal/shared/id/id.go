// Package id generates the identifiers carried by trace segments.
//
// Trace IDs are random UUIDs rendered without dashes, which is the form the
// SkyWalking collector expects in sw8 headers. Segment IDs are ULIDs so that
// segments of one process sort by creation time in logs and storage.
package id

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TraceID identifies a distributed trace across processes
type TraceID string

// SegmentID identifies one segment within a trace
type SegmentID string

func (id TraceID) String() string   { return string(id) }
func (id SegmentID) String() string { return string(id) }

// Generator produces monotonic ULIDs
type Generator struct {
	entropyMu sync.Mutex
	entropy   io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
// Entropy is monotonic so IDs minted within the same millisecond still sort.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// NewTraceID returns a fresh 32 character hex trace ID.
func NewTraceID() TraceID {
	return TraceID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NewSegmentID returns a fresh segment ID from the default generator.
func NewSegmentID() SegmentID {
	return SegmentID(Default().GenerateString())
}

// IsValidSegmentID reports whether s parses as a ULID.
func IsValidSegmentID(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// SegmentTime extracts the creation time embedded in a segment ID.
func SegmentTime(s string) (time.Time, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
