package tracing

import "github.com/rs/xid"

// IDGenerator produces correlation IDs for trace records.
type IDGenerator interface {
	Generate() string
}

// ParallelIDGenerator generates non-deterministic, globally unique IDs
// using xid.
type ParallelIDGenerator struct{}

// Generate returns a new xid-based correlation ID.
func (ParallelIDGenerator) Generate() string {
	return xid.New().String()
}
