// ABOUTME: Request correlation id embedding a Unix timestamp in UUID form
// ABOUTME: Provides generation, parsing and context propagation helpers

package requestid

import (
	"context"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// RequestID is a 128-bit request correlation identifier rendered in UUID
// textual form. The first 8 bytes hold a big-endian Unix timestamp in
// seconds, the last 8 bytes a random value. The timestamp makes it easy to
// find the request in logs; it is not unique enough for anything
// security-relevant.
type RequestID struct {
	id uuid.UUID
}

// New creates a request id from the current wall clock and a fresh random
// value.
func New() RequestID {
	return FromTimestamp(time.Now().Unix())
}

// FromTimestamp creates a request id from the given Unix timestamp (seconds)
// and a fresh random value.
func FromTimestamp(unixSeconds int64) RequestID {
	return FromTimestampAndRandom(unixSeconds, rand.Uint64())
}

// FromTimestampAndRandom creates a fully deterministic request id. Intended
// for tests that need reproducible ids.
func FromTimestampAndRandom(unixSeconds int64, random uint64) RequestID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[0:8], uint64(unixSeconds))
	binary.BigEndian.PutUint64(id[8:16], random)
	return RequestID{id: id}
}

// FromTime creates a request id from the given time and a fresh random value.
func FromTime(t time.Time) RequestID {
	return FromTimestamp(t.Unix())
}

// Parse parses the UUID textual form produced by String.
func Parse(s string) (RequestID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID{id: id}, nil
}

// UnixTimestamp returns the Unix timestamp (seconds) embedded in the id.
func (r RequestID) UnixTimestamp() int64 {
	return int64(binary.BigEndian.Uint64(r.id[0:8]))
}

// Time returns the embedded timestamp as a UTC time.
func (r RequestID) Time() time.Time {
	return time.Unix(r.UnixTimestamp(), 0).UTC()
}

// UUID returns the id as a uuid.UUID.
func (r RequestID) UUID() uuid.UUID {
	return r.id
}

// String renders the id in standard UUID form.
func (r RequestID) String() string {
	return r.id.String()
}

// requestIDKey is the key type for storing a RequestID in context.Context.
type requestIDKey struct{}

// WithRequestID returns a new context with the request id attached.
func WithRequestID(ctx context.Context, id RequestID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// FromContext retrieves the request id from the context. The second return
// is false if none is attached.
func FromContext(ctx context.Context) (RequestID, bool) {
	id, ok := ctx.Value(requestIDKey{}).(RequestID)
	return id, ok
}
