package jsonrpc2

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator returns a fresh correlation id on every call. Ids only need to
// be unique among the calls outstanding on one endpoint.
type IDGenerator func() string

// UUIDs generates random UUIDv4 strings. It is the default IDGenerator.
func UUIDs() string {
	return uuid.NewString()
}

// Counter is a sequential IDGenerator, useful for deterministic ids in logs
// and tests.
type Counter struct {
	id int64
}

// NextID returns the next number in the sequence, starting at 1.
func (c *Counter) NextID() string {
	return strconv.FormatInt(atomic.AddInt64(&c.id, 1), 10)
}
