// Package idgen generates the identifiers of profiled requests.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// Generator can generate IDs.
type Generator interface {
	// Generate returns a new ID. Generate is safe for concurrent use.
	Generate() string
}

// The kinds of generators that New understands.
const (
	KindSequential = "sequential"
	KindXID        = "xid"
	KindUUID       = "uuid"
)

// New returns the generator of the given kind. An empty kind selects the
// sequential generator.
func New(kind string) (Generator, error) {
	switch kind {
	case "", KindSequential:
		return NewSequential(), nil
	case KindXID:
		return NewXID(), nil
	case KindUUID:
		return NewUUID(), nil
	default:
		return nil, fmt.Errorf("unknown id generator %q", kind)
	}
}

// NewSequential returns a generator whose first ID is "1". IDs restart with
// every process, so they only suit stores that do not outlive it.
func NewSequential() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	nextID uint64
}

func (g *sequentialGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	return strconv.FormatUint(idNumber, 10)
}

// NewXID returns a generator of globally unique, time-sortable IDs.
func NewXID() Generator {
	return xidGenerator{}
}

type xidGenerator struct{}

func (xidGenerator) Generate() string {
	return xid.New().String()
}

// NewUUID returns a generator of random version 4 UUIDs.
func NewUUID() Generator {
	return uuidGenerator{}
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}
