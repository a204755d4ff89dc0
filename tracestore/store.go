// Package tracestore keeps the finished traces of profiled requests so that
// they can be fetched by request ID after the request has completed.
package tracestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sarchlab/miniprof/profiling"
)

// ErrNotFound is returned by Get when no record lives under the key. Expired
// records are not found either.
var ErrNotFound = errors.New("tracestore: record not found")

// KeyPrefix is prepended to request IDs to form store keys.
const KeyPrefix = "trace_request_"

// Key returns the store key of the record of a request.
func Key(requestID string) string {
	return KeyPrefix + requestID
}

// A Record is the finished trace of one request along with the request
// metadata. A Record is not modified after it is handed to a store.
type Record struct {
	RequestID string          `json:"request_id"`
	URL       string          `json:"url"`
	Timestamp time.Time       `json:"timestamp"`
	Root      *profiling.Node `json:"root"`
}

// A Store persists records under string keys. Implementations are safe for
// concurrent use.
type Store interface {
	// Put stores the record under the key, replacing what was there.
	Put(ctx context.Context, key string, rec *Record) error

	// Get returns the record stored under the key. It returns ErrNotFound if
	// there is none.
	Get(ctx context.Context, key string) (*Record, error)

	// Close releases the resources held by the store.
	Close() error
}

func encodeRecord(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("tracestore: nil record")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.RequestID, err)
	}

	return data, nil
}

func decodeRecord(data []byte) (*Record, error) {
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	return rec, nil
}
