// Package store defines the persistence contract for the resonance event
// substrate.
//
// The store is the single ordering authority: it assigns timestamps and
// surrogate keys at insert time, tolerates concurrent writers from multiple
// OS processes, and serves reads while a writer is active.
package store

import (
	"context"

	"github.com/adam-kernel/resonance-go/pkg/core"
)

// QueryOptions contains the conjunctive, optional filters for Query.
type QueryOptions struct {
	// Source filters by producing daemon (empty = any).
	Source core.Source

	// Kind filters by event kind (empty = any).
	Kind core.EventKind

	// MinCharge keeps only events with affective_charge >= MinCharge.
	// Nil disables the filter; note a nil charge column never matches.
	MinCharge *float64

	// Limit caps the result size. Zero selects the default limit; values
	// above the internal cap are clamped.
	Limit int
}

// Store is the persistence layer for events, agent memories, and
// adaptations.
//
// All implementations must be safe for concurrent use from multiple
// goroutines and, for file-backed implementations, from multiple OS
// processes sharing the same backing file.
type Store interface {
	// Initialize prepares the schema and journaling mode. It is idempotent
	// and safe to call concurrently from independent processes: by the time
	// any call returns success, the schema exists and the durable concurrent
	// journaling mode has been switched on exactly once.
	Initialize(ctx context.Context) error

	// Append inserts one immutable event and returns its surrogate key.
	// The store assigns ID and Timestamp; values set by the caller on those
	// fields are ignored. Fails with core.ErrStoreUnavailable when the
	// backing file cannot be opened or locked within the bounded wait, and
	// with core.ErrSchema when invoked before successful initialization.
	Append(ctx context.Context, event *core.Event) (int64, error)

	// Query returns events matching the filters, newest first (timestamp
	// descending, ties broken by surrogate key descending).
	Query(ctx context.Context, opts *QueryOptions) ([]*core.Event, error)

	// AppendMemory inserts a new agent memory row. Every call creates a new
	// row; there is no merge on a repeated (source, kind) tuple.
	AppendMemory(ctx context.Context, source core.Source, kind core.MemoryKind, content string, memContext map[string]interface{}) (int64, error)

	// Memories returns a daemon's memories, most recently accessed first.
	// Kind is optional (empty = any).
	Memories(ctx context.Context, source core.Source, kind core.MemoryKind, limit int) ([]*core.AgentMemory, error)

	// TouchMemory increments a memory's access count and stamps its last
	// access time. This is the only in-place mutation the store performs.
	TouchMemory(ctx context.Context, id int64) error

	// RecordAdaptation inserts an immutable adaptation row.
	RecordAdaptation(ctx context.Context, a *core.Adaptation) (int64, error)

	// Adaptations returns recent adaptations, newest first.
	Adaptations(ctx context.Context, limit int) ([]*core.Adaptation, error)

	// Log writes through the legacy flat log (role, content) and mirrors the
	// entry into the event stream for new readers.
	Log(ctx context.Context, role, content string) error

	// LastCommand returns the most recent user entry from the legacy log
	// that is not a slash command, or "" when none exists.
	LastCommand(ctx context.Context) (string, error)

	// ChargesSince returns the non-null affective charges of events with
	// timestamp >= since, in ascending time order.
	ChargesSince(ctx context.Context, since float64) ([]float64, error)

	// AdaptationCountSince counts adaptations with timestamp >= since.
	AdaptationCountSince(ctx context.Context, since float64) (int, error)

	// Close releases the underlying resources.
	Close() error
}
