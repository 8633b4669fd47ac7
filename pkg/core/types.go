// Package core provides the main Resonance client and shared types for the
// event substrate.
package core

// Source identifies the agent or process that produced a record.
//
// It is an open string wrapper, not a closed enum: producers outside this
// module may introduce new sources, and the store accepts any value.
// Documented producers use the constants below.
type Source string

const (
	// SourceKain is the first mirror daemon (surface pattern reflection).
	SourceKain Source = "kain"

	// SourceAbel is the deep mirror daemon (recursive reasoning reflection).
	SourceAbel Source = "abel"

	// SourceEve is the routing voice between the mirrors.
	SourceEve Source = "eve"

	// SourceField is the adaptive resonance layer.
	SourceField Source = "field"

	// SourceRepoMonitor is the self-awareness polling engine.
	SourceRepoMonitor Source = "repo_monitor"

	// SourceUser marks records originating from direct user input.
	SourceUser Source = "user"
)

// EventKind classifies an event in the resonance stream.
//
// Like Source, it is open at the storage layer: the store persists any
// string. Known kinds are validated only at the consuming edge.
type EventKind string

const (
	// KindObservation is raw observed input (commands, speech, state).
	KindObservation EventKind = "observation"

	// KindReflection is validated persona output.
	KindReflection EventKind = "reflection"

	// KindSyscall records a system call made on behalf of a daemon.
	KindSyscall EventKind = "syscall"

	// KindKernelState is a sampled kernel/system metrics snapshot.
	KindKernelState EventKind = "kernel_state"

	// KindFileChange records a filesystem change seen by a watcher.
	KindFileChange EventKind = "file_change"

	// KindAffectiveCharge is a standalone derived affect signal.
	KindAffectiveCharge EventKind = "affective_charge"

	// KindDiagnostic records a validation failure or degradation so that
	// persona drift stays observable in the stream.
	KindDiagnostic EventKind = "diagnostic"
)

// MemoryKind classifies a long-lived agent memory.
type MemoryKind string

const (
	MemoryPattern  MemoryKind = "pattern"
	MemoryInsight  MemoryKind = "insight"
	MemoryLoop     MemoryKind = "loop"
	MemoryTrauma   MemoryKind = "trauma"
	MemoryMetaphor MemoryKind = "metaphor"
)

// Event is one immutable record in the resonance stream.
//
// ID and Timestamp are assigned by the store at insert time; callers never
// set them. Events are never updated or deleted once written.
type Event struct {
	// ID is the monotonically increasing surrogate key assigned by the store.
	ID int64 `json:"id"`

	// Timestamp is seconds since epoch, assigned at insert time by the store.
	Timestamp float64 `json:"ts"`

	// Source identifies the producing agent or process.
	Source Source `json:"source"`

	// Kind classifies the event.
	Kind EventKind `json:"event_kind"`

	// Content is the text payload. Unbounded length.
	Content string `json:"content"`

	// AffectiveCharge is an optional signal in [-1.0, 1.0].
	// Negative means stress/instability, positive means calm/stability.
	// Nil (not zero) when not computed for this event.
	AffectiveCharge *float64 `json:"affective_charge,omitempty"`

	// Entropy is an optional system-randomness proxy whose semantics are
	// owned by the producer.
	Entropy *float64 `json:"entropy,omitempty"`

	// Metadata is an optional structured side channel. The store serializes
	// it as an opaque JSON blob and never interprets it.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AgentMemory is a mutable long-lived fact, distinct from the immutable
// event stream. Rows are append-only; only the access bookkeeping fields
// (AccessCount, LastAccess) mutate in place, on read.
type AgentMemory struct {
	// ID is the surrogate key assigned by the store.
	ID int64 `json:"id"`

	// Source is the owning daemon.
	Source Source `json:"source"`

	// Kind classifies the memory (pattern, insight, loop, trauma, metaphor).
	Kind MemoryKind `json:"memory_type"`

	// Content is the memory text.
	Content string `json:"content"`

	// Context records when/where the memory emerged (opaque JSON blob).
	Context map[string]interface{} `json:"context,omitempty"`

	// AccessCount is incremented each time the memory is touched.
	AccessCount int64 `json:"access_count"`

	// LastAccess is the epoch-seconds timestamp of the last touch.
	// Nil if the memory has never been read back.
	LastAccess *float64 `json:"last_access,omitempty"`

	// CreatedAt is the epoch-seconds creation timestamp.
	CreatedAt float64 `json:"created_at"`
}

// Adaptation records an external parameter change, such as a kernel tunable
// adjusted by the field layer. Immutable once written.
type Adaptation struct {
	// ID is the surrogate key assigned by the store.
	ID int64 `json:"id"`

	// Timestamp is epoch seconds, assigned by the store.
	Timestamp float64 `json:"ts"`

	// Parameter is the tunable name, e.g. "vm.swappiness".
	Parameter string `json:"parameter"`

	// OldValue is the previous value, if known.
	OldValue string `json:"old_value"`

	// NewValue is the value that was applied.
	NewValue string `json:"new_value"`

	// TriggerSource is the daemon that triggered the change.
	TriggerSource Source `json:"trigger_source"`

	// Reason documents why the change was made.
	Reason string `json:"reason"`

	// Success reports whether the change was applied.
	Success bool `json:"success"`
}

// SystemMetrics is the ambient numeric context supplied by a metrics
// collaborator. The core consumes these as plain numbers and never collects
// them itself; the sampler in pkg/field is one such collaborator.
type SystemMetrics struct {
	// LoadAvg1 is the one-minute load average.
	LoadAvg1 float64 `json:"load_avg_1"`

	// CPUCount is the number of logical CPUs.
	CPUCount int `json:"cpu_count"`

	// MemTotalKB and MemFreeKB describe memory pressure.
	MemTotalKB int64 `json:"mem_total_kb"`
	MemFreeKB  int64 `json:"mem_free_kb"`

	// EntropyAvail is the kernel entropy pool estimate, or 0 if unknown.
	EntropyAvail int64 `json:"entropy_avail"`

	// UptimeSec is system uptime in seconds.
	UptimeSec int64 `json:"uptime_sec"`
}

// Float64 returns a pointer to v. Convenience for the optional Event fields.
func Float64(v float64) *float64 { return &v }
