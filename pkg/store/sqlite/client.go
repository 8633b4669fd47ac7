// Package sqlite provides the SQLite implementation of the resonance store.
//
// SQLite in WAL mode gives the substrate its concurrency model: one logical
// writer at a time serialized by the storage engine's own journaling
// discipline, readers proceeding concurrently with the in-flight writer.
// Initialization across independent OS processes is coordinated through an
// exclusive flock on a zero-byte sentinel file next to the data file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/store"
)

// Query limits. Limit is mandatory at the contract level; zero selects the
// default and anything above the cap is clamped to prevent unbounded scans.
const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

var _ store.Store = (*Client)(nil)

// Client implements store.Store backed by a local SQLite file.
type Client struct {
	// db is the SQLite database connection pool.
	db *sql.DB

	// dbPath and lockPath locate the data file and its sentinel.
	dbPath   string
	lockPath string

	// busyTimeout bounds waits on the backing file under write contention.
	busyTimeout time.Duration

	logger *zap.Logger

	// initialized is the per-process fast flag. The cross-process state is
	// re-derived from the file itself (journal mode probe).
	initialized atomic.Bool

	// tsMu serializes timestamp assignment so that events logged in call
	// order within one process receive non-decreasing timestamps.
	tsMu   sync.Mutex
	lastTS float64
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// LockPath is the sentinel lock file path. Defaults to DBPath + ".lock".
	LockPath string

	// BusyTimeout bounds waits under write contention. Defaults to 10s.
	BusyTimeout time.Duration
}

// NewClient creates a new SQLite store client.
//
// The connection is opened and pinged but the schema is not touched;
// call Initialize before the first write.
//
// Parameters:
//   - cfg: Configuration containing the database path, sentinel path, and
//     busy timeout
//   - logger: Structured logger (nil falls back to a no-op logger)
//
// Returns:
//   - *Client: The SQLite store instance
//   - error: Error if the database cannot be opened
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, core.NewStoreError("NewSQLiteClient", core.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 10 * time.Second
	}
	lockPath := cfg.LockPath
	if lockPath == "" {
		lockPath = cfg.DBPath + ".lock"
	}

	if dbDir := filepath.Dir(cfg.DBPath); dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, core.NewStoreError("NewSQLiteClient", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=1",
		cfg.DBPath, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, core.NewStoreError("NewSQLiteClient", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, core.NewStoreError("NewSQLiteClient", mapSQLiteErr(err))
	}

	return &Client{
		db:          db,
		dbPath:      cfg.DBPath,
		lockPath:    lockPath,
		busyTimeout: busyTimeout,
		logger:      logger,
	}, nil
}

// Initialize prepares the schema and switches on WAL journaling, exactly
// once per data file regardless of how many processes race here.
//
// Protocol:
//  1. Fast path: if the data file exists and a journal-mode probe reports
//     WAL, return without taking any lock.
//  2. Slow path: take an exclusive flock on the sentinel file, re-check the
//     fast-path condition (double-checked locking across process
//     boundaries), then create tables/indexes and enable WAL.
//  3. If the sentinel cannot be created or locked, fall back to best-effort
//     direct initialization: the creation statements are individually
//     idempotent, so a small race window is preferable to failing outright.
func (c *Client) Initialize(ctx context.Context) error {
	if c.initialized.Load() {
		return nil
	}

	if c.walActive(ctx) {
		c.initialized.Store(true)
		return nil
	}

	lock, err := acquireSentinel(ctx, c.lockPath, c.busyTimeout)
	if err != nil {
		c.logger.Warn("sentinel lock unavailable, direct initialization fallback",
			zap.String("lock_path", c.lockPath),
			zap.Error(err))
		if err := c.createSchema(ctx); err != nil {
			return core.NewStoreError("Initialize", err)
		}
		c.initialized.Store(true)
		return nil
	}
	defer lock.release()

	if c.walActive(ctx) {
		c.initialized.Store(true)
		return nil
	}

	if err := c.createSchema(ctx); err != nil {
		return core.NewStoreError("Initialize", err)
	}
	c.initialized.Store(true)
	c.logger.Info("resonance store initialized",
		zap.String("db_path", c.dbPath))
	return nil
}

// walActive reports whether the data file exists and is already in WAL
// mode, which the protocol treats as "fully initialized by some process".
func (c *Client) walActive(ctx context.Context) bool {
	if _, err := os.Stat(c.dbPath); err != nil {
		return false
	}
	var mode string
	if err := c.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return false
	}
	return strings.EqualFold(mode, "wal")
}

// createSchema switches journaling mode and creates all tables and indexes.
// Every statement is idempotent.
func (c *Client) createSchema(ctx context.Context) error {
	var mode string
	if err := c.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return err
	}
	if !strings.EqualFold(mode, "wal") {
		if err := c.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
			return err
		}
	}
	if _, err := c.db.ExecContext(ctx, "PRAGMA synchronous=NORMAL"); err != nil {
		return err
	}

	statements := []string{
		// Main resonance table: all events flow through here.
		`CREATE TABLE IF NOT EXISTS resonance (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts REAL NOT NULL,
			daemon TEXT NOT NULL,
			event_type TEXT NOT NULL,
			content TEXT,
			affective_charge REAL,
			kernel_entropy REAL,
			metadata TEXT
		)`,
		// Agent episodic memory: persistent knowledge across sessions.
		`CREATE TABLE IF NOT EXISTS agent_memory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			daemon TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL,
			context TEXT,
			access_count INTEGER DEFAULT 0,
			last_access REAL,
			created_at REAL NOT NULL
		)`,
		// Kernel adaptation history.
		`CREATE TABLE IF NOT EXISTS kernel_adaptations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts REAL NOT NULL,
			param_name TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT NOT NULL,
			trigger_daemon TEXT,
			reason TEXT,
			success INTEGER DEFAULT 1
		)`,
		// Legacy flat log, kept for backward reads.
		`CREATE TABLE IF NOT EXISTS events (
			ts REAL,
			role TEXT,
			content TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resonance_ts ON resonance(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_resonance_daemon ON resonance(daemon)`,
		`CREATE INDEX IF NOT EXISTS idx_resonance_event_type ON resonance(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_memory_daemon ON agent_memory(daemon)`,
		`CREATE INDEX IF NOT EXISTS idx_kernel_adaptations_ts ON kernel_adaptations(ts)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// now returns the next event timestamp. Within a process, values are
// non-decreasing even when the wall clock steps backwards.
func (c *Client) now() float64 {
	c.tsMu.Lock()
	defer c.tsMu.Unlock()
	ts := float64(time.Now().UnixNano()) / 1e9
	if ts < c.lastTS {
		ts = c.lastTS
	}
	c.lastTS = ts
	return ts
}

// Append inserts one immutable event and returns its surrogate key.
//
// The store assigns the ID and timestamp; both are written back onto the
// event for the caller's convenience.
func (c *Client) Append(ctx context.Context, event *core.Event) (int64, error) {
	if !c.initialized.Load() {
		return 0, core.NewStoreError("Append", core.ErrSchema)
	}

	metadataJSON, err := encodeBlob(event.Metadata)
	if err != nil {
		return 0, core.NewStoreError("Append", err)
	}

	ts := c.now()
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO resonance (ts, daemon, event_type, content, affective_charge, kernel_entropy, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ts, string(event.Source), string(event.Kind), event.Content,
		nullFloat(event.AffectiveCharge), nullFloat(event.Entropy), metadataJSON)
	if err != nil {
		return 0, core.NewStoreError("Append", mapSQLiteErr(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, core.NewStoreError("Append", err)
	}
	event.ID = id
	event.Timestamp = ts
	return id, nil
}

// Query returns events matching the conjunctive filters, newest first
// (timestamp descending, ties broken by surrogate key descending).
func (c *Client) Query(ctx context.Context, opts *store.QueryOptions) ([]*core.Event, error) {
	if opts == nil {
		opts = &store.QueryOptions{}
	}

	where := []string{"1=1"}
	args := []interface{}{}
	if opts.Source != "" {
		where = append(where, "daemon = ?")
		args = append(args, string(opts.Source))
	}
	if opts.Kind != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(opts.Kind))
	}
	if opts.MinCharge != nil {
		where = append(where, "affective_charge >= ?")
		args = append(args, *opts.MinCharge)
	}
	args = append(args, clampLimit(opts.Limit))

	query := fmt.Sprintf(`
		SELECT id, ts, daemon, event_type, content, affective_charge, kernel_entropy, metadata
		FROM resonance
		WHERE %s
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, strings.Join(where, " AND "))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewStoreError("Query", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var events []*core.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, core.NewStoreError("Query", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("Query", err)
	}
	return events, nil
}

// AppendMemory inserts a new agent memory row.
//
// Despite the historical "upsert" name upstream, every call creates a new
// row; repeated key tuples are deliberate append-only inserts, never merges.
func (c *Client) AppendMemory(ctx context.Context, source core.Source, kind core.MemoryKind, content string, memContext map[string]interface{}) (int64, error) {
	if !c.initialized.Load() {
		return 0, core.NewStoreError("AppendMemory", core.ErrSchema)
	}

	contextJSON, err := encodeBlob(memContext)
	if err != nil {
		return 0, core.NewStoreError("AppendMemory", err)
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO agent_memory (daemon, memory_type, content, context, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(source), string(kind), content, contextJSON, c.now())
	if err != nil {
		return 0, core.NewStoreError("AppendMemory", mapSQLiteErr(err))
	}
	return res.LastInsertId()
}

// Memories returns a daemon's memories, most recently accessed first.
func (c *Client) Memories(ctx context.Context, source core.Source, kind core.MemoryKind, limit int) ([]*core.AgentMemory, error) {
	where := "daemon = ?"
	args := []interface{}{string(source)}
	if kind != "" {
		where += " AND memory_type = ?"
		args = append(args, string(kind))
	}
	args = append(args, clampLimit(limit))

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, daemon, memory_type, content, context, access_count, last_access, created_at
		FROM agent_memory
		WHERE %s
		ORDER BY last_access DESC, created_at DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, core.NewStoreError("Memories", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var memories []*core.AgentMemory
	for rows.Next() {
		var (
			m          core.AgentMemory
			daemon     string
			memType    string
			contextStr sql.NullString
			lastAccess sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &daemon, &memType, &m.Content, &contextStr, &m.AccessCount, &lastAccess, &m.CreatedAt); err != nil {
			return nil, core.NewStoreError("Memories", err)
		}
		m.Source = core.Source(daemon)
		m.Kind = core.MemoryKind(memType)
		if contextStr.Valid && contextStr.String != "" {
			if err := json.Unmarshal([]byte(contextStr.String), &m.Context); err != nil {
				return nil, core.NewStoreError("Memories", err)
			}
		}
		if lastAccess.Valid {
			m.LastAccess = &lastAccess.Float64
		}
		memories = append(memories, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("Memories", err)
	}
	return memories, nil
}

// TouchMemory increments access_count and stamps last_access. This is the
// only in-place mutation in the store.
func (c *Client) TouchMemory(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE agent_memory
		SET access_count = access_count + 1, last_access = ?
		WHERE id = ?
	`, c.now(), id)
	if err != nil {
		return core.NewStoreError("TouchMemory", mapSQLiteErr(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.NewStoreError("TouchMemory", err)
	}
	if affected == 0 {
		return core.NewStoreError("TouchMemory", core.ErrNotFound)
	}
	return nil
}

// RecordAdaptation inserts an immutable adaptation row.
func (c *Client) RecordAdaptation(ctx context.Context, a *core.Adaptation) (int64, error) {
	if !c.initialized.Load() {
		return 0, core.NewStoreError("RecordAdaptation", core.ErrSchema)
	}

	success := 0
	if a.Success {
		success = 1
	}
	ts := c.now()
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO kernel_adaptations (ts, param_name, old_value, new_value, trigger_daemon, reason, success)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ts, a.Parameter, a.OldValue, a.NewValue, string(a.TriggerSource), a.Reason, success)
	if err != nil {
		return 0, core.NewStoreError("RecordAdaptation", mapSQLiteErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, core.NewStoreError("RecordAdaptation", err)
	}
	a.ID = id
	a.Timestamp = ts
	return id, nil
}

// Adaptations returns recent adaptations, newest first.
func (c *Client) Adaptations(ctx context.Context, limit int) ([]*core.Adaptation, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, ts, param_name, old_value, new_value, trigger_daemon, reason, success
		FROM kernel_adaptations
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, core.NewStoreError("Adaptations", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var adaptations []*core.Adaptation
	for rows.Next() {
		var (
			a        core.Adaptation
			oldValue sql.NullString
			trigger  sql.NullString
			reason   sql.NullString
			success  int
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Parameter, &oldValue, &a.NewValue, &trigger, &reason, &success); err != nil {
			return nil, core.NewStoreError("Adaptations", err)
		}
		a.OldValue = oldValue.String
		a.TriggerSource = core.Source(trigger.String)
		a.Reason = reason.String
		a.Success = success != 0
		adaptations = append(adaptations, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("Adaptations", err)
	}
	return adaptations, nil
}

// Log writes through the legacy flat log and mirrors the entry into the
// resonance stream. Roles containing "_user" become observations; all other
// roles are recorded as reflections, matching the historical readers.
func (c *Client) Log(ctx context.Context, role, content string) error {
	if !c.initialized.Load() {
		return core.NewStoreError("Log", core.ErrSchema)
	}

	ts := c.now()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStoreError("Log", mapSQLiteErr(err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO events (ts, role, content) VALUES (?, ?, ?)",
		ts, role, content); err != nil {
		return core.NewStoreError("Log", mapSQLiteErr(err))
	}

	kind := core.KindReflection
	if strings.Contains(role, "_user") || role == "user" {
		kind = core.KindObservation
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resonance (ts, daemon, event_type, content, affective_charge, kernel_entropy, metadata)
		VALUES (?, ?, ?, ?, NULL, NULL, NULL)
	`, ts, string(roleToSource(role)), string(kind), content); err != nil {
		return core.NewStoreError("Log", mapSQLiteErr(err))
	}

	if err := tx.Commit(); err != nil {
		return core.NewStoreError("Log", mapSQLiteErr(err))
	}
	return nil
}

// LastCommand returns the most recent user entry from the legacy log that
// is not a slash command.
func (c *Client) LastCommand(ctx context.Context) (string, error) {
	var content string
	err := c.db.QueryRowContext(ctx, `
		SELECT content FROM events
		WHERE role = 'user' AND content NOT LIKE '/%'
		ORDER BY ts DESC LIMIT 1
	`).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", core.NewStoreError("LastCommand", mapSQLiteErr(err))
	}
	return content, nil
}

// ChargesSince returns non-null affective charges since the given epoch
// timestamp, in ascending time order.
func (c *Client) ChargesSince(ctx context.Context, since float64) ([]float64, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT affective_charge
		FROM resonance
		WHERE ts >= ? AND affective_charge IS NOT NULL
		ORDER BY ts, id
	`, since)
	if err != nil {
		return nil, core.NewStoreError("ChargesSince", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var charges []float64
	for rows.Next() {
		var charge float64
		if err := rows.Scan(&charge); err != nil {
			return nil, core.NewStoreError("ChargesSince", err)
		}
		charges = append(charges, charge)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("ChargesSince", err)
	}
	return charges, nil
}

// AdaptationCountSince counts adaptations since the given epoch timestamp.
func (c *Client) AdaptationCountSince(ctx context.Context, since float64) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM kernel_adaptations WHERE ts >= ?", since).Scan(&count)
	if err != nil {
		return 0, core.NewStoreError("AdaptationCountSince", mapSQLiteErr(err))
	}
	return count, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// scanEvent scans an event row.
func scanEvent(rows *sql.Rows) (*core.Event, error) {
	var (
		event    core.Event
		source   string
		kind     string
		content  sql.NullString
		charge   sql.NullFloat64
		entropy  sql.NullFloat64
		metadata sql.NullString
	)
	if err := rows.Scan(&event.ID, &event.Timestamp, &source, &kind, &content, &charge, &entropy, &metadata); err != nil {
		return nil, err
	}
	event.Source = core.Source(source)
	event.Kind = core.EventKind(kind)
	event.Content = content.String
	if charge.Valid {
		event.AffectiveCharge = &charge.Float64
	}
	if entropy.Valid {
		event.Entropy = &entropy.Float64
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &event, nil
}

// encodeBlob serializes an opaque metadata/context map, returning a SQL NULL
// for empty maps.
func encodeBlob(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// nullFloat converts an optional float into a SQL-nullable value.
func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// clampLimit applies the default and cap to a caller-supplied limit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// roleToSource maps a legacy role string to a daemon source.
func roleToSource(role string) core.Source {
	lower := strings.ToLower(role)
	switch {
	case strings.Contains(lower, "kain"):
		return core.SourceKain
	case strings.Contains(lower, "abel"):
		return core.SourceAbel
	case strings.Contains(lower, "eve"):
		return core.SourceEve
	case strings.Contains(lower, "field"):
		return core.SourceField
	case strings.Contains(lower, "user"):
		return core.SourceUser
	default:
		return core.Source(role)
	}
}

// mapSQLiteErr folds driver errors into the store taxonomy: lock and busy
// conditions become ErrStoreUnavailable, missing tables become ErrSchema.
func mapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrProtocol:
			return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %v", core.ErrSchema, err)
		}
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", core.ErrSchema, err)
	}
	return err
}
