// Package sqlite provides a DevTools sink that journals every committed
// action, together with the state it produced, to a SQLite database.
//
// The journal is an audit trail. Containers never read it back on their own;
// use Read, ReadStream or StateAt to inspect history.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jilio/statebus"
	_ "modernc.org/sqlite"
)

// Journal implements statebus.DevTools using SQLite.
type Journal struct {
	db          *sql.DB
	cfg         *config
	logger      Logger
	metricsHook MetricsHook

	// Prepared statements
	appendStmt   *sql.Stmt
	readStmt     *sql.Stmt
	readFromStmt *sql.Stmt
	positionStmt *sql.Stmt
	stateAtStmt  *sql.Stmt
}

var _ statebus.DevTools = (*Journal)(nil)

// ErrNotFound is returned by StateAt for a position with no entry.
var ErrNotFound = errors.New("sqlite: entry not found")

// dbOpener is used to open database connections, injectable for testing
var dbOpener = sql.Open

// New opens or creates a journal at path. ":memory:" creates a private
// in-memory database that lives until Close.
//
// Note: When WithAutoMigrate is enabled (the default), migrations run with
// context.Background() and are not cancellable.
func New(path string, opts ...Option) (*Journal, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}

	// Validate path to prevent URI parameter injection
	if path != ":memory:" && (strings.Contains(path, "?") || strings.Contains(path, "#")) {
		return nil, errors.New("sqlite: path cannot contain '?' or '#' characters")
	}

	cfg := defaultConfig()
	cfg.path = path
	for _, opt := range opts {
		opt(cfg)
	}

	var dsn string
	if cfg.path == ":memory:" {
		// Shared cache lets the pool's connections see one database; the
		// random name keeps journals in the same process apart.
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		// busy_timeout goes in the DSN so every pooled connection gets it.
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", cfg.path, cfg.busyTimeout.Milliseconds())
	}

	db, err := dbOpener("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	if cfg.path == ":memory:" {
		// The database is dropped once its last connection closes.
		db.SetMaxOpenConns(1)
	}

	if err := applyPragmas(db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply pragmas: %w", err)
	}

	if cfg.autoMigrate {
		if err := migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	return newFromDB(db, cfg)
}

func newFromDB(db *sql.DB, cfg *config) (*Journal, error) {
	j := &Journal{
		db:          db,
		cfg:         cfg,
		logger:      cfg.logger,
		metricsHook: cfg.metricsHook,
	}

	if err := j.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: prepare statements: %w", err)
	}

	return j, nil
}

func applyPragmas(db *sql.DB, cfg *config) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout.Milliseconds()),
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	return nil
}

func (j *Journal) prepareStatements() error {
	type stmtDef struct {
		dest **sql.Stmt
		sql  string
	}

	stmts := []stmtDef{
		{&j.appendStmt, "INSERT INTO actions (type, payload, state, timestamp) VALUES (?, ?, ?, ?)"},
		{&j.readStmt, "SELECT position, type, payload, state, timestamp FROM actions WHERE position > ? ORDER BY position LIMIT ?"},
		{&j.readFromStmt, "SELECT position, type, payload, state, timestamp FROM actions WHERE position > ? ORDER BY position"},
		{&j.positionStmt, "SELECT COALESCE(MAX(position), 0) FROM actions"},
		{&j.stateAtStmt, "SELECT state FROM actions WHERE position = ?"},
	}

	for _, def := range stmts {
		stmt, err := j.db.Prepare(def.sql)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		*def.dest = stmt
	}

	return nil
}

// Send implements statebus.DevTools.
func (j *Journal) Send(action statebus.Action, state map[string]any) error {
	ctx := context.Background()
	if j.cfg.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.sendTimeout)
		defer cancel()
	}
	_, err := j.Append(ctx, action, state)
	return err
}

// Append stores one commit and returns its position.
func (j *Journal) Append(ctx context.Context, action statebus.Action, state map[string]any) (int64, error) {
	start := time.Now()

	position, err := j.append(ctx, action, state)
	if j.metricsHook != nil {
		j.metricsHook.OnAppend(time.Since(start), err)
	}
	if err != nil {
		if j.logger != nil {
			j.logger.Error("append failed", "type", action.Type, "error", err)
		}
		return 0, err
	}

	if j.logger != nil {
		j.logger.Debug("appended action", "position", position, "type", action.Type)
	}
	return position, nil
}

func (j *Journal) append(ctx context.Context, action statebus.Action, state map[string]any) (int64, error) {
	var payload []byte
	if action.Payload != nil {
		var err error
		if payload, err = json.Marshal(action.Payload); err != nil {
			return 0, fmt.Errorf("sqlite: marshal payload: %w", err)
		}
	}
	if state == nil {
		state = map[string]any{}
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marshal state: %w", err)
	}

	result, err := j.appendStmt.ExecContext(ctx, action.Type, payload, stateJSON, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: append action: %w", err)
	}

	// LastInsertId is always supported by SQLite driver
	position, _ := result.LastInsertId()
	return position, nil
}

// rowScanner abstracts sql.Rows for testing
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Read returns up to limit entries after position from. A limit of zero or
// less returns every remaining entry. Decoded JSON numbers are float64.
func (j *Journal) Read(ctx context.Context, from int64, limit int) ([]*statebus.Entry, error) {
	start := time.Now()
	var entries []*statebus.Entry
	var err error

	defer func() {
		if j.metricsHook != nil {
			j.metricsHook.OnRead(time.Since(start), len(entries), err)
		}
	}()

	var rows *sql.Rows
	if limit <= 0 {
		rows, err = j.readFromStmt.QueryContext(ctx, from)
	} else {
		rows, err = j.readStmt.QueryContext(ctx, from, limit)
	}
	if err != nil {
		err = fmt.Errorf("sqlite: read actions: %w", err)
		return nil, err
	}

	entries, err = scanEntries(rows)
	if err != nil {
		return nil, err
	}

	if j.logger != nil {
		j.logger.Debug("read actions", "from", from, "limit", limit, "count", len(entries))
	}
	return entries, nil
}

func scanEntries(rows rowScanner) ([]*statebus.Entry, error) {
	defer rows.Close()

	var entries []*statebus.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate actions: %w", err)
	}
	return entries, nil
}

func scanEntry(rows rowScanner) (*statebus.Entry, error) {
	var (
		entry     statebus.Entry
		payload   []byte
		stateJSON []byte
	)
	if err := rows.Scan(&entry.Position, &entry.Action.Type, &payload, &stateJSON, &entry.Timestamp); err != nil {
		return nil, fmt.Errorf("sqlite: scan action: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &entry.Action.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: decode payload at %d: %w", entry.Position, err)
		}
	}
	if err := json.Unmarshal(stateJSON, &entry.State); err != nil {
		return nil, fmt.Errorf("sqlite: decode state at %d: %w", entry.Position, err)
	}
	return &entry, nil
}

// ReadStream yields entries after position from, keeping one row in memory
// at a time. Rows are released when iteration ends, the consumer breaks out
// of the loop or ctx is cancelled.
func (j *Journal) ReadStream(ctx context.Context, from int64) iter.Seq2[*statebus.Entry, error] {
	return func(yield func(*statebus.Entry, error) bool) {
		start := time.Now()
		var count int
		var iterErr error

		defer func() {
			if j.metricsHook != nil {
				j.metricsHook.OnRead(time.Since(start), count, iterErr)
			}
		}()

		rows, err := j.readFromStmt.QueryContext(ctx, from)
		if err != nil {
			iterErr = fmt.Errorf("sqlite: read stream: %w", err)
			yield(nil, iterErr)
			return
		}
		defer rows.Close()

		for rows.Next() {
			if err := ctx.Err(); err != nil {
				iterErr = err
				yield(nil, iterErr)
				return
			}
			entry, err := scanEntry(rows)
			if err != nil {
				iterErr = err
				yield(nil, iterErr)
				return
			}
			count++
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			iterErr = fmt.Errorf("sqlite: iterate actions: %w", err)
			yield(nil, iterErr)
		}
	}
}

// Position returns the position of the latest entry, 0 when empty.
func (j *Journal) Position(ctx context.Context) (int64, error) {
	var position int64
	if err := j.positionStmt.QueryRowContext(ctx).Scan(&position); err != nil {
		return 0, fmt.Errorf("sqlite: get position: %w", err)
	}
	return position, nil
}

// StateAt returns the state recorded at position, for restoring a container
// with Set.
func (j *Journal) StateAt(ctx context.Context, position int64) (map[string]any, error) {
	var stateJSON []byte
	err := j.stateAtStmt.QueryRowContext(ctx, position).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: position %d", ErrNotFound, position)
		}
		return nil, fmt.Errorf("sqlite: state at %d: %w", position, err)
	}

	var state map[string]any
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, fmt.Errorf("sqlite: decode state at %d: %w", position, err)
	}
	return state, nil
}

// Close closes the database connection and releases resources.
func (j *Journal) Close() error {
	stmts := []*sql.Stmt{
		j.appendStmt,
		j.readStmt,
		j.readFromStmt,
		j.positionStmt,
		j.stateAtStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}

	if j.logger != nil {
		j.logger.Info("closing sqlite journal")
	}

	return j.db.Close()
}
