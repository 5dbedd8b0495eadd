package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "supportchat/pkg/database"
	"supportchat/pkg/interfaces"
	"supportchat/pkg/types"
)

// Ledger errors
var (
	ErrManagerClosed = errors.New("ledger manager is closed")
	ErrWriteTimeout  = errors.New("ledger write timed out")
)

// Manager implements interfaces.SessionLedger on SQLite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	retryDelay   time.Duration
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

var _ interfaces.SessionLedger = (*Manager)(nil)

// writeOperation represents a database write operation; result is nil for
// fire-and-forget writes
type writeOperation struct {
	name      string
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the ledger database, applies migrations from fsys and
// starts the writer goroutine
func NewManager(config *dbconfig.Config, fsys fs.FS) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	// ARCHITECTURAL DISCOVERY: SQLite connection string carries busy timeout and WAL
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrator := dbconfig.NewMigrationManager(db, fsys)
	if err := migrator.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := migrator.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, config.WriteBuffer), // TECHNICAL: Buffer for write operations prevents blocking
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	log.Printf("Session ledger opened path=%s", config.DatabasePath)
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			m.apply(op)

		case <-m.shutdown:
			// FUNCTIONAL DISCOVERY: Drain what was queued before Close so the
			// shutdown sweep's end records reach disk
			for {
				select {
				case op := <-m.writeChannel:
					m.apply(op)
				default:
					log.Println("Database write loop shutting down")
					return
				}
			}
		}
	}
}

// apply runs one write, retrying exactly once after retryDelay
func (m *Manager) apply(op writeOperation) {
	err := op.operation(m.db)
	if err != nil {
		log.Printf("Ledger write %s failed, retrying in %v: %v", op.name, m.retryDelay, err)
		time.Sleep(m.retryDelay)
		err = op.operation(m.db)
		if err != nil {
			log.Printf("Ledger write %s failed after retry: %v", op.name, err)
		}
	}
	if op.result != nil {
		op.result <- err
	}
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// enqueue hands a fire-and-forget write to the writer without blocking
// TECHNICAL DISCOVERY: The hub loop calls this; a full queue drops the write
// rather than stalling matching
func (m *Manager) enqueue(name string, operation func(*sql.DB) error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		log.Printf("Ledger closed, dropping %s", name)
		return
	}

	select {
	case m.writeChannel <- writeOperation{name: name, operation: operation}:
	default:
		log.Printf("Ledger write queue full, dropping %s", name)
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, name string, operation func(*sql.DB) error) error {
	if m.isClosed() {
		return ErrManagerClosed
	}

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{name: name, operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.config.WriteTimeout):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordSessionStarted queues the insert of a new pairing row
func (m *Manager) RecordSessionStarted(record types.SessionRecord) {
	m.enqueue("session-started", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO session_ledger
				(id, room_id, expert_conn, expert_identity, user_conn, user_identity, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			record.ID,
			record.RoomID,
			record.ExpertConnID,
			record.ExpertIdentity,
			record.UserConnID,
			record.UserIdentity,
			record.StartedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert ledger row: %w", err)
		}
		return nil
	})
}

// RecordSessionEnded queues the close of a pairing row
// FUNCTIONAL DISCOVERY: Only open rows are updated so a late duplicate end
// never overwrites the first reason
func (m *Manager) RecordSessionEnded(id string, reason string, endedAt time.Time) {
	m.enqueue("session-ended", func(db *sql.DB) error {
		_, err := db.Exec(`
			UPDATE session_ledger
			SET ended_at = ?, end_reason = ?
			WHERE id = ? AND ended_at IS NULL
		`, endedAt.UTC(), reason, id)
		if err != nil {
			return fmt.Errorf("failed to end ledger row: %w", err)
		}
		return nil
	})
}

// EndOpenSessions closes every row left open, e.g. by a crash before shutdown
func (m *Manager) EndOpenSessions(ctx context.Context, reason string, endedAt time.Time) (int64, error) {
	var affected int64
	err := m.executeWrite(ctx, "end-open-sessions", func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE session_ledger
			SET ended_at = ?, end_reason = ?
			WHERE ended_at IS NULL
		`, endedAt.UTC(), reason)
		if err != nil {
			return fmt.Errorf("failed to end open ledger rows: %w", err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// ListSessions returns the most recent pairings, newest first
// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
func (m *Manager) ListSessions(ctx context.Context, roomID string, limit int) ([]types.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, room_id, expert_conn, expert_identity, user_conn, user_identity,
		       started_at, ended_at, end_reason
		FROM session_ledger
	`
	args := []interface{}{}
	if roomID != "" {
		query += " WHERE room_id = ?"
		args = append(args, roomID)
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []types.SessionRecord{}
	for rows.Next() {
		var rec types.SessionRecord
		var endedAt sql.NullTime
		var reason sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.RoomID,
			&rec.ExpertConnID,
			&rec.ExpertIdentity,
			&rec.UserConnID,
			&rec.UserIdentity,
			&rec.StartedAt,
			&endedAt,
			&reason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}

		// FUNCTIONAL DISCOVERY: Handle nullable end columns for open pairings
		if endedAt.Valid {
			t := endedAt.Time
			rec.EndedAt = &t
		}
		if reason.Valid {
			rec.EndReason = reason.String
		}

		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return records, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_ledger WHERE ended_at IS NULL").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// Close flushes queued writes and shuts down the database manager
func (m *Manager) Close() error {
	// TECHNICAL DISCOVERY: Prevent multiple close operations
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Println("Session ledger closed")
	return nil
}
