package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"satchel/internal/config"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db      *sql.DB
	path    string
	maxSize int
}

// Open initializes or connects to the queue database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.QueueDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, maxSize: cfg.Queue.MaxSize}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the queue database location.
func (s *Store) Path() string {
	return s.path
}

// Enqueue inserts a new pending entry with a freshly assigned id. It fails
// with ErrCapacityExceeded when the store already holds the configured
// maximum number of entries; the capacity check and insert share one
// transaction so concurrent enqueues cannot overshoot.
func (s *Store) Enqueue(ctx context.Context, payload Payload) (*Entry, error) {
	if strings.TrimSpace(payload.Text) == "" {
		return nil, errors.New("payload text is empty")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if s.maxSize > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_entries`).Scan(&count); err != nil {
			return nil, fmt.Errorf("count entries: %w", err)
		}
		if count >= s.maxSize {
			return nil, fmt.Errorf("%w: %d entries", ErrCapacityExceeded, count)
		}
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO queue_entries (
            id, text, source_url, source_title, source_domain, context,
            status, retry_count, last_error, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		id,
		payload.Text,
		payload.SourceURL,
		nullableString(payload.SourceTitle),
		nullableString(payload.SourceDomain),
		nullableString(payload.Context),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a queue entry by identifier. It returns nil when the entry
// no longer exists.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// List returns queue entries filtered by status set (or all entries when no
// status is provided), in insertion order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + entryColumns + ` FROM queue_entries`
	orderClause := ` ORDER BY seq`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListResumable returns entries left over from a previous session that should
// be replayed at startup, in insertion order.
func (s *Store) ListResumable(ctx context.Context) ([]*Entry, error) {
	return s.List(ctx, StatusPending, StatusFailed)
}

// MarkDelivering transitions an entry to the delivering state. Missing ids
// are a silent no-op: the entry may have been removed by a concurrent
// success or discard.
func (s *Store) MarkDelivering(ctx context.Context, id string) error {
	return s.updateStatus(ctx, id, StatusDelivering, nil, false)
}

// MarkRetry returns an entry to pending after a transient failure, recording
// the failure reason and incrementing the retry counter.
func (s *Store) MarkRetry(ctx context.Context, id, lastError string) error {
	return s.updateStatus(ctx, id, StatusPending, &lastError, true)
}

// MarkFailed transitions an entry to the terminal failed state with the
// final failure reason. The retry counter is left untouched.
func (s *Store) MarkFailed(ctx context.Context, id, lastError string) error {
	return s.updateStatus(ctx, id, StatusFailed, &lastError, false)
}

func (s *Store) updateStatus(ctx context.Context, id string, status Status, lastError *string, bumpRetry bool) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	var query string
	args := make([]any, 0, 4)
	args = append(args, status)
	switch {
	case lastError != nil && bumpRetry:
		query = `UPDATE queue_entries SET status = ?, last_error = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?`
		args = append(args, strings.TrimSpace(*lastError), timestamp, id)
	case lastError != nil:
		query = `UPDATE queue_entries SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`
		args = append(args, strings.TrimSpace(*lastError), timestamp, id)
	default:
		query = `UPDATE queue_entries SET status = ?, updated_at = ? WHERE id = ?`
		args = append(args, timestamp, id)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	return nil
}

// ResetForRetry returns a failed entry to pending with a fresh retry budget,
// reporting whether the entry existed in the failed state.
func (s *Store) ResetForRetry(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_entries SET status = ?, retry_count = 0, last_error = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("reset entry for retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Remove deletes an entry by identifier. It reports whether a row was
// removed; removing an absent id is not an error.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetStuckDelivering returns entries left in the delivering state by a
// crashed session back to pending so startup recovery replays them.
func (s *Store) ResetStuckDelivering(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_entries SET status = ?, updated_at = ? WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusDelivering,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck entries: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusDelivering:
			health.Delivering += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'queue_entries'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM queue_entries")
		if err := row.Scan(&health.TotalEntries); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count queue entries: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

const entryColumns = "id, text, source_url, source_title, source_domain, context, status, retry_count, last_error, created_at, updated_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id           string
		text         string
		sourceURL    string
		sourceTitle  sql.NullString
		sourceDomain sql.NullString
		captureCtx   sql.NullString
		statusStr    string
		retryCount   int
		lastError    sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&text,
		&sourceURL,
		&sourceTitle,
		&sourceDomain,
		&captureCtx,
		&statusStr,
		&retryCount,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID: id,
		Payload: Payload{
			Text:         text,
			SourceURL:    sourceURL,
			SourceTitle:  sourceTitle.String,
			SourceDomain: sourceDomain.String,
			Context:      captureCtx.String,
		},
		Status:     Status(statusStr),
		RetryCount: retryCount,
		LastError:  lastError.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
