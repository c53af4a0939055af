package configstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/sample-interp-server/internal/domain"
)

// SQLiteStore is the versioned governance store shared by roles,
// permissions, ASP, ASPC and ISGL documents. Versions only increase and the
// history is append-only; rewind reconstructs a historical view by replaying
// deltas, never by rewriting rows.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger

	maxAttempts int
}

// NewSQLiteStore opens (or creates) the governance database and its schema.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	store := newStoreWithDB(db, logger)
	store.dbPath = dbPath
	return store, nil
}

// newStoreWithDB wraps an already-open handle; tests inject mock drivers here.
func newStoreWithDB(db *sql.DB, logger *logrus.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:          db,
		log:         logger,
		maxAttempts: 5,
	}
}

// createSchema creates the governance tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS config_entities (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		version INTEGER NOT NULL,
		document TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE TABLE IF NOT EXISTS config_versions (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		version INTEGER NOT NULL,
		delta TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (kind, id, version)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save validates the new document, computes its delta against the current
// version, increments the version and appends the history entry. The version
// increment is guarded so concurrent edits cannot silently collide on the
// same version number; a lost race is retried against a fresh read.
func (s *SQLiteStore) Save(ctx context.Context, kind, id string, fields map[string]interface{}) (*domain.ConfigEntity, error) {
	if kind == "" || id == "" {
		return nil, &domain.ValidationError{Field: "kind/id", Message: "are required"}
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		entity, err := s.trySave(ctx, kind, id, fields)
		if err == nil {
			return entity, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.log.WithFields(logrus.Fields{
			"kind":    kind,
			"id":      id,
			"attempt": attempt,
		}).Warn("Config save lost version race, retrying")
	}

	return nil, fmt.Errorf("saving config entity %s/%s: %w (%v)", kind, id, domain.ErrRetryExhausted, lastErr)
}

func (s *SQLiteStore) trySave(ctx context.Context, kind, id string, fields map[string]interface{}) (*domain.ConfigEntity, error) {
	current, err := s.currentDocument(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	delta := ComputeDelta(current.Document, fields)
	newVersion := current.Version + 1
	now := time.Now().UTC()

	docJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}
	deltaJSON, err := json.Marshal(delta)
	if err != nil {
		return nil, fmt.Errorf("marshaling delta: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if current.Version == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO config_entities (kind, id, version, document, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (kind, id) DO NOTHING`,
			kind, id, newVersion, string(docJSON), now)
		if err != nil {
			return nil, fmt.Errorf("inserting config entity: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, domain.ErrConflict
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE config_entities
			SET version = ?, document = ?, updated_at = ?
			WHERE kind = ? AND id = ? AND version = ?`,
			newVersion, string(docJSON), now, kind, id, current.Version)
		if err != nil {
			return nil, fmt.Errorf("updating config entity: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, domain.ErrConflict
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO config_versions (kind, id, version, delta, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		kind, id, newVersion, string(deltaJSON), now); err != nil {
		return nil, fmt.Errorf("appending version history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing config save: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"kind":    kind,
		"id":      id,
		"version": newVersion,
	}).Info("Config entity saved")

	return &domain.ConfigEntity{
		Kind:      kind,
		ID:        id,
		Version:   newVersion,
		Document:  fields,
		UpdatedAt: now,
	}, nil
}

// Read returns the current document when version <= 0; otherwise it replays
// deltas forward from the empty baseline to reconstruct the requested
// historical view. Reads never mutate storage.
func (s *SQLiteStore) Read(ctx context.Context, kind, id string, version int) (*domain.ConfigEntity, error) {
	current, err := s.currentDocument(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if current.Version == 0 {
		return nil, fmt.Errorf("config entity %s/%s: %w", kind, id, domain.ErrNotFound)
	}

	if version <= 0 || version == current.Version {
		return current, nil
	}
	if version > current.Version {
		return nil, fmt.Errorf("config entity %s/%s has no version %d: %w", kind, id, version, domain.ErrNotFound)
	}

	history, err := s.History(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	var deltas []domain.ConfigDelta
	var at time.Time
	for _, v := range history {
		if v.Version > version {
			break
		}
		deltas = append(deltas, v.Delta)
		at = v.CreatedAt
	}

	return &domain.ConfigEntity{
		Kind:      kind,
		ID:        id,
		Version:   version,
		Document:  ApplyDeltas(nil, deltas),
		UpdatedAt: at,
	}, nil
}

// History returns the full append-only version history, oldest first.
func (s *SQLiteStore) History(ctx context.Context, kind, id string) ([]*domain.ConfigVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, delta, created_at
		FROM config_versions
		WHERE kind = ? AND id = ?
		ORDER BY version ASC`,
		kind, id)
	if err != nil {
		return nil, fmt.Errorf("querying version history: %w", err)
	}
	defer rows.Close()

	var history []*domain.ConfigVersion
	for rows.Next() {
		var v domain.ConfigVersion
		var deltaJSON string
		if err := rows.Scan(&v.Version, &deltaJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}
		if err := json.Unmarshal([]byte(deltaJSON), &v.Delta); err != nil {
			return nil, fmt.Errorf("unmarshaling delta: %w", err)
		}
		history = append(history, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version rows: %w", err)
	}

	return history, nil
}

// currentDocument reads the stored head; a missing entity reads as version 0
// with an empty document so first saves and CAS share one code path.
func (s *SQLiteStore) currentDocument(ctx context.Context, kind, id string) (*domain.ConfigEntity, error) {
	var docJSON string
	entity := &domain.ConfigEntity{Kind: kind, ID: id, Document: map[string]interface{}{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT version, document, updated_at
		FROM config_entities
		WHERE kind = ? AND id = ?`,
		kind, id).Scan(&entity.Version, &docJSON, &entity.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity, nil
		}
		return nil, fmt.Errorf("reading config entity: %w", err)
	}

	if err := json.Unmarshal([]byte(docJSON), &entity.Document); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}

	return entity, nil
}
