package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photo-discovery/internal/classify"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ArtifactStore persists derived artifacts keyed by kind and fingerprint.
// It is the second tier behind the in-memory artifact caches.
type ArtifactStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open opens or creates the artifact database.
// IMPORTANT: dbPath should be the full path to the database FILE, and the
// parent directory must already exist and be writable.
func Open(ctx context.Context, dbPath string) (*ArtifactStore, error) {
	logging.Info("Artifact database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &ArtifactStore{db: db, dbPath: dbPath}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Artifact database initialized successfully at %s", dbPath)
	return s, nil
}

func (s *ArtifactStore) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		kind TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		path TEXT NOT NULL,
		data BLOB NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (kind, fingerprint)
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_path ON artifacts(path);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err = s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *ArtifactStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *ArtifactStore) Path() string {
	return s.dbPath
}

// GetArtifact returns the stored bytes for kind and fp.
func (s *ArtifactStore) GetArtifact(ctx context.Context, kind string, fp classify.Fingerprint) ([]byte, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_artifact", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var data []byte
	err = s.db.QueryRowContext(ctx,
		"SELECT data FROM artifacts WHERE kind = ? AND fingerprint = ?",
		kind, fp.String(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// PutArtifact stores data for kind and fp, replacing any previous value.
func (s *ArtifactStore) PutArtifact(ctx context.Context, kind string, fp classify.Fingerprint, path string, data []byte) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put_artifact", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (kind, fingerprint, path, data, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, fingerprint) DO UPDATE SET
			path = excluded.path,
			data = excluded.data,
			size = excluded.size,
			created_at = strftime('%s', 'now')
	`, kind, fp.String(), path, data, len(data))
	return err
}

// PruneStale deletes artifacts of path whose fingerprint is not current,
// i.e. those derived from an older version of the file. It returns the
// number of rows removed.
func (s *ArtifactStore) PruneStale(ctx context.Context, path string, current classify.Fingerprint) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("prune_stale", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM artifacts WHERE path = ? AND fingerprint != ?",
		path, current.String(),
	)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err == nil && n > 0 {
		logging.Debug("Pruned %d stale artifact(s) for %s", n, path)
	}
	return n, err
}

// DeletePath deletes every artifact of path.
func (s *ArtifactStore) DeletePath(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_path", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE path = ?", path)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of stored artifacts of kind, or of every kind
// when kind is empty.
func (s *ArtifactStore) Count(ctx context.Context, kind string) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	if kind == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM artifacts").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM artifacts WHERE kind = ?", kind).Scan(&n)
		if err == nil {
			metrics.DBArtifactRows.WithLabelValues(kind).Set(float64(n))
		}
	}
	return n, err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (s *ArtifactStore) UpdateDBMetrics() {
	stats := s.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	if !dirInfo.IsDir() {
		return fmt.Errorf("database parent %s is not a directory", dir)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file %s is read-only! Mode: %v - this will cause write failures", p, info.Mode())
		}
	}

	return nil
}
