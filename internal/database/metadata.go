package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const lastPruneKey = "last_prune_run"

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (s *ArtifactStore) GetMetadata(ctx context.Context, key string) (string, error) {
	start := time.Now()
	var err error
	defer func() {
		if errors.Is(err, sql.ErrNoRows) {
			recordQuery("get_metadata", start, nil)
			return
		}
		recordQuery("get_metadata", start, err)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// SetMetadata sets a metadata key-value pair.
func (s *ArtifactStore) SetMetadata(ctx context.Context, key, value string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_metadata", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetLastPruneRun returns when stale artifacts were last pruned.
// Returns zero time if never run.
func (s *ArtifactStore) GetLastPruneRun(ctx context.Context) (time.Time, error) {
	value, err := s.GetMetadata(ctx, lastPruneKey)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastPruneRun records when stale artifacts were last pruned.
func (s *ArtifactStore) SetLastPruneRun(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return s.SetMetadata(ctx, lastPruneKey, "")
	}
	return s.SetMetadata(ctx, lastPruneKey, t.UTC().Format(time.RFC3339))
}
