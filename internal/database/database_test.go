package database

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photo-discovery/internal/classify"
)

func setupTestDB(t *testing.T) *ArtifactStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")

	s, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := setupTestDB(t)

	if _, err := os.Stat(s.Path()); err != nil {
		t.Fatalf("Database file not created: %v", err)
	}

	n, err := s.Count(context.Background(), "")
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty database, got %d rows", n)
	}
}

func TestOpenFailsForMissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "artifacts.db"))
	if err == nil {
		t.Error("Expected error opening a database in a missing directory")
	}
}

func TestPutAndGetArtifact(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	fp := classify.ComputeFingerprint("/photos/a.jpg", 100, 1)

	if _, ok, err := s.GetArtifact(ctx, "thumbnail", fp); err != nil || ok {
		t.Fatalf("Expected miss on empty store, got ok=%v err=%v", ok, err)
	}

	if err := s.PutArtifact(ctx, "thumbnail", fp, "/photos/a.jpg", []byte("jpegdata")); err != nil {
		t.Fatalf("PutArtifact() error: %v", err)
	}

	data, ok, err := s.GetArtifact(ctx, "thumbnail", fp)
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(data, []byte("jpegdata")) {
		t.Errorf("GetArtifact() = %q", data)
	}

	if _, ok, _ := s.GetArtifact(ctx, "metadata", fp); ok {
		t.Error("Kinds must not share entries")
	}

	if err := s.PutArtifact(ctx, "thumbnail", fp, "/photos/a.jpg", []byte("newer")); err != nil {
		t.Fatalf("PutArtifact() replace error: %v", err)
	}
	data, _, _ = s.GetArtifact(ctx, "thumbnail", fp)
	if string(data) != "newer" {
		t.Errorf("Expected replaced value, got %q", data)
	}

	n, err := s.Count(ctx, "thumbnail")
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v; want 1", n, err)
	}
}

func TestPruneStale(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	oldFP := classify.ComputeFingerprint("/photos/a.jpg", 100, 1)
	newFP := classify.ComputeFingerprint("/photos/a.jpg", 120, 2)
	otherFP := classify.ComputeFingerprint("/photos/b.jpg", 100, 1)

	for _, row := range []struct {
		kind string
		fp   classify.Fingerprint
		path string
	}{
		{"thumbnail", oldFP, "/photos/a.jpg"},
		{"metadata", oldFP, "/photos/a.jpg"},
		{"thumbnail", newFP, "/photos/a.jpg"},
		{"thumbnail", otherFP, "/photos/b.jpg"},
	} {
		if err := s.PutArtifact(ctx, row.kind, row.fp, row.path, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.PruneStale(ctx, "/photos/a.jpg", newFP)
	if err != nil {
		t.Fatalf("PruneStale() error: %v", err)
	}
	if removed != 2 {
		t.Errorf("PruneStale removed %d, want 2", removed)
	}

	if _, ok, _ := s.GetArtifact(ctx, "thumbnail", newFP); !ok {
		t.Error("Current artifact was pruned")
	}
	if _, ok, _ := s.GetArtifact(ctx, "thumbnail", otherFP); !ok {
		t.Error("Unrelated path was pruned")
	}

	removed, err = s.DeletePath(ctx, "/photos/b.jpg")
	if err != nil || removed != 1 {
		t.Errorf("DeletePath() = %d, %v; want 1", removed, err)
	}

	n, _ := s.Count(ctx, "")
	if n != 1 {
		t.Errorf("Expected 1 remaining artifact, got %d", n)
	}
}

func TestArtifactsSurviveReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")
	ctx := context.Background()
	fp := classify.ComputeFingerprint("/photos/a.jpg", 1, 1)

	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutArtifact(ctx, "thumbnail", fp, "/photos/a.jpg", []byte("kept")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	data, ok, err := reopened.GetArtifact(ctx, "thumbnail", fp)
	if err != nil || !ok || string(data) != "kept" {
		t.Errorf("Expected persisted artifact, got %q ok=%v err=%v", data, ok, err)
	}
}

func TestMetadata(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	last, err := s.GetLastPruneRun(ctx)
	if err != nil {
		t.Fatalf("GetLastPruneRun() error: %v", err)
	}
	if !last.IsZero() {
		t.Errorf("Expected zero time, got %v", last)
	}

	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if err := s.SetLastPruneRun(ctx, now); err != nil {
		t.Fatalf("SetLastPruneRun() error: %v", err)
	}
	last, err = s.GetLastPruneRun(ctx)
	if err != nil {
		t.Fatalf("GetLastPruneRun() error: %v", err)
	}
	if !last.Equal(now) {
		t.Errorf("GetLastPruneRun() = %v, want %v", last, now)
	}

	if err := s.SetLastPruneRun(ctx, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if last, _ := s.GetLastPruneRun(ctx); !last.IsZero() {
		t.Errorf("Expected cleared time, got %v", last)
	}
}

func TestUpdateDBMetrics(t *testing.T) {
	s := setupTestDB(t)
	// Must not panic with an idle pool.
	s.UpdateDBMetrics()
}
