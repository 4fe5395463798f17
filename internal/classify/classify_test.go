package classify

import (
	"testing"
	"time"

	"photo-discovery/internal/filesystem"
	"photo-discovery/internal/mediatypes"
)

func TestIsSupportedImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/photos/a.jpg", true},
		{"/photos/A.JPG", true},
		{"/photos/b.JpEg", true},
		{"/photos/c.png", true},
		{"/photos/d.webp", true},
		{"/photos/e.tiff", true},
		{"/photos/notes.txt", false},
		{"/photos/movie.mp4", false},
		{"/photos/noext", false},
		{"/photos/jpg", false},
		{"/photos.jpg/readme", false},
	}

	for _, tt := range tests {
		if got := IsSupportedImage(tt.path); got != tt.want {
			t.Errorf("IsSupportedImage(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestComputeFingerprintStable(t *testing.T) {
	a := ComputeFingerprint("/photos/a.jpg", 1024, 1700000000000000000)
	b := ComputeFingerprint("/photos/a.jpg", 1024, 1700000000000000000)
	if a != b {
		t.Errorf("Fingerprint not deterministic: %s != %s", a, b)
	}
}

func TestComputeFingerprintChanges(t *testing.T) {
	base := ComputeFingerprint("/photos/a.jpg", 1024, 1700000000000000000)

	tests := []struct {
		name string
		fp   Fingerprint
	}{
		{"size changed", ComputeFingerprint("/photos/a.jpg", 1025, 1700000000000000000)},
		{"mtime changed", ComputeFingerprint("/photos/a.jpg", 1024, 1700000000000000001)},
		{"path changed", ComputeFingerprint("/photos/b.jpg", 1024, 1700000000000000000)},
	}
	for _, tt := range tests {
		if tt.fp == base {
			t.Errorf("%s: fingerprint did not change", tt.name)
		}
	}
}

func TestComputeFingerprintNoBoundaryAmbiguity(t *testing.T) {
	// Shifting bytes between path and the integer fields must not collide.
	seen := make(map[Fingerprint]string)
	inputs := []struct {
		path  string
		size  int64
		mtime int64
	}{
		{"/a", 1, 2},
		{"/a\x00", 1, 2},
		{"/a", 2, 1},
		{"/a1", 0, 2},
	}
	for _, in := range inputs {
		fp := ComputeFingerprint(in.path, in.size, in.mtime)
		if prev, dup := seen[fp]; dup {
			t.Errorf("collision between %q and %q", prev, in.path)
		}
		seen[fp] = in.path
	}
}

func TestFingerprintStringRoundTrip(t *testing.T) {
	for _, fp := range []Fingerprint{0, 1, 0xdeadbeef, ^Fingerprint(0)} {
		s := fp.String()
		if len(s) != 16 {
			t.Errorf("String() = %q, want 16 hex digits", s)
		}
		parsed, err := ParseFingerprint(s)
		if err != nil {
			t.Fatalf("ParseFingerprint(%q) error: %v", s, err)
		}
		if parsed != fp {
			t.Errorf("round trip %s -> %s", fp, parsed)
		}
	}
}

func TestClassify(t *testing.T) {
	mtime := time.Unix(1700000000, 500)

	tests := []struct {
		name      string
		entry     filesystem.DirEntry
		wantType  mediatypes.FileType
		wantImage bool
	}{
		{
			name:      "image",
			entry:     filesystem.DirEntry{Name: "photo1.jpg", SizeBytes: 10240, ModTimeUnixNanos: mtime.UnixNano()},
			wantType:  mediatypes.FileTypeImage,
			wantImage: true,
		},
		{
			name:     "text",
			entry:    filesystem.DirEntry{Name: "notes.txt", SizeBytes: 12, ModTimeUnixNanos: mtime.UnixNano()},
			wantType: mediatypes.FileTypeOther,
		},
		{
			name:     "directory named like an image",
			entry:    filesystem.DirEntry{Name: "raw.jpg", IsDir: true, ModTimeUnixNanos: mtime.UnixNano()},
			wantType: mediatypes.FileTypeFolder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("/photos", tt.entry)

			if got.Path != "/photos/"+tt.entry.Name {
				t.Errorf("Path = %q", got.Path)
			}
			if got.Type() != tt.wantType {
				t.Errorf("Type() = %v, want %v", got.Type(), tt.wantType)
			}
			if got.IsImage != tt.wantImage {
				t.Errorf("IsImage = %v, want %v", got.IsImage, tt.wantImage)
			}
			if got.ModifiedAtUnixNanos != mtime.UnixNano() {
				t.Errorf("ModifiedAtUnixNanos = %d, want %d", got.ModifiedAtUnixNanos, mtime.UnixNano())
			}
			want := ComputeFingerprint(got.Path, got.SizeBytes, got.ModifiedAtUnixNanos)
			if got.Fingerprint != want {
				t.Errorf("Fingerprint = %s, want %s", got.Fingerprint, want)
			}
		})
	}
}

func TestIsHidden(t *testing.T) {
	if !IsHidden(".DS_Store") || IsHidden("photo.jpg") {
		t.Error("IsHidden misclassified")
	}
}

func BenchmarkComputeFingerprint(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ComputeFingerprint("/photos/2024/holiday/IMG_0001.JPG", 4_500_000, int64(i))
	}
}
