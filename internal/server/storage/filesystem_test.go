package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testHash = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestFileSystemStore_Save(t *testing.T) {
	t.Run("saves blob to disk", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		data := bytes.NewReader([]byte("test content"))
		n, err := store.Save(testHash, data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if n != 12 {
			t.Errorf("expected 12 bytes written, got %d", n)
		}

		content, err := os.ReadFile(filepath.Join(dir, testHash+".blob"))
		if err != nil {
			t.Fatalf("failed to read saved blob: %v", err)
		}
		if string(content) != "test content" {
			t.Errorf("expected 'test content', got %q", content)
		}
	})

	t.Run("saves large content", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		largeContent := strings.Repeat("x", 1024*1024) // 1MB
		n, err := store.Save(testHash, bytes.NewReader([]byte(largeContent)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if n != int64(len(largeContent)) {
			t.Errorf("expected %d bytes, got %d", len(largeContent), n)
		}
	})

	t.Run("saving the same hash twice is idempotent", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		if _, err := store.Save(testHash, bytes.NewReader([]byte("hello"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := store.Save(testHash, bytes.NewReader([]byte("hello"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(store.Location(testHash))
		if err != nil {
			t.Fatalf("failed to read blob: %v", err)
		}
		if string(content) != "hello" {
			t.Errorf("expected 'hello', got %q", content)
		}
	})
}

func TestFileSystemStore_GetPath(t *testing.T) {
	t.Run("returns path for existing blob", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		if _, err := store.Save(testHash, bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		path, err := store.GetPath(testHash)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != store.Location(testHash) {
			t.Errorf("expected %s, got %s", store.Location(testHash), path)
		}
	})

	t.Run("errors for missing blob", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		if _, err := store.GetPath(testHash); err == nil {
			t.Error("expected error for missing blob")
		}
	})
}

func TestFileSystemStore_Delete(t *testing.T) {
	t.Run("removes blob file", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		if _, err := store.Save(testHash, bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := store.Delete(testHash); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(store.Location(testHash)); !os.IsNotExist(err) {
			t.Error("expected blob file to be gone")
		}
	})

	t.Run("deleting a missing blob is a no-op", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		if err := store.Delete(testHash); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

func TestFileSystemStore_ListHashes(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)

	if _, err := store.Save(testHash, bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Stray files that are not blobs must be ignored
	for _, name := range []string{"readme.txt", "short.blob", strings.Repeat("Z", 64) + ".blob"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("junk"), 0644); err != nil {
			t.Fatalf("failed to write stray file: %v", err)
		}
	}

	blobs, err := store.ListHashes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blobs) != 1 {
		t.Fatalf("expected 1 blob, got %d", len(blobs))
	}
	if blobs[0].Hash != testHash {
		t.Errorf("expected hash %s, got %s", testHash, blobs[0].Hash)
	}
}

func TestHashFromName(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		wantOK bool
	}{
		{"valid blob name", testHash + ".blob", true},
		{"missing suffix", testHash, false},
		{"wrong length", "abc123.blob", false},
		{"uppercase hex rejected", strings.ToUpper(testHash) + ".blob", false},
		{"non-hex characters", strings.Repeat("g", 64) + ".blob", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, ok := hashFromName(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("hashFromName(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && hash != tt.in[:64] {
				t.Errorf("expected hash %s, got %s", tt.in[:64], hash)
			}
		})
	}
}
