package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"drive/internal/server/config"
	"drive/internal/server/database"
)

// --- In-memory ledger fake ---

type fakeLedger struct {
	users map[string]*database.User
	blobs map[string]*database.Blob
	files map[string]*database.File

	// hideBlobOnce makes the next BlobForUpdate miss even though the blob
	// row exists, simulating a concurrent creator winning the insert race.
	hideBlobOnce bool

	// lockOrder records which row locks a transaction took, in order.
	lockOrder []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users: make(map[string]*database.User),
		blobs: make(map[string]*database.Blob),
		files: make(map[string]*database.File),
	}
}

func (l *fakeLedger) CreateUser(_ context.Context, user *database.User) error {
	for _, u := range l.users {
		if u.Email == user.Email {
			return database.ErrEmailTaken
		}
	}
	cp := *user
	l.users[user.ID] = &cp
	return nil
}

func (l *fakeLedger) GetUser(_ context.Context, id string) (*database.User, error) {
	u, ok := l.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (l *fakeLedger) GetFile(_ context.Context, id string) (*database.File, error) {
	f, ok := l.files[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (l *fakeLedger) GetBlob(_ context.Context, hash string) (*database.Blob, error) {
	b, ok := l.blobs[hash]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (l *fakeLedger) ListFiles(_ context.Context, ownerID string) ([]database.FileListing, error) {
	var listings []database.FileListing
	for _, f := range l.files {
		if f.OwnerID != ownerID {
			continue
		}
		b, ok := l.blobs[f.BlobHash]
		if !ok {
			continue
		}
		listings = append(listings, database.FileListing{
			File:       *f,
			SizeBytes:  b.SizeBytes,
			SharedBlob: b.RefCount > 1,
		})
	}
	sort.Slice(listings, func(i, j int) bool {
		if !listings[i].UploadedAt.Equal(listings[j].UploadedAt) {
			return listings[i].UploadedAt.Before(listings[j].UploadedAt)
		}
		return listings[i].ID < listings[j].ID
	})
	return listings, nil
}

func (l *fakeLedger) IncrementDownloadCount(_ context.Context, fileID string) error {
	f, ok := l.files[fileID]
	if !ok {
		return database.ErrNotFound
	}
	f.DownloadCount++
	return nil
}

func (l *fakeLedger) SetFileVisibility(_ context.Context, fileID string, isPublic bool) error {
	f, ok := l.files[fileID]
	if !ok {
		return database.ErrNotFound
	}
	f.IsPublic = isPublic
	return nil
}

func (l *fakeLedger) ServerStats(_ context.Context) (*database.ServerStats, error) {
	stats := &database.ServerStats{
		TotalUsers: int64(len(l.users)),
		TotalFiles: int64(len(l.files)),
		TotalBlobs: int64(len(l.blobs)),
	}
	for _, b := range l.blobs {
		stats.PhysicalBytes += b.SizeBytes
	}
	for _, f := range l.files {
		if b, ok := l.blobs[f.BlobHash]; ok {
			stats.LogicalBytes += b.SizeBytes
		}
	}
	return stats, nil
}

// InTx snapshots state up front and restores it when fn fails, mimicking a
// rollback.
func (l *fakeLedger) InTx(_ context.Context, fn func(tx database.LedgerTx) error) error {
	users := snapshot(l.users)
	blobs := snapshot(l.blobs)
	files := snapshot(l.files)

	if err := fn(&fakeTx{l: l}); err != nil {
		l.users = users
		l.blobs = blobs
		l.files = files
		return err
	}
	return nil
}

func snapshot[V any](m map[string]*V) map[string]*V {
	out := make(map[string]*V, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

type fakeTx struct {
	l *fakeLedger
}

func (t *fakeTx) UserForUpdate(ctx context.Context, id string) (*database.User, error) {
	t.l.lockOrder = append(t.l.lockOrder, "user")
	return t.l.GetUser(ctx, id)
}

func (t *fakeTx) BlobForUpdate(ctx context.Context, hash string) (*database.Blob, error) {
	t.l.lockOrder = append(t.l.lockOrder, "blob")
	if t.l.hideBlobOnce {
		t.l.hideBlobOnce = false
		return nil, nil
	}
	b, err := t.l.GetBlob(ctx, hash)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return b, err
}

func (t *fakeTx) InsertBlob(_ context.Context, blob *database.Blob) (bool, error) {
	if _, exists := t.l.blobs[blob.ContentHash]; exists {
		return false, nil
	}
	cp := *blob
	t.l.blobs[blob.ContentHash] = &cp
	return true, nil
}

func (t *fakeTx) IncrementBlobRef(_ context.Context, hash string) error {
	b, ok := t.l.blobs[hash]
	if !ok {
		return database.ErrNotFound
	}
	b.RefCount++
	return nil
}

func (t *fakeTx) DecrementBlobRef(_ context.Context, hash string) (int, error) {
	b, ok := t.l.blobs[hash]
	if !ok {
		return 0, database.ErrNotFound
	}
	b.RefCount--
	return b.RefCount, nil
}

func (t *fakeTx) DeleteBlob(_ context.Context, hash string) error {
	if _, ok := t.l.blobs[hash]; !ok {
		return database.ErrNotFound
	}
	delete(t.l.blobs, hash)
	return nil
}

func (t *fakeTx) InsertFile(_ context.Context, file *database.File) error {
	cp := *file
	t.l.files[file.ID] = &cp
	return nil
}

func (t *fakeTx) FileForUpdate(ctx context.Context, id string) (*database.File, error) {
	return t.l.GetFile(ctx, id)
}

func (t *fakeTx) DeleteFile(_ context.Context, id string) error {
	if _, ok := t.l.files[id]; !ok {
		return database.ErrNotFound
	}
	delete(t.l.files, id)
	return nil
}

func (t *fakeTx) AddUserStorage(_ context.Context, userID string, actualDelta, originalDelta int64) error {
	u, ok := t.l.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.StorageUsedActual += actualDelta
	u.StorageUsedOriginal += originalDelta
	return nil
}

// --- In-memory blob store fake ---

type fakeStore struct {
	blobs   map[string][]byte
	saveErr error
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string][]byte)}
}

func (s *fakeStore) Save(hash string, data io.Reader) (int64, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	s.blobs[hash] = b
	s.saves++
	return int64(len(b)), nil
}

func (s *fakeStore) Location(hash string) string {
	return "/blobs/" + hash + ".blob"
}

func (s *fakeStore) GetPath(hash string) (string, error) {
	if _, ok := s.blobs[hash]; !ok {
		return "", errors.New("blob not found on disk")
	}
	return s.Location(hash), nil
}

func (s *fakeStore) Delete(hash string) error {
	delete(s.blobs, hash)
	return nil
}

func (s *fakeStore) EnsureDir() error { return nil }

// --- Test harness ---

func newTestService(quota int64) (*Service, *fakeLedger, *fakeStore) {
	ledger := newFakeLedger()
	store := newFakeStore()
	cfg := &config.Config{
		MaxStorageQuota: quota,
		BaseURL:         "http://localhost:8080",
	}
	return New(ledger, store, cfg), ledger, store
}

func addUser(l *fakeLedger, id string) *database.User {
	u := &database.User{
		ID:        id,
		Email:     id + "@example.com",
		CreatedAt: time.Now().UTC(),
	}
	l.users[id] = u
	return u
}

// --- Token generation (carried over with the helper) ---

func TestGenerateSecureToken(t *testing.T) {
	t.Run("generates correct length", func(t *testing.T) {
		for _, length := range []int{8, 16, 24, 32} {
			token, err := generateSecureToken(length)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(token) != length {
				t.Errorf("expected length %d, got %d", length, len(token))
			}
		}
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			token, err := generateSecureToken(16)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[token] {
				t.Fatalf("duplicate token generated: %s", token)
			}
			seen[token] = true
		}
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "report.pdf", "report.pdf"},
		{"strips directories", "../../etc/passwd", "passwd"},
		{"strips windows paths", `C:\Users\me\notes.txt`, "notes.txt"},
		{"empty becomes placeholder", "", "file"},
		{"dot becomes placeholder", ".", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFilename(tt.in); got != tt.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("limits length", func(t *testing.T) {
		got := sanitizeFilename(strings.Repeat("a", 300) + ".txt")
		if len(got) > 255 {
			t.Errorf("expected length <= 255, got %d", len(got))
		}
		if !strings.HasSuffix(got, ".txt") {
			t.Errorf("expected extension preserved, got %q", got)
		}
	})

	t.Run("limits length when the extension is oversized", func(t *testing.T) {
		// filepath.Ext treats everything after the leading dot as the
		// extension here, so the extension alone busts the limit.
		got := sanitizeFilename("." + strings.Repeat("a", 300))
		if len(got) > 255 {
			t.Errorf("expected length <= 255, got %d", len(got))
		}
		if got == "" {
			t.Error("expected a non-empty name")
		}
	})

	t.Run("limits length of dotted tail", func(t *testing.T) {
		got := sanitizeFilename("x." + strings.Repeat("b", 280))
		if len(got) > 255 {
			t.Errorf("expected length <= 255, got %d", len(got))
		}
	})
}
