package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Ledger is the persistence contract the service layer depends on. The
// read-modify-write sequences of upload and delete run through InTx so that
// quota checks and ref-count maintenance are atomic.
type Ledger interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetFile(ctx context.Context, id string) (*File, error)
	GetBlob(ctx context.Context, hash string) (*Blob, error)
	ListFiles(ctx context.Context, ownerID string) ([]FileListing, error)
	IncrementDownloadCount(ctx context.Context, fileID string) error
	SetFileVisibility(ctx context.Context, fileID string, isPublic bool) error
	ServerStats(ctx context.Context) (*ServerStats, error)
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of row operations available inside a transaction.
// The ForUpdate variants take row locks so concurrent uploads and deletes
// serialize on the user and blob rows they touch.
type LedgerTx interface {
	UserForUpdate(ctx context.Context, id string) (*User, error)
	BlobForUpdate(ctx context.Context, hash string) (*Blob, error)
	// InsertBlob reports false when another transaction created the same
	// content hash first (the caller then retries as an increment).
	InsertBlob(ctx context.Context, blob *Blob) (bool, error)
	IncrementBlobRef(ctx context.Context, hash string) error
	DecrementBlobRef(ctx context.Context, hash string) (remaining int, err error)
	DeleteBlob(ctx context.Context, hash string) error
	InsertFile(ctx context.Context, file *File) error
	FileForUpdate(ctx context.Context, id string) (*File, error)
	DeleteFile(ctx context.Context, id string) error
	AddUserStorage(ctx context.Context, userID string, actualDelta, originalDelta int64) error
}

// Repository implements Ledger on top of a pgx pool.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a new user row with zeroed storage counters.
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, storage_used_actual, storage_used_original, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.StorageUsedActual,
		user.StorageUsedOriginal,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	user := &User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, storage_used_actual, storage_used_original, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.StorageUsedActual,
		&user.StorageUsedOriginal,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetFile retrieves a virtual file by ID.
func (r *Repository) GetFile(ctx context.Context, id string) (*File, error) {
	file := &File{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, filename, owner_id, blob_hash, is_public, download_count, uploaded_at
		FROM files WHERE id = $1
	`, id).Scan(
		&file.ID,
		&file.Filename,
		&file.OwnerID,
		&file.BlobHash,
		&file.IsPublic,
		&file.DownloadCount,
		&file.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return file, nil
}

// GetBlob retrieves a blob by content hash.
func (r *Repository) GetBlob(ctx context.Context, hash string) (*Blob, error) {
	blob := &Blob{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT content_hash, location, size_bytes, ref_count, created_at
		FROM blobs WHERE content_hash = $1
	`, hash).Scan(
		&blob.ContentHash,
		&blob.Location,
		&blob.SizeBytes,
		&blob.RefCount,
		&blob.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return blob, nil
}

// ListFiles returns all files owned by a user, joined with their blobs.
// SharedBlob reflects the blob's ref count at read time, not whether the
// owning upload was deduplicated.
func (r *Repository) ListFiles(ctx context.Context, ownerID string) ([]FileListing, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT f.id, f.filename, f.owner_id, f.blob_hash, f.is_public,
			   f.download_count, f.uploaded_at, b.size_bytes, b.ref_count > 1
		FROM files f
		JOIN blobs b ON b.content_hash = f.blob_hash
		WHERE f.owner_id = $1
		ORDER BY f.uploaded_at, f.id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var listings []FileListing
	for rows.Next() {
		var l FileListing
		if err := rows.Scan(
			&l.ID,
			&l.Filename,
			&l.OwnerID,
			&l.BlobHash,
			&l.IsPublic,
			&l.DownloadCount,
			&l.UploadedAt,
			&l.SizeBytes,
			&l.SharedBlob,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// IncrementDownloadCount atomically increments the download counter.
func (r *Repository) IncrementDownloadCount(ctx context.Context, fileID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE files SET download_count = download_count + 1 WHERE id = $1", fileID)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFileVisibility flips the public sharing flag on a file.
func (r *Repository) SetFileVisibility(ctx context.Context, fileID string, isPublic bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE files SET is_public = $2 WHERE id = $1", fileID, isPublic)
	if err != nil {
		return fmt.Errorf("failed to set file visibility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ServerStats returns service-wide aggregates. Physical bytes count each
// blob once; logical bytes count every retained file at its blob's size.
func (r *Repository) ServerStats(ctx context.Context) (*ServerStats, error) {
	stats := &ServerStats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM blobs),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM blobs),
			(SELECT COALESCE(SUM(b.size_bytes), 0)
			   FROM files f JOIN blobs b ON b.content_hash = f.blob_hash)
	`).Scan(
		&stats.TotalUsers,
		&stats.TotalFiles,
		&stats.TotalBlobs,
		&stats.PhysicalBytes,
		&stats.LogicalBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get server stats: %w", err)
	}
	return stats, nil
}

// InTx runs fn inside a transaction. Row locks taken by the LedgerTx
// ForUpdate methods serialize concurrent mutations of the same user or blob.
func (r *Repository) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ledgerTx implements LedgerTx on a pgx transaction.
type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) UserForUpdate(ctx context.Context, id string) (*User, error) {
	user := &User{}
	err := t.tx.QueryRow(ctx, `
		SELECT id, email, password_hash, storage_used_actual, storage_used_original, created_at
		FROM users WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.StorageUsedActual,
		&user.StorageUsedOriginal,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock user row: %w", err)
	}
	return user, nil
}

// BlobForUpdate returns (nil, nil) when no blob has the given hash.
func (t *ledgerTx) BlobForUpdate(ctx context.Context, hash string) (*Blob, error) {
	blob := &Blob{}
	err := t.tx.QueryRow(ctx, `
		SELECT content_hash, location, size_bytes, ref_count, created_at
		FROM blobs WHERE content_hash = $1
		FOR UPDATE
	`, hash).Scan(
		&blob.ContentHash,
		&blob.Location,
		&blob.SizeBytes,
		&blob.RefCount,
		&blob.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock blob row: %w", err)
	}
	return blob, nil
}

func (t *ledgerTx) InsertBlob(ctx context.Context, blob *Blob) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO blobs (content_hash, location, size_bytes, ref_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_hash) DO NOTHING
	`,
		blob.ContentHash,
		blob.Location,
		blob.SizeBytes,
		blob.RefCount,
		blob.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert blob: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *ledgerTx) IncrementBlobRef(ctx context.Context, hash string) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE blobs SET ref_count = ref_count + 1 WHERE content_hash = $1", hash)
	if err != nil {
		return fmt.Errorf("failed to increment blob ref count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *ledgerTx) DecrementBlobRef(ctx context.Context, hash string) (int, error) {
	var remaining int
	err := t.tx.QueryRow(ctx, `
		UPDATE blobs SET ref_count = ref_count - 1
		WHERE content_hash = $1
		RETURNING ref_count
	`, hash).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to decrement blob ref count: %w", err)
	}
	return remaining, nil
}

func (t *ledgerTx) DeleteBlob(ctx context.Context, hash string) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM blobs WHERE content_hash = $1", hash)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *ledgerTx) InsertFile(ctx context.Context, file *File) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO files (id, filename, owner_id, blob_hash, is_public, download_count, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		file.ID,
		file.Filename,
		file.OwnerID,
		file.BlobHash,
		file.IsPublic,
		file.DownloadCount,
		file.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (t *ledgerTx) FileForUpdate(ctx context.Context, id string) (*File, error) {
	file := &File{}
	err := t.tx.QueryRow(ctx, `
		SELECT id, filename, owner_id, blob_hash, is_public, download_count, uploaded_at
		FROM files WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&file.ID,
		&file.Filename,
		&file.OwnerID,
		&file.BlobHash,
		&file.IsPublic,
		&file.DownloadCount,
		&file.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock file row: %w", err)
	}
	return file, nil
}

func (t *ledgerTx) DeleteFile(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *ledgerTx) AddUserStorage(ctx context.Context, userID string, actualDelta, originalDelta int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE users
		SET storage_used_actual = storage_used_actual + $2,
			storage_used_original = storage_used_original + $3
		WHERE id = $1
	`, userID, actualDelta, originalDelta)
	if err != nil {
		return fmt.Errorf("failed to update user storage counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
