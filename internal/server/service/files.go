package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"drive/internal/server/database"
)

// UploadResult is returned after a successful upload. IsDeduplicated reports
// whether this particular upload landed on an already-stored blob.
type UploadResult struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedAt     time.Time `json:"upload_date"`
	IsDeduplicated bool      `json:"is_deduplicated"`
	DownloadCount  int       `json:"download_count"`
	DownloadURL    string    `json:"download_url"`
}

// FileSummary is one entry of a file listing. Here IsDeduplicated means the
// underlying blob currently has more than one reference, which is not the
// same thing as the per-upload flag in UploadResult.
type FileSummary struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedAt     time.Time `json:"upload_date"`
	IsDeduplicated bool      `json:"is_deduplicated"`
	IsPublic       bool      `json:"is_public"`
	DownloadCount  int       `json:"download_count"`
}

// Upload stores a file for a user, deduplicating identical content by
// SHA-256. The quota check, ref-count maintenance, counter updates and the
// physical write all happen inside one ledger transaction: novel content is
// only written to disk after the quota check passes on the locked user row.
func (s *Service) Upload(ctx context.Context, userID, filename string, data io.ReadSeeker) (*UploadResult, error) {
	hash, size, err := HashContent(data)
	if err != nil {
		return nil, err
	}

	fileID, err := generateSecureToken(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate file ID: %w", err)
	}

	now := time.Now().UTC()
	file := &database.File{
		ID:         fileID,
		Filename:   sanitizeFilename(filename),
		OwnerID:    userID,
		BlobHash:   hash,
		IsPublic:   false,
		UploadedAt: now,
	}

	var (
		deduplicated bool
		wroteBlob    bool
	)
	err = s.ledger.InTx(ctx, func(tx database.LedgerTx) error {
		user, err := tx.UserForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		blob, err := tx.BlobForUpdate(ctx, hash)
		if err != nil {
			return err
		}

		deduplicated = blob != nil
		var bytesToCharge int64
		if !deduplicated {
			bytesToCharge = size
		}

		if user.StorageUsedActual+bytesToCharge > s.cfg.MaxStorageQuota {
			return ErrQuotaExceeded
		}

		if deduplicated {
			if err := tx.IncrementBlobRef(ctx, hash); err != nil {
				return err
			}
		} else {
			created, err := tx.InsertBlob(ctx, &database.Blob{
				ContentHash: hash,
				Location:    s.store.Location(hash),
				SizeBytes:   size,
				RefCount:    1,
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			if !created {
				// Lost the create race: identical content was committed
				// concurrently, so this upload references it instead.
				deduplicated = true
				bytesToCharge = 0
				if err := tx.IncrementBlobRef(ctx, hash); err != nil {
					return err
				}
			} else {
				if _, err := s.store.Save(hash, data); err != nil {
					return err
				}
				wroteBlob = true
			}
		}

		if err := tx.InsertFile(ctx, file); err != nil {
			return err
		}

		// Original always grows by the logical size; actual only grows when
		// new physical storage was consumed.
		return tx.AddUserStorage(ctx, userID, bytesToCharge, size)
	})
	if err != nil {
		if wroteBlob {
			s.discardBlob(ctx, hash)
		}
		return nil, err
	}

	slog.Info("upload processed",
		"file_id", fileID,
		"user_id", userID,
		"filename", file.Filename,
		"size_bytes", size,
		"hash", hash,
		"deduplicated", deduplicated,
	)

	return &UploadResult{
		ID:             fileID,
		Filename:       file.Filename,
		SizeBytes:      size,
		UploadedAt:     now,
		IsDeduplicated: deduplicated,
		DownloadCount:  0,
		DownloadURL:    fmt.Sprintf("%s/d/%s", s.cfg.BaseURL, fileID),
	}, nil
}

// Delete removes a user's file and releases its blob reference. The physical
// bytes are removed only when the last reference is gone, and only after the
// transaction commits; the actual-storage refund follows the same rule and
// goes to the deleting user.
func (s *Service) Delete(ctx context.Context, fileID, userID string) error {
	var releasedHash string
	err := s.ledger.InTx(ctx, func(tx database.LedgerTx) error {
		file, err := tx.FileForUpdate(ctx, fileID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrFileNotFound
			}
			return err
		}
		if file.OwnerID != userID {
			return ErrAccessDenied
		}

		// Lock order matches Upload: user row before blob row.
		if _, err := tx.UserForUpdate(ctx, userID); err != nil {
			return err
		}

		blob, err := tx.BlobForUpdate(ctx, file.BlobHash)
		if err != nil {
			return err
		}
		if blob == nil {
			return fmt.Errorf("file %s references missing blob %s", fileID, file.BlobHash)
		}
		if blob.RefCount <= 0 {
			return ErrRefCountCorrupt
		}

		if err := tx.DeleteFile(ctx, fileID); err != nil {
			return err
		}

		var actualDelta int64
		if blob.RefCount == 1 {
			// Last reference: destroy the blob record and refund the
			// actual-storage charge, since the disk space is truly freed.
			if err := tx.DeleteBlob(ctx, file.BlobHash); err != nil {
				return err
			}
			actualDelta = -blob.SizeBytes
			releasedHash = file.BlobHash
		} else {
			if _, err := tx.DecrementBlobRef(ctx, file.BlobHash); err != nil {
				return err
			}
		}

		return tx.AddUserStorage(ctx, userID, actualDelta, -blob.SizeBytes)
	})
	if err != nil {
		if errors.Is(err, ErrRefCountCorrupt) {
			slog.Error("ref count underflow detected", "file_id", fileID)
		}
		return err
	}

	if releasedHash != "" {
		// Ordered after commit; a missing file is a no-op and anything left
		// behind is picked up by the orphan sweeper.
		if err := s.store.Delete(releasedHash); err != nil {
			slog.Error("failed to remove blob bytes", "hash", releasedHash, "error", err)
		}
	}

	slog.Info("file deleted", "file_id", fileID, "user_id", userID, "blob_released", releasedHash != "")
	return nil
}

// SetVisibility flips a file's public sharing flag. Owner only.
func (s *Service) SetVisibility(ctx context.Context, fileID, userID string, isPublic bool) error {
	file, err := s.ledger.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrFileNotFound
		}
		return err
	}
	if file.OwnerID != userID {
		return ErrAccessDenied
	}

	if err := s.ledger.SetFileVisibility(ctx, fileID, isPublic); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrFileNotFound
		}
		return err
	}

	slog.Info("file visibility changed", "file_id", fileID, "is_public", isPublic)
	return nil
}

// ListFiles returns all files owned by a user. An unknown user simply has
// no files.
func (s *Service) ListFiles(ctx context.Context, userID string) ([]FileSummary, error) {
	listings, err := s.ledger.ListFiles(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]FileSummary, 0, len(listings))
	for _, l := range listings {
		summaries = append(summaries, FileSummary{
			ID:             l.ID,
			Filename:       l.Filename,
			SizeBytes:      l.SizeBytes,
			UploadedAt:     l.UploadedAt,
			IsDeduplicated: l.SharedBlob,
			IsPublic:       l.IsPublic,
			DownloadCount:  l.DownloadCount,
		})
	}
	return summaries, nil
}

// discardBlob removes blob bytes written by a transaction that did not
// commit. A concurrent upload may have committed the same content in the
// meantime, so bytes are only removed when no ledger record exists.
func (s *Service) discardBlob(ctx context.Context, hash string) {
	_, err := s.ledger.GetBlob(ctx, hash)
	if err == nil {
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		slog.Error("failed to check blob before discard", "hash", hash, "error", err)
		return
	}
	if err := s.store.Delete(hash); err != nil {
		slog.Error("failed to discard blob bytes", "hash", hash, "error", err)
	}
}
