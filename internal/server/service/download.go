package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"drive/internal/server/database"
)

// Download resolves a file to its physical location under the sharing rules
// and accounts the download. userID may be empty for anonymous requests,
// which are only ever allowed on public files. The caller is responsible for
// streaming the returned path to the client.
func (s *Service) Download(ctx context.Context, fileID, userID string) (path string, filename string, err error) {
	file, err := s.ledger.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", "", ErrFileNotFound
		}
		return "", "", err
	}

	// Access rule: public, or the owner asking for their own file.
	if !file.IsPublic && (userID == "" || userID != file.OwnerID) {
		return "", "", ErrAccessDenied
	}

	blob, err := s.ledger.GetBlob(ctx, file.BlobHash)
	if err != nil {
		return "", "", fmt.Errorf("file %s references missing blob %s: %w", fileID, file.BlobHash, err)
	}

	if err := s.ledger.IncrementDownloadCount(ctx, fileID); err != nil {
		return "", "", fmt.Errorf("failed to account download: %w", err)
	}

	slog.Info("download resolved", "file_id", fileID, "user_id", userID, "hash", file.BlobHash)
	return blob.Location, file.Filename, nil
}
