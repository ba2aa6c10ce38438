package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"drive/internal/server/config"
	"drive/internal/server/database"
	"drive/internal/server/storage"
)

// Sentinel errors for the service layer.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrFileNotFound    = errors.New("file not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
	ErrEmailTaken      = errors.New("email already registered")
	ErrRefCountCorrupt = errors.New("blob ref count underflow")
)

// Service contains the business logic: user registration, deduplicating
// uploads, quota accounting, access-controlled downloads and deletes.
type Service struct {
	ledger database.Ledger
	store  storage.Store
	cfg    *config.Config
}

// New creates a new service.
func New(ledger database.Ledger, store storage.Store, cfg *config.Config) *Service {
	return &Service{
		ledger: ledger,
		store:  store,
		cfg:    cfg,
	}
}

// generateSecureToken produces a cryptographically secure, URL-safe random string.
func generateSecureToken(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// sanitizeFilename strips directory components and limits length.
func sanitizeFilename(name string) string {
	// Normalize Windows-style backslashes to forward slashes before
	// calling filepath.Base, which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")

	// Take only the base name
	name = filepath.Base(name)

	// Limit length. The extension itself can exceed the limit (a dotfile
	// with a 300-char "extension"), in which case it is cut too.
	if len(name) > 255 {
		ext := filepath.Ext(name)
		if cut := 255 - len(ext); cut > 0 {
			name = name[:cut] + ext
		} else {
			name = name[:255]
		}
	}

	if name == "" || name == "." {
		name = "file"
	}

	return name
}
