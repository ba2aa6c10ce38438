package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// hashChunkSize bounds memory use while hashing arbitrarily large streams.
const hashChunkSize = 32 * 1024

// HashContent streams r through SHA-256 in fixed-size chunks and returns the
// hex digest together with the total byte count. The reader is rewound to
// the start afterwards so the same bytes can be stored in a second pass.
func HashContent(r io.ReadSeeker) (string, int64, error) {
	digest := sha256.New()
	buf := make([]byte, hashChunkSize)

	size, err := io.CopyBuffer(digest, r, buf)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read content: %w", err)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("failed to rewind content: %w", err)
	}

	return hex.EncodeToString(digest.Sum(nil)), size, nil
}
