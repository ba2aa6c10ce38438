package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store defines the interface for physical blob storage backends.
// Blobs are addressed by their content hash; the store never tracks
// reference counts, that is the ledger's job.
type Store interface {
	Save(hash string, data io.Reader) (int64, error)
	// Location returns the path a blob with this hash is (or would be)
	// stored at, without checking existence.
	Location(hash string) string
	GetPath(hash string) (string, error)
	Delete(hash string) error
	EnsureDir() error
}

// FileSystemStore keeps each blob in a single file named by its hex digest.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data to the blob file for hash and returns the bytes written.
// Writing the same hash twice is harmless: identical content lands on an
// identical file.
func (fs *FileSystemStore) Save(hash string, data io.Reader) (int64, error) {
	filePath := fs.blobPath(hash)

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create blob file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		// Clean up partial file on error
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}

	return n, nil
}

// Location returns the path for a blob hash without touching the disk.
func (fs *FileSystemStore) Location(hash string) string {
	return fs.blobPath(hash)
}

// GetPath returns the absolute path to a stored blob.
// Returns an error if the blob file does not exist.
func (fs *FileSystemStore) GetPath(hash string) (string, error) {
	filePath := fs.blobPath(hash)

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("blob %s not found on disk", hash)
		}
		return "", fmt.Errorf("failed to stat blob: %w", err)
	}

	return filePath, nil
}

// Delete removes the blob file for a hash. Deleting an absent blob is a
// no-op so the operation can be safely re-driven after a crash.
func (fs *FileSystemStore) Delete(hash string) error {
	filePath := fs.blobPath(hash)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob file %s: %w", filePath, err)
	}
	return nil
}

// ListHashes returns the content hashes of all blob files currently on disk,
// along with each file's modification time. Used by the orphan sweeper.
func (fs *FileSystemStore) ListHashes() ([]DiskBlob, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var blobs []DiskBlob
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		hash, ok := hashFromName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, DiskBlob{Hash: hash, ModTime: info.ModTime()})
	}
	return blobs, nil
}

func (fs *FileSystemStore) blobPath(hash string) string {
	return filepath.Join(fs.basePath, hash+".blob")
}

// hashFromName extracts the hex digest from a blob filename.
// Anything that is not a 64-char hex name with the blob suffix is ignored.
func hashFromName(name string) (string, bool) {
	const suffix = ".blob"
	if len(name) != 64+len(suffix) || name[64:] != suffix {
		return "", false
	}
	hash := name[:64]
	for _, c := range hash {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return "", false
		}
	}
	return hash, true
}
