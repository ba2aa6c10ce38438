package database

import "time"

// User is a registered account with its two storage counters.
// StorageUsedActual tracks bytes physically on disk attributable to this
// user's uploads; StorageUsedOriginal tracks the nominal sum of the file
// sizes the user retains, ignoring deduplication.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	StorageUsedActual   int64
	StorageUsedOriginal int64
	CreatedAt           time.Time
}

// Blob is one physical copy of unique content, keyed by SHA-256 hex digest.
// RefCount is the number of File rows pointing at it; the record and its
// bytes are destroyed together when RefCount reaches zero.
type Blob struct {
	ContentHash string
	Location    string
	SizeBytes   int64
	RefCount    int
	CreatedAt   time.Time
}

// File is a user-visible named reference to a Blob. Many files may share
// one blob; a file does not own its blob's lifetime.
type File struct {
	ID            string
	Filename      string
	OwnerID       string
	BlobHash      string
	IsPublic      bool
	DownloadCount int
	UploadedAt    time.Time
}

// FileListing is the list projection: a file joined with its blob.
// SharedBlob reports whether the blob currently has more than one reference.
type FileListing struct {
	File
	SizeBytes  int64
	SharedBlob bool
}

// ServerStats holds service-wide aggregates.
type ServerStats struct {
	TotalUsers    int64
	TotalFiles    int64
	TotalBlobs    int64
	PhysicalBytes int64
	LogicalBytes  int64
}
