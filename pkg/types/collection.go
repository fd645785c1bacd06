package types

import "time"

// Default chunking parameters for new collections.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMaxSizeMB    = 100
)

// Collection is a reusable, named group of files that exists independently
// of any single conversation. Conversations reference collections through a
// non-owning join: deleting a conversation never deletes a collection it
// had attached, and vice versa.
type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // Unique display name
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Ingestion parameters applied to files added to this collection
	ChunkSize    int  `json:"chunk_size"`
	ChunkOverlap int  `json:"chunk_overlap"`
	IsTemplate   bool `json:"is_template"`  // Template collections seed new ones
	MaxSizeMB    int  `json:"max_size_mb"`  // Soft cap on total file size
}

// CollectionFile is a file tracked inside a collection. The checksum is a
// SHA-256 hex digest used for integrity verification only; it is not unique
// across rows, so the same content may appear under different paths.
type CollectionFile struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	FilePath     string    `json:"file_path"`
	FileName     string    `json:"file_name"`
	FileSize     int64     `json:"file_size"`
	FileType     string    `json:"file_type"`
	AddedAt      time.Time `json:"added_at"`
	Checksum     string    `json:"checksum"` // SHA-256, 64 hex chars
}
