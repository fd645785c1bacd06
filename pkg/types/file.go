package types

import "time"

// FileProcessingStatus tracks a file's journey through the ingestion
// pipeline. Closed enum, enforced by a CHECK constraint.
type FileProcessingStatus string

const (
	FileQueued     FileProcessingStatus = "queued"
	FileProcessing FileProcessingStatus = "processing"
	FileCompleted  FileProcessingStatus = "completed"
	FileFailed     FileProcessingStatus = "failed"
)

// ValidFileProcessingStatuses contains all valid processing status values.
var ValidFileProcessingStatuses = []FileProcessingStatus{
	FileQueued,
	FileProcessing,
	FileCompleted,
	FileFailed,
}

// IsValidFileProcessingStatus checks if the given status is a valid processing status.
func IsValidFileProcessingStatus(status FileProcessingStatus) bool {
	for _, s := range ValidFileProcessingStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// ConversationFile relates a conversation to a document ingested for
// retrieval context. FileID is the identifier assigned by the external
// ingestion pipeline; it is opaque to this store.
type ConversationFile struct {
	ID               string                 `json:"id"`
	ConversationID   string                 `json:"conversation_id"`
	FileID           string                 `json:"file_id"` // External pipeline identifier
	Filename         string                 `json:"filename"`
	FilePath         string                 `json:"file_path"`
	FileSize         int64                  `json:"file_size"`
	FileType         string                 `json:"file_type"`
	UploadTimestamp  time.Time              `json:"upload_timestamp"`
	ProcessingStatus FileProcessingStatus   `json:"processing_status"`
	ChunkCount       int                    `json:"chunk_count"`
	IsEnabled        bool                   `json:"is_enabled"`
	CollectionTag    string                 `json:"collection_tag,omitempty"` // Optional grouping label
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}
