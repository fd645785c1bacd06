package storage

import (
	"context"

	"github.com/specterhq/convstore/pkg/types"
)

// ConversationStore provides CRUD operations for conversations and their
// owned rows (messages, tags, summary, files). Writes that violate the
// schema's check or foreign key constraints fail with an error wrapping
// ErrConstraint.
type ConversationStore interface {
	// Create inserts a new conversation. A missing ID is generated; a
	// missing status defaults to active.
	Create(ctx context.Context, conv *types.Conversation) error

	// Get retrieves a conversation by ID.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*types.Conversation, error)

	// List retrieves conversations with pagination and filtering.
	// Soft-deleted conversations are excluded unless opts.IncludeDeleted.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Conversation], error)

	// Update rewrites a conversation's mutable fields and bumps updated_at.
	// Returns ErrNotFound if it doesn't exist.
	Update(ctx context.Context, conv *types.Conversation) error

	// SetStatus moves a conversation to the given lifecycle status.
	SetStatus(ctx context.Context, id string, status types.ConversationStatus) error

	// Delete soft-deletes a conversation (status 'deleted'). The row and
	// everything it owns stay in place.
	Delete(ctx context.Context, id string) error

	// Purge hard-deletes a conversation. The schema cascades the delete to
	// its messages, summary, files, and tag links; collections attached
	// through the join table survive.
	Purge(ctx context.Context, id string) error

	// AddMessage appends a message, bumping the conversation's
	// message_count and updated_at in the same transaction.
	AddMessage(ctx context.Context, msg *types.Message) error

	// ListMessages returns a conversation's messages ordered by timestamp.
	ListMessages(ctx context.Context, conversationID string) ([]types.Message, error)

	// SearchMessages runs a full-text query over message content.
	SearchMessages(ctx context.Context, opts SearchOptions) ([]SearchHit, error)

	// AddTag attaches a named tag, creating the tag row on first use and
	// maintaining its usage count.
	AddTag(ctx context.Context, conversationID, tagName string) error

	// RemoveTag detaches a tag and decrements its usage count.
	RemoveTag(ctx context.Context, conversationID, tagName string) error

	// ListTags returns the tags attached to a conversation.
	ListTags(ctx context.Context, conversationID string) ([]types.Tag, error)

	// SetSummary writes the conversation's summary. At most one summary
	// exists per conversation; an existing one is replaced.
	SetSummary(ctx context.Context, summary *types.Summary) error

	// GetSummary retrieves the conversation's summary.
	// Returns ErrNotFound when none has been generated.
	GetSummary(ctx context.Context, conversationID string) (*types.Summary, error)

	// AttachFile records an ingested file against a conversation.
	AttachFile(ctx context.Context, file *types.ConversationFile) error

	// ListFiles returns the files attached to a conversation.
	ListFiles(ctx context.Context, conversationID string) ([]types.ConversationFile, error)

	// UpdateFileStatus advances a file's processing status and chunk count.
	UpdateFileStatus(ctx context.Context, fileID string, status types.FileProcessingStatus, chunkCount int) error

	// Close releases any resources held by the store.
	Close() error
}

// CollectionStore manages named file collections and their association
// with conversations. The association is non-owning in both directions.
type CollectionStore interface {
	// Create inserts a new collection, applying chunking defaults.
	Create(ctx context.Context, coll *types.Collection) error

	// Get retrieves a collection by ID.
	Get(ctx context.Context, id string) (*types.Collection, error)

	// GetByName retrieves a collection by its unique name.
	GetByName(ctx context.Context, name string) (*types.Collection, error)

	// List returns all collections ordered by name.
	List(ctx context.Context) ([]types.Collection, error)

	// Update rewrites a collection's mutable fields and bumps updated_at.
	Update(ctx context.Context, coll *types.Collection) error

	// Delete removes a collection; the schema cascades to its files, tags,
	// and conversation associations. Conversations survive.
	Delete(ctx context.Context, id string) error

	// AddFile records a file in a collection. The checksum is stored for
	// integrity verification, not deduplication: the same checksum may
	// appear under any number of paths.
	AddFile(ctx context.Context, file *types.CollectionFile) error

	// ListFiles returns a collection's files ordered by file name.
	ListFiles(ctx context.Context, collectionID string) ([]types.CollectionFile, error)

	// RemoveFile deletes one file row from a collection.
	RemoveFile(ctx context.Context, fileID string) error

	// AddTag / RemoveTag / ListTags manage the collection's label set.
	AddTag(ctx context.Context, collectionID, tag string) error
	RemoveTag(ctx context.Context, collectionID, tag string) error
	ListTags(ctx context.Context, collectionID string) ([]string, error)

	// Attach associates a collection with a conversation.
	Attach(ctx context.Context, conversationID, collectionID string) error

	// Detach removes the association; both sides survive.
	Detach(ctx context.Context, conversationID, collectionID string) error

	// ListForConversation returns the collections attached to a conversation.
	ListForConversation(ctx context.Context, conversationID string) ([]types.Collection, error)

	// ListConversations returns the IDs of conversations a collection is
	// attached to.
	ListConversations(ctx context.Context, collectionID string) ([]string, error)
}
