package types

import "time"

// ConversationStatus is the lifecycle status of a conversation.
// The set is closed and enforced by a CHECK constraint in the schema;
// the constants here exist so callers never hand-write status strings.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusPinned   ConversationStatus = "pinned"
	StatusDeleted  ConversationStatus = "deleted"
)

// ValidConversationStatuses contains all valid conversation status values.
var ValidConversationStatuses = []ConversationStatus{
	StatusActive,
	StatusArchived,
	StatusPinned,
	StatusDeleted,
}

// IsValidConversationStatus checks if the given status is a valid conversation status.
func IsValidConversationStatus(status ConversationStatus) bool {
	for _, s := range ValidConversationStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// Priority bounds for conversations. Anything outside [-1, 1] is rejected
// by the schema's CHECK constraint.
const (
	PriorityLow    = -1
	PriorityNormal = 0
	PriorityHigh   = 1
)

// Conversation represents a single chat conversation with its organizational
// metadata. Conversations own their messages, summary, and attached files;
// deleting one cascades to all of them.
type Conversation struct {
	// Core identification fields
	ID        string    `json:"id"`         // Unique identifier (UUID)
	Title     string    `json:"title"`      // Display title
	CreatedAt time.Time `json:"created_at"` // When the conversation was created
	UpdatedAt time.Time `json:"updated_at"` // Bumped on every mutation

	// Lifecycle
	Status ConversationStatus `json:"status"` // active, archived, pinned, deleted

	// Denormalized counters and model tracking
	MessageCount int    `json:"message_count"`        // Number of messages (maintained by the store)
	ModelUsed    string `json:"model_used,omitempty"` // Last model that produced an assistant message

	// Organization
	Tags       []string               `json:"tags,omitempty"`     // Inline tag labels (JSON-encoded at rest)
	Category   string                 `json:"category,omitempty"` // Primary category
	Priority   int                    `json:"priority"`           // -1 (low), 0 (normal), 1 (high)
	IsFavorite bool                   `json:"is_favorite"`        // Starred by the user
	Metadata   map[string]interface{} `json:"metadata,omitempty"` // Arbitrary metadata blob
}

// MessageRole identifies the author of a message. Closed enum, enforced
// by a CHECK constraint on the messages table.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// IsValidMessageRole checks if the given role is one of the known roles.
func IsValidMessageRole(role MessageRole) bool {
	return role == RoleSystem || role == RoleUser || role == RoleAssistant
}

// Message is a single exchange entry inside a conversation.
// Every message belongs to exactly one conversation and is removed with it.
type Message struct {
	ID             string                 `json:"id"`                    // Unique identifier (UUID)
	ConversationID string                 `json:"conversation_id"`       // Owning conversation
	Role           MessageRole            `json:"role"`                  // system, user, assistant
	Content        string                 `json:"content"`               // Message text
	Timestamp      time.Time              `json:"timestamp"`             // When the message was produced
	TokenCount     int                    `json:"token_count,omitempty"` // Optional token usage (0 = unknown, stored as NULL)
	Metadata       map[string]interface{} `json:"metadata,omitempty"`    // Arbitrary metadata blob
}

// Tag is a reusable label shared across conversations via a join table.
type Tag struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`        // Unique label text
	UsageCount int       `json:"usage_count"` // Number of conversations carrying the tag
	CreatedAt  time.Time `json:"created_at"`
}

// Summary is an LLM-generated digest of a conversation. At most one
// summary exists per conversation; writing a new one replaces it.
type Summary struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	Summary         string    `json:"summary"`
	KeyTopics       []string  `json:"key_topics,omitempty"` // JSON-encoded at rest
	GeneratedAt     time.Time `json:"generated_at"`
	ModelUsed       string    `json:"model_used,omitempty"`
	ConfidenceScore float64   `json:"confidence_score"`
}
