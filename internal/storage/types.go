// Package storage defines the store interfaces, query options, and error
// taxonomy for the conversation store. Concrete backends live in
// subpackages (sqlite).
package storage

import (
	"errors"

	"github.com/specterhq/convstore/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConstraint indicates that a write was rejected by a database
	// check or foreign key constraint (out-of-enum status or role,
	// priority out of range, orphaned foreign key). These are surfaced
	// to the caller as-is and never retried.
	ErrConstraint = errors.New("constraint violation")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for conversation
// list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 10, max: 100).
	Limit int

	// SortBy specifies the field to sort by (e.g., "updated_at", "priority").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// Status filters by conversation status. Empty means no status filter,
	// but soft-deleted conversations are still excluded unless
	// IncludeDeleted is set.
	Status types.ConversationStatus

	// Category filters by category. Empty string means no filter.
	Category string

	// FavoritesOnly restricts results to favorite conversations.
	FavoritesOnly bool

	// MinPriority filters to conversations with priority >= this value.
	// Only applied when SetMinPriority is true (zero is a real priority).
	MinPriority    int
	SetMinPriority bool

	// IncludeDeleted includes conversations with status 'deleted'.
	// By default they are excluded from all listings.
	IncludeDeleted bool
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at":    true,
		"updated_at":    true,
		"title":         true,
		"message_count": true,
		"priority":      true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "updated_at" // Default sort field
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc" // Default sort order
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 10 // Default limit
	}

	if o.Limit > 100 {
		o.Limit = 100 // Max limit
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// SearchOptions provides options for full-text message search.
type SearchOptions struct {
	// Query is the FTS query string.
	Query string

	// Limit is the maximum number of results to return (default: 10, max: 100).
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// ConversationID restricts the search to one conversation when set.
	ConversationID string
}

// Normalize applies defaults and validates the SearchOptions.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}

	if o.Limit > 100 {
		o.Limit = 100
	}

	if o.Offset < 0 {
		o.Offset = 0
	}
}

// SearchHit is one full-text match: the message plus its owning
// conversation's title for display.
type SearchHit struct {
	Message           types.Message
	ConversationTitle string
}
