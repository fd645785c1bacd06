package types_test

import (
	"testing"

	"github.com/specterhq/convstore/pkg/types"
)

// TestIsValidConversationStatus_AllValidStatuses tests that every documented status is accepted
func TestIsValidConversationStatus_AllValidStatuses(t *testing.T) {
	for _, status := range types.ValidConversationStatuses {
		t.Run("valid_"+string(status), func(t *testing.T) {
			if !types.IsValidConversationStatus(status) {
				t.Errorf("IsValidConversationStatus(%q) = false, want true", status)
			}
		})
	}
}

// TestIsValidConversationStatus_InvalidStatuses tests that unknown statuses are rejected
func TestIsValidConversationStatus_InvalidStatuses(t *testing.T) {
	invalid := []types.ConversationStatus{
		"",         // empty string
		"ACTIVE",   // uppercase
		"Pinned",   // mixed case
		"trashed",  // unknown value
		" active",  // leading whitespace
		"deleted ", // trailing whitespace
	}

	for _, status := range invalid {
		t.Run("invalid_"+string(status), func(t *testing.T) {
			if types.IsValidConversationStatus(status) {
				t.Errorf("IsValidConversationStatus(%q) = true, want false", status)
			}
		})
	}
}

// TestIsValidMessageRole tests the closed role enum
func TestIsValidMessageRole(t *testing.T) {
	for _, role := range []types.MessageRole{types.RoleSystem, types.RoleUser, types.RoleAssistant} {
		if !types.IsValidMessageRole(role) {
			t.Errorf("IsValidMessageRole(%q) = false, want true", role)
		}
	}

	for _, role := range []types.MessageRole{"", "moderator", "USER", "tool"} {
		if types.IsValidMessageRole(role) {
			t.Errorf("IsValidMessageRole(%q) = true, want false", role)
		}
	}
}

// TestIsValidFileProcessingStatus tests the processing status enum
func TestIsValidFileProcessingStatus(t *testing.T) {
	for _, status := range types.ValidFileProcessingStatuses {
		if !types.IsValidFileProcessingStatus(status) {
			t.Errorf("IsValidFileProcessingStatus(%q) = false, want true", status)
		}
	}

	for _, status := range []types.FileProcessingStatus{"", "done", "COMPLETED", "pending"} {
		if types.IsValidFileProcessingStatus(status) {
			t.Errorf("IsValidFileProcessingStatus(%q) = true, want false", status)
		}
	}
}
