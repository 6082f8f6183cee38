// Package validation checks identifiers taken from request paths before
// they are used to build object-store keys or passed to the metadata
// store, rejecting anything that is not a single clean path segment.
package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKnowledgeBaseID indicates the knowledge_base_id value is empty,
// malformed, or attempts path traversal.
var ErrInvalidKnowledgeBaseID = errors.New("invalid knowledge_base_id")

// ErrInvalidConversationID indicates the conversation_id value is empty,
// malformed, or attempts path traversal.
var ErrInvalidConversationID = errors.New("invalid conversation_id")

// KnowledgeBaseID checks that id is safe to use as a single object-store
// key segment, returning the cleaned id.
func KnowledgeBaseID(id string) (string, error) {
	return pathSegment(id, ErrInvalidKnowledgeBaseID)
}

// ConversationID checks that id is safe to use as a single object-store
// key segment, returning the cleaned id.
func ConversationID(id string) (string, error) {
	return pathSegment(id, ErrInvalidConversationID)
}

func pathSegment(id string, errInvalid error) (string, error) {
	if id == "" || id == "." || id == ".." {
		return "", errInvalid
	}
	if strings.ContainsAny(id, `/\`) {
		return "", errInvalid
	}

	clean := filepath.Clean(id)
	if clean != id ||
		strings.HasPrefix(clean, "..") ||
		strings.Contains(clean, string(os.PathSeparator)+"..") ||
		filepath.IsAbs(clean) {
		return "", errInvalid
	}

	return clean, nil
}
