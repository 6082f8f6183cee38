package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnowledgeBaseID_ValidAndInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		want  string
		errIs error
	}{
		{name: "empty", in: "", want: "", errIs: ErrInvalidKnowledgeBaseID},
		{name: "simple", in: "kb-1", want: "kb-1", errIs: nil},
		{name: "dot", in: ".", want: "", errIs: ErrInvalidKnowledgeBaseID},
		{name: "dotdot", in: "..", want: "", errIs: ErrInvalidKnowledgeBaseID},
		{name: "slash", in: "a/b", want: "", errIs: ErrInvalidKnowledgeBaseID},
		{name: "backslash", in: `a\b`, want: "", errIs: ErrInvalidKnowledgeBaseID},
		{name: "traversal", in: "../escape", want: "", errIs: ErrInvalidKnowledgeBaseID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KnowledgeBaseID(tt.in)
			assert.Equal(t, tt.want, got)
			assert.ErrorIs(t, err, tt.errIs)
		})
	}
}

func TestConversationID_ValidAndInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		want  string
		errIs error
	}{
		{name: "empty", in: "", want: "", errIs: ErrInvalidConversationID},
		{name: "simple", in: "conv-1", want: "conv-1", errIs: nil},
		{name: "dot", in: ".", want: "", errIs: ErrInvalidConversationID},
		{name: "dotdot", in: "..", want: "", errIs: ErrInvalidConversationID},
		{name: "slash", in: "a/b", want: "", errIs: ErrInvalidConversationID},
		{name: "backslash", in: `a\b`, want: "", errIs: ErrInvalidConversationID},
		{name: "traversal", in: "../escape", want: "", errIs: ErrInvalidConversationID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConversationID(tt.in)
			assert.Equal(t, tt.want, got)
			assert.ErrorIs(t, err, tt.errIs)
		})
	}
}
