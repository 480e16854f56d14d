package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  alice  ", "bob  ", "  carol"},
			expected: []string{"alice", "bob", "carol"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"alice", "bob", "alice", "carol", "bob"},
			expected: []string{"alice", "bob", "carol"},
		},
		{
			name:     "drops blanks",
			input:    []string{"", "   ", "alice"},
			expected: []string{"alice"},
		},
		{
			name:     "case is significant",
			input:    []string{"Alice", "alice"},
			expected: []string{"Alice", "alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestExpandList(t *testing.T) {
	assert.Equal(t, []string{}, ExpandList(nil))
	assert.Equal(t, []string{"a", "b", "c"}, ExpandList([]string{"a,b", " c ", "a"}))
}
