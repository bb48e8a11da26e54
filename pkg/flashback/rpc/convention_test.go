package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConventionKey(t *testing.T) {
	tests := []struct {
		in, camel, snake string
	}{
		{"projectId", "projectId", "project_id"},
		{"project_id", "projectId", "project_id"},
		{"typeFilters", "typeFilters", "type_filters"},
		{"page", "page", "page"},
		{"projectInput", "projectInput", "project_input"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.camel, CamelCase.Key(tt.in), tt.in)
		assert.Equal(t, tt.snake, SnakeCase.Key(tt.in), tt.in)
	}
}

func TestConventionApplyKeepsValues(t *testing.T) {
	nested := map[string]any{"scan_folders": []string{"/a"}}
	got := SnakeCase.Apply(Args{"projectInput": nested, "pageSize": 5})
	assert.Equal(t, Args{"project_input": nested, "page_size": 5}, got)
	assert.Nil(t, CamelCase.Apply(nil))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("snake", "camel")
	require.NoError(t, err)
	assert.Equal(t, Policy{Primary: SnakeCase, Alternate: CamelCase}, p)

	_, err = ParsePolicy("kebab", "camel")
	assert.Error(t, err)
}
