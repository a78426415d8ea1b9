package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  StringList
	}{
		{name: "array", input: `{"platforms":["Web","iOS"]}`, want: StringList{"Web", "iOS"}},
		{name: "comma separated", input: `{"platforms":"Web, iOS"}`, want: StringList{"Web", " iOS"}},
		{name: "null", input: `{"platforms":null}`, want: nil},
		{name: "empty string", input: `{"platforms":""}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tool Tool
			require.NoError(t, json.Unmarshal([]byte(tt.input), &tool))
			assert.Equal(t, tt.want, tool.Platforms)
		})
	}
}

func TestStringList_UnmarshalJSON_Invalid(t *testing.T) {
	var tool Tool
	err := json.Unmarshal([]byte(`{"platforms":42}`), &tool)
	assert.Error(t, err)
}

func TestStringList_MarshalNilAsEmptyArray(t *testing.T) {
	data, err := json.Marshal(Tool{Name: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"platforms":[]`)
	assert.NotContains(t, string(data), "dedup_key")
}
