package mode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected Mode
	}{
		{
			name:     "development",
			value:    "development",
			expected: Development,
		},
		{
			name:     "production",
			value:    "production",
			expected: Production,
		},
		{
			name:     "empty falls back to production",
			value:    "",
			expected: Production,
		},
		{
			name:     "unknown falls back to production",
			value:    "staging",
			expected: Production,
		},
		{
			name:     "case sensitive",
			value:    "Development",
			expected: Production,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := FromEnv(tt.value)
			require.Equal(t, tt.expected, m)
			require.Equal(t, !m.IsDevelopment(), m.IsProduction())
		})
	}
}

func TestParse(t *testing.T) {
	m, err := Parse("development")
	require.NoError(t, err)
	require.True(t, m.IsDevelopment())

	m, err = Parse(" production ")
	require.NoError(t, err)
	require.True(t, m.IsProduction())

	_, err = Parse("staging")
	require.Error(t, err)
	require.Contains(t, err.Error(), "staging")
}

func TestZeroValueIsProduction(t *testing.T) {
	var m Mode
	require.True(t, m.IsProduction())
	require.Equal(t, "production", m.String())
}
