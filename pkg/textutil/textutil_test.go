package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	require.Equal(t, "short", Preview("short", 10))
	require.Equal(t, "0123456789", Preview("0123456789", 10))
	require.Equal(t, "0123456789...", Preview("0123456789abc", 10))
	require.Equal(t, "héllo...", Preview("héllo wörld", 5))
}

func TestIsDigits(t *testing.T) {
	table := []struct {
		input    string
		expected bool
	}{
		{input: "12345", expected: true},
		{input: "0", expected: true},
		{input: "", expected: false},
		{input: "12a", expected: false},
		{input: "https://ogusers.com/Thread-abc", expected: false},
		{input: "-1", expected: false},
		{input: "١٢", expected: false},
	}
	for _, row := range table {
		require.Equal(t, row.expected, IsDigits(row.input), row.input)
	}
}
