package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortedKeysOrdersAlphabetically(t *testing.T) {
	keys := sortedKeys(map[string]string{"title": "x", "author": "y", "date": "z"})
	require.Equal(t, []string{"author", "date", "title"}, keys)
}

func TestSortedKeysEmptyMap(t *testing.T) {
	require.Empty(t, sortedKeys(map[string]string{}))
}
