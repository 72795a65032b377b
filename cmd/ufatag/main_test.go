package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/henriquetft/ufa/internal/repo"
)

func TestCurrentRepoDirRejectsNonRepo(t *testing.T) {
	repoDir = t.TempDir()
	defer func() { repoDir = "" }()

	_, err := currentRepoDir()
	require.Error(t, err)
}

func TestCurrentRepoDirAcceptsInitializedRepo(t *testing.T) {
	dir := t.TempDir()
	store, err := repo.Init(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	repoDir = dir
	defer func() { repoDir = "" }()

	got, err := currentRepoDir()
	require.NoError(t, err)
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	require.Equal(t, abs, got)
}

func TestCurrentRepoDirDefaultsToCWD(t *testing.T) {
	dir := t.TempDir()
	store, err := repo.Init(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	repoDir = ""
	got, err := currentRepoDir()
	require.NoError(t, err)
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	require.Equal(t, abs, got)
}
