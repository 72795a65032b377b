package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/repocache"
	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/watcher"
)

func TestDaemonRunningFalseWhenNoPidFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "ufad.pid")
	running, pid := daemonRunning(pidPath)
	require.False(t, running)
	require.Zero(t, pid)
}

func TestDaemonRunningTrueForOwnPid(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "ufad.pid")
	require.NoError(t, writePIDFile(pidPath))

	running, pid := daemonRunning(pidPath)
	require.True(t, running)
	require.Equal(t, os.Getpid(), pid)
}

func TestDaemonRunningFalseForStalePid(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "ufad.pid")
	// A pid very unlikely to be alive in any test environment.
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(1<<30)), 0o644))

	running, _ := daemonRunning(pidPath)
	require.False(t, running)
}

func TestReloadConfigAddsAndRemovesWatches(t *testing.T) {
	reg := config.NewWithRoot(t.TempDir())
	kept := filepath.Join(t.TempDir(), "kept")
	dropped := filepath.Join(t.TempDir(), "dropped")
	added := filepath.Join(t.TempDir(), "added")
	for _, d := range []string{kept, dropped, added} {
		require.NoError(t, os.Mkdir(d, 0o755))
	}
	require.NoError(t, reg.Add(kept))
	require.NoError(t, reg.Add(dropped))

	w, err := watcher.New()
	require.NoError(t, err)
	defer w.Stop()
	require.NoError(t, reg.Remove(dropped))
	require.NoError(t, reg.Add(added))

	watched := []string{kept, dropped}
	for _, d := range watched {
		_, err := w.Add(d, watchMask)
		require.NoError(t, err)
	}

	log := zerolog.Nop()
	reloadConfig(log, reg, w, &watched)

	require.ElementsMatch(t, []string{kept, added}, watched)
}

// TestHandleEventCrossRepoRenameDeletesSourceOnly reproduces the rename
// cookie pairing a cross-directory move produces: MOVED_FROM in repo A
// and MOVED_TO in repo B arrive as one Event{Path1: A/old, Path2: B/new}.
// The fix must remove the file record from A and must not touch B at
// all, rather than renaming A's record to a basename B owns.
func TestHandleEventCrossRepoRenameDeletesSourceOnly(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	oldPath := filepath.Join(srcDir, "old.txt")
	newPath := filepath.Join(dstDir, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))

	cache := repocache.New()
	defer cache.CloseAll()

	srcStore, err := cache.Get(srcDir)
	require.NoError(t, err)
	require.NoError(t, srcStore.SetTag(oldPath, "sometag"))
	_, err = srcStore.GetTags(oldPath)
	require.NoError(t, err)

	log := zerolog.Nop()
	watched := []string{srcDir, dstDir}
	handleEvent(log, cache, nil, nil, filepath.Join(t.TempDir(), "cfg"), &watched, watcher.Event{
		Kind:  watcher.EventMove,
		Path1: oldPath,
		Path2: newPath,
	})

	_, err = srcStore.GetTags(oldPath)
	require.Error(t, err)
	require.Equal(t, ufaerr.FileNotInDb, ufaerr.KindOf(err))

	dstStore, err := cache.Get(dstDir)
	require.NoError(t, err)
	_, err = dstStore.GetTags(newPath)
	require.Error(t, err)
	require.Equal(t, ufaerr.FileNotInDb, ufaerr.KindOf(err))
}

// TestHandleEventSameRepoRenamePreservesTags is the same-directory
// counterpart: both halves resolve to one Store, so the rename updates
// the existing record in place instead of deleting it.
func TestHandleEventSameRepoRenamePreservesTags(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))

	cache := repocache.New()
	defer cache.CloseAll()

	store, err := cache.Get(dir)
	require.NoError(t, err)
	require.NoError(t, store.SetTag(oldPath, "sometag"))

	log := zerolog.Nop()
	watched := []string{dir}
	handleEvent(log, cache, nil, nil, filepath.Join(t.TempDir(), "cfg"), &watched, watcher.Event{
		Kind:  watcher.EventMove,
		Path1: oldPath,
		Path2: newPath,
	})

	tags, err := store.GetTags(newPath)
	require.NoError(t, err)
	require.Equal(t, []string{"sometag"}, tags)
}
