package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestAddIsIdempotent(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Stop()

	dir := t.TempDir()
	wd1, err := w.Add(dir, MaskMove|MaskDelete|MaskCloseWrite)
	require.NoError(t, err)
	wd2, err := w.Add(dir, MaskMove|MaskDelete|MaskCloseWrite)
	require.NoError(t, err)
	require.Equal(t, wd1, wd2)
}

func TestDeleteEvent(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Stop()

	dir := t.TempDir()
	_, err = w.Add(dir, MaskDelete)
	require.NoError(t, err)

	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	require.NoError(t, os.Remove(f))

	ev := waitEvent(t, w.Events)
	require.Equal(t, EventDelete, ev.Kind)
	require.Equal(t, f, ev.Path1)
}

func TestCloseWriteEvent(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Stop()

	dir := t.TempDir()
	_, err = w.Add(dir, MaskCloseWrite)
	require.NoError(t, err)

	f := filepath.Join(dir, "a.txt")
	fh, err := os.Create(f)
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	ev := waitEvent(t, w.Events)
	require.Equal(t, EventCloseWrite, ev.Kind)
	require.Equal(t, f, ev.Path1)
}

func TestRenameWithinSameDirIsPaired(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Stop()

	dir := t.TempDir()
	_, err = w.Add(dir, MaskMove)
	require.NoError(t, err)

	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.Rename(oldPath, newPath))

	ev := waitEvent(t, w.Events)
	require.Equal(t, EventMove, ev.Kind)
	require.Equal(t, oldPath, ev.Path1)
	require.Equal(t, newPath, ev.Path2)
}

func TestRenameAcrossWatchedDirsIsPaired(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Stop()

	srcDir, dstDir := t.TempDir(), t.TempDir()
	_, err = w.Add(srcDir, MaskMove)
	require.NoError(t, err)
	_, err = w.Add(dstDir, MaskMove)
	require.NoError(t, err)

	oldPath := filepath.Join(srcDir, "old.txt")
	newPath := filepath.Join(dstDir, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.Rename(oldPath, newPath))

	ev := waitEvent(t, w.Events)
	require.Equal(t, EventMove, ev.Kind)
	require.Equal(t, oldPath, ev.Path1)
	require.Equal(t, newPath, ev.Path2)
}

func TestRemoveWatchStopsEvents(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Stop()

	dir := t.TempDir()
	_, err = w.Add(dir, MaskDelete)
	require.NoError(t, err)
	require.NoError(t, w.Remove(dir))

	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	require.NoError(t, os.Remove(f))

	select {
	case ev := <-w.Events:
		t.Fatalf("unexpected event after Remove: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}
