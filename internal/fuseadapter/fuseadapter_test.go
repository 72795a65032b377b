package fuseadapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/require"

	"github.com/henriquetft/ufa/internal/repo"
)

func newTestStore(t *testing.T) *repo.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := repo.Init(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRootReadDirListsTagsAndMarker(t *testing.T) {
	store := newTestStore(t)
	f := filepath.Join(store.RepoPath(), "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	require.NoError(t, store.SetTag(f, "math"))

	root := &Dir{store: store, tagPath: ""}
	entries, err := root.ReadDirAll(context.Background())
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	require.Contains(t, names, "math")
	require.Contains(t, names, repo.MarkerFileName)
}

func TestLookupResolvesFileAndTag(t *testing.T) {
	store := newTestStore(t)
	f := filepath.Join(store.RepoPath(), "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	require.NoError(t, store.SetTag(f, "math"))

	root := &Dir{store: store, tagPath: ""}

	node, err := root.Lookup(context.Background(), &fuse.LookupRequest{Name: "math"}, &fuse.LookupResponse{})
	require.NoError(t, err)
	dir, ok := node.(*Dir)
	require.True(t, ok)
	require.Equal(t, "math", dir.tagPath)

	node, err = dir.Lookup(context.Background(), &fuse.LookupRequest{Name: "a.txt"}, &fuse.LookupResponse{})
	require.NoError(t, err)
	file, ok := node.(*File)
	require.True(t, ok)
	require.Equal(t, "a.txt", file.name)
}

func TestLookupMissingTagIsENOENT(t *testing.T) {
	store := newTestStore(t)
	root := &Dir{store: store, tagPath: ""}

	_, err := root.Lookup(context.Background(), &fuse.LookupRequest{Name: "nope"}, &fuse.LookupResponse{})
	require.Equal(t, fuse.ENOENT, err)
}

func TestMkdirAtRootCreatesTag(t *testing.T) {
	store := newTestStore(t)
	root := &Dir{store: store, tagPath: ""}

	node, err := root.Mkdir(context.Background(), &fuse.MkdirRequest{Name: "books"})
	require.NoError(t, err)
	dir, ok := node.(*Dir)
	require.True(t, ok)
	require.Equal(t, "books", dir.tagPath)

	exists, err := store.TagExists("books")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestMkdirBelowRootFails(t *testing.T) {
	store := newTestStore(t)
	sub := &Dir{store: store, tagPath: "math"}

	_, err := sub.Mkdir(context.Background(), &fuse.MkdirRequest{Name: "calculus"})
	require.Error(t, err)
}

func TestFileAttrReflectsRealStat(t *testing.T) {
	store := newTestStore(t)
	f := filepath.Join(store.RepoPath(), "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("hello"), 0o644))

	file := &File{store: store, name: "a.txt"}
	var attr fuse.Attr
	require.NoError(t, file.Attr(context.Background(), &attr))
	require.Equal(t, uint64(5), attr.Size)
}

func TestFileOpenAndRead(t *testing.T) {
	store := newTestStore(t)
	f := filepath.Join(store.RepoPath(), "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("hello world"), 0o644))

	file := &File{store: store, name: "a.txt"}
	handle, err := file.Open(context.Background(), &fuse.OpenRequest{}, &fuse.OpenResponse{})
	require.NoError(t, err)
	fh := handle.(*FileHandle)
	defer fh.Release(context.Background(), &fuse.ReleaseRequest{})

	resp := &fuse.ReadResponse{}
	require.NoError(t, fh.Read(context.Background(), &fuse.ReadRequest{Size: 5, Offset: 6}, resp))
	require.Equal(t, "world", string(resp.Data))
}
