package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Init(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func touch(t *testing.T, dir string, name string) string {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	return full
}

func strPtr(s string) *string { return &s }

// Scenario 1 (spec §8): tag round trip.
func TestSetGetClearTags(t *testing.T) {
	store := newTestRepo(t)
	a := touch(t, store.RepoPath(), "a.txt")

	require.NoError(t, store.SetTag(a, "math"))
	require.NoError(t, store.SetTag(a, "calculus"))

	tags, err := store.GetTags(a)
	require.NoError(t, err)
	require.Equal(t, []string{"calculus", "math"}, tags)

	require.NoError(t, store.ClearTags(a))
	tags, err = store.GetTags(a)
	require.NoError(t, err)
	require.Empty(t, tags)
}

// Repeated SetTag is idempotent (spec §8 invariant).
func TestSetTagIdempotent(t *testing.T) {
	store := newTestRepo(t)
	a := touch(t, store.RepoPath(), "a.txt")

	require.NoError(t, store.SetTag(a, "math"))
	require.NoError(t, store.SetTag(a, "math"))

	tags, err := store.GetTags(a)
	require.NoError(t, err)
	require.Equal(t, []string{"math"}, tags)
}

func TestUnsetTagIsNoopWhenAbsent(t *testing.T) {
	store := newTestRepo(t)
	a := touch(t, store.RepoPath(), "a.txt")
	require.NoError(t, store.UnsetTag(a, "math"))
}

func TestSetAttrOverwritesValue(t *testing.T) {
	store := newTestRepo(t)
	a := touch(t, store.RepoPath(), "a.txt")

	require.NoError(t, store.SetAttr(a, "author", "v1"))
	require.NoError(t, store.SetAttr(a, "author", "v2"))

	attrs, err := store.GetAttrs(a)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	require.Equal(t, "author", attrs[0].Name)
	require.Equal(t, "v2", attrs[0].Value)
}

func TestGetTagsFailsForUntrackedFile(t *testing.T) {
	store := newTestRepo(t)
	_, err := store.GetTags(filepath.Join(store.RepoPath(), "nope.txt"))
	require.Error(t, err)
}

func TestSetTagFailsIfNotARegularFile(t *testing.T) {
	store := newTestRepo(t)
	err := store.SetTag(filepath.Join(store.RepoPath(), "missing.txt"), "math")
	require.Error(t, err)
}

func TestResolveNameRejectsPathOutsideRepo(t *testing.T) {
	store := newTestRepo(t)
	_, err := store.resolveName("/definitely/not/inside")
	require.Error(t, err)
}

// Scenario 2 (spec §8): tag-path listing.
func TestListFiles(t *testing.T) {
	store := newTestRepo(t)
	a := touch(t, store.RepoPath(), "a.txt")
	require.NoError(t, store.SetTag(a, "math"))
	require.NoError(t, store.SetTag(a, "calculus"))

	root, err := store.ListFiles("/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"calculus", "math", MarkerFileName}, root)

	mathDir, err := store.ListFiles("/math")
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "calculus", MarkerFileName}, mathDir)
}

// Monotone narrowing (spec §8 invariant): listing a superset of tags never
// returns more files than the subset.
func TestListFilesMonotoneNarrowing(t *testing.T) {
	store := newTestRepo(t)
	dir := store.RepoPath()
	f1 := touch(t, dir, "f1.txt")
	f2 := touch(t, dir, "f2.txt")

	require.NoError(t, store.SetTag(f1, "math"))
	require.NoError(t, store.SetTag(f1, "calculus"))
	require.NoError(t, store.SetTag(f2, "math"))

	withMath, err := store.ListFiles("/math")
	require.NoError(t, err)
	withBoth, err := store.ListFiles("/math/calculus")
	require.NoError(t, err)

	filesOnly := func(entries []string) int {
		n := 0
		for _, e := range entries {
			if e == "f1.txt" || e == "f2.txt" {
				n++
			}
		}
		return n
	}
	require.LessOrEqual(t, filesOnly(withBoth), filesOnly(withMath))
}

func TestListFilesUnknownTagFails(t *testing.T) {
	store := newTestRepo(t)
	_, err := store.ListFiles("/nope")
	require.Error(t, err)
}

// Scenario 3 (spec §8): search with tags and attributes.
func TestSearchInRepo(t *testing.T) {
	store := newTestRepo(t)
	dir := store.RepoPath()
	f1 := touch(t, dir, "f1")
	f2 := touch(t, dir, "f2")
	f3 := touch(t, dir, "f3")

	require.NoError(t, store.SetTag(f1, "math"))
	require.NoError(t, store.SetTag(f1, "calculus"))
	require.NoError(t, store.SetAttr(f1, "author", "me"))

	require.NoError(t, store.SetTag(f2, "math"))
	require.NoError(t, store.SetAttr(f2, "author", "me"))

	require.NoError(t, store.SetTag(f3, "math"))
	require.NoError(t, store.SetTag(f3, "calculus"))
	require.NoError(t, store.SetAttr(f3, "author", "me"))

	results, err := store.SearchInRepo(
		[]AttrFilter{{Name: "author", Value: strPtr("me"), Mode: Equal}},
		[]string{"math", "calculus"})
	require.NoError(t, err)
	require.Equal(t, []string{f3}, results)
}

func TestSearchInRepoWildcard(t *testing.T) {
	store := newTestRepo(t)
	dir := store.RepoPath()
	f1 := touch(t, dir, "f1")
	require.NoError(t, store.SetAttr(f1, "title", "report-2024.pdf"))

	results, err := store.SearchInRepo(
		[]AttrFilter{{Name: "title", Value: strPtr("report-*"), Mode: Wildcard}}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{f1}, results)
}

func TestSearchInRepoNullValueMatchesAnySet(t *testing.T) {
	store := newTestRepo(t)
	dir := store.RepoPath()
	f1 := touch(t, dir, "f1")
	f2 := touch(t, dir, "f2")
	require.NoError(t, store.SetAttr(f1, "author", "anyone"))
	_ = f2 // never gets the attribute

	results, err := store.SearchInRepo([]AttrFilter{{Name: "author"}}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{f1}, results)
}

// Scenario 4 (spec §8): rename reconciliation.
func TestRenameAndRemoveFile(t *testing.T) {
	store := newTestRepo(t)
	dir := store.RepoPath()
	f1 := touch(t, dir, "f1")
	require.NoError(t, store.SetTag(f1, "t1"))

	require.NoError(t, store.RenameFile("f1", "f1b"))
	tags, err := store.GetTags(filepath.Join(dir, "f1b"))
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, tags)

	_, err = store.GetTags(f1)
	require.Error(t, err)
}

func TestRenameUnknownFileIsNoop(t *testing.T) {
	store := newTestRepo(t)
	require.NoError(t, store.RenameFile("never-existed", "also-nope"))
}

func TestRemoveFileCascadesAttributes(t *testing.T) {
	store := newTestRepo(t)
	dir := store.RepoPath()
	f1 := touch(t, dir, "f1")
	require.NoError(t, store.SetTag(f1, "t1"))
	require.NoError(t, store.SetAttr(f1, "k", "v"))

	require.NoError(t, store.RemoveFile("f1"))

	_, err := store.GetTags(f1)
	require.Error(t, err)
	_, err = store.GetAttrs(f1)
	require.Error(t, err)
}

func TestMarkerFileContainsOwnPath(t *testing.T) {
	store := newTestRepo(t)
	data, err := os.ReadFile(filepath.Join(store.RepoPath(), MarkerFileName))
	require.NoError(t, err)
	require.Equal(t, store.RepoPath()+"\n", string(data))
}

func TestIsRepoAndInsertTagExistingReturnsSameID(t *testing.T) {
	store := newTestRepo(t)
	require.True(t, IsRepo(store.RepoPath()))

	id1, err := store.InsertTag("foo")
	require.NoError(t, err)
	id2, err := store.InsertTag("foo")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Greater(t, id1, int64(0))
}

func TestResolve(t *testing.T) {
	store := newTestRepo(t)
	dir := store.RepoPath()
	f1 := touch(t, dir, "f1")
	require.NoError(t, store.SetTag(f1, "t1"))

	resolved, err := store.Resolve("/t1/f1")
	require.NoError(t, err)
	require.True(t, resolved.IsFile)
	require.Equal(t, "f1", resolved.FileName)

	resolved, err = store.Resolve("/t1")
	require.NoError(t, err)
	require.True(t, resolved.IsTag)
	require.Equal(t, []string{"t1"}, resolved.TagSegments)

	resolved, err = store.Resolve("/")
	require.NoError(t, err)
	require.True(t, resolved.IsTag)
	require.Nil(t, resolved.TagSegments)

	_, err = store.Resolve("/t1/nope")
	require.Error(t, err)
}
