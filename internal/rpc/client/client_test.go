package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/repocache"
	"github.com/henriquetft/ufa/internal/rpc/server"
	"github.com/henriquetft/ufa/internal/ufaerr"
)

func startTestServer(t *testing.T) (socketPath string, repoDir string) {
	t.Helper()
	dir := t.TempDir()
	socketPath = filepath.Join(dir, "ufad.sock")
	repoDir = filepath.Join(dir, "repo")
	require.NoError(t, os.Mkdir(repoDir, 0o755))

	store, err := repo.Init(repoDir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cache := repocache.New()
	reg := config.NewWithRoot(t.TempDir())
	srv := server.New(socketPath, cache, reg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		srv.Stop()
		cache.CloseAll()
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	return socketPath, repoDir
}

func TestClientSetAndGetTags(t *testing.T) {
	socketPath, repoDir := startTestServer(t)
	f := filepath.Join(repoDir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	c, err := Dial(socketPath)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetTag(f, "math"))
	require.NoError(t, c.SetTag(f, "calculus"))

	tags, err := c.GetTags(f)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"math", "calculus"}, tags)

	all, err := c.ListTags(repoDir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"math", "calculus"}, all)
}

func TestClientSetAndGetAttr(t *testing.T) {
	socketPath, repoDir := startTestServer(t)
	f := filepath.Join(repoDir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	c, err := Dial(socketPath)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetAttr(f, "author", "me"))
	attrs, err := c.GetAttr(f)
	require.NoError(t, err)
	require.Equal(t, "me", attrs["author"])

	require.NoError(t, c.UnsetAttr(f, "author"))
	attrs, err = c.GetAttr(f)
	require.NoError(t, err)
	require.Empty(t, attrs)
}

func TestClientSearch(t *testing.T) {
	socketPath, repoDir := startTestServer(t)
	f := filepath.Join(repoDir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	c, err := Dial(socketPath)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetTag(f, "math"))

	results, err := c.Search(SearchRequest{RepoDirs: []string{repoDir}, Tags: []string{"math"}})
	require.NoError(t, err)
	require.Equal(t, []string{f}, results)
}

func TestClientMissingParamIsInvalidParams(t *testing.T) {
	socketPath, _ := startTestServer(t)

	c, err := Dial(socketPath)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.call("settag", map[string]interface{}{"filepath": "/tmp/whatever"})
	require.Error(t, err)
	require.Equal(t, ufaerr.InvalidParams, ufaerr.KindOf(err))
}

func TestDialFailsWhenNoServer(t *testing.T) {
	dir := t.TempDir()
	_, err := Dial(filepath.Join(dir, "no-such.sock"))
	require.Error(t, err)
}

func TestClientRepoLifecycle(t *testing.T) {
	socketPath, repoDir := startTestServer(t)

	c, err := Dial(socketPath)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.AddRepo(repoDir))
	dirs, err := c.ListRepos(true)
	require.NoError(t, err)
	require.Contains(t, dirs, repoDir)

	require.NoError(t, c.RemoveRepo(repoDir))
	dirs, err = c.ListRepos(true)
	require.NoError(t, err)
	require.NotContains(t, dirs, repoDir)
}

func TestClientInitRepoWithRegisterAddsToRegistry(t *testing.T) {
	socketPath, _ := startTestServer(t)
	newRepoDir := filepath.Join(t.TempDir(), "fresh")
	require.NoError(t, os.Mkdir(newRepoDir, 0o755))

	c, err := Dial(socketPath)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.InitRepo(newRepoDir, true))

	dirs, err := c.ListRepos(true)
	require.NoError(t, err)
	require.Contains(t, dirs, newRepoDir)
}
