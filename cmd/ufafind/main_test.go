package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/ufaerr"
)

func TestParseAttrExprEqual(t *testing.T) {
	f := parseAttrExpr("author=henrique")
	require.Equal(t, "author", f.Name)
	require.Equal(t, repo.Equal, f.Mode)
	require.NotNil(t, f.Value)
	require.Equal(t, "henrique", *f.Value)
}

func TestParseAttrExprWildcard(t *testing.T) {
	f := parseAttrExpr("title~=chapter")
	require.Equal(t, "title", f.Name)
	require.Equal(t, repo.Wildcard, f.Mode)
	require.Equal(t, "chapter", *f.Value)
}

func TestParseAttrExprPresenceOnly(t *testing.T) {
	f := parseAttrExpr("reviewed")
	require.Equal(t, "reviewed", f.Name)
	require.Equal(t, repo.Equal, f.Mode)
	require.Nil(t, f.Value)
}

func TestExitCodeForUnavailableIsSysexitUnavailable(t *testing.T) {
	err := ufaerr.New(ufaerr.Unavailable, "daemon unreachable")
	require.Equal(t, 69, exitCodeFor(err))
}

func TestExitCodeForInvalidArgsIsSysexitUsage(t *testing.T) {
	err := ufaerr.New(ufaerr.InvalidArgs, "need -a or -t")
	require.Equal(t, 64, exitCodeFor(err))
}
