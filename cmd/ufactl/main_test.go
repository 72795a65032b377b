package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/henriquetft/ufa/internal/ufaerr"
)

func TestExitCodeForUnavailableMapsToSysexitUnavailable(t *testing.T) {
	require.Equal(t, 69, exitCodeFor(ufaerr.New(ufaerr.Unavailable, "no daemon")))
}

func TestExitCodeForOtherKindsMapToUsage(t *testing.T) {
	require.Equal(t, 64, exitCodeFor(ufaerr.New(ufaerr.InvalidArgs, "bad dir")))
}
