// Command ufamount mounts a repository's tag-path tree as a read-only
// (save for tag-creating mkdir) FUSE filesystem. Grounded on the
// teacher's cmd/cotfs/main.go's two-positional-argument shape, ported to
// the cobra surface the rest of the CLI uses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/henriquetft/ufa/internal/fuseadapter"
	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/sysexit"
	"github.com/henriquetft/ufa/internal/ufalog"
)

var (
	verbose  bool
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "ufamount <repodir> <mountpoint>",
		Short:         "Mount a UFA repository as a read-only FUSE filesystem",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.Flags().StringVarP(&logLevel, "log-level", "l", "warn", "log level: off, debug, info, warn, error, fatal")
	cobra.OnInitialize(func() {
		ufalog.Init(ufalog.Config{Level: ufalog.Level(logLevel)})
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ufamount:", err)
		os.Exit(sysexit.Unavailable)
	}
}

func run(cmd *cobra.Command, args []string) error {
	repoDir, mountpoint := args[0], args[1]

	store, err := repo.Init(repoDir)
	if err != nil {
		return err
	}
	defer store.Close()

	return fuseadapter.Mount(store, mountpoint)
}
