// Command ufactl manages which repository directories the daemon knows
// about: add, remove, list, init. Grounded on
// original_source/src/tools/ufactl.c's command table, but routed through
// the RPC Client Façade rather than hitting the Config Registry directly,
// per SPEC_FULL.md §C.1's unification of the original's inconsistent
// local-vs-daemon split.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/rpc/client"
	"github.com/henriquetft/ufa/internal/sysexit"
	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
)

var (
	verbose bool
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "ufactl",
		Short:         "Manage UFA repository registration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level: off, debug, info, warn, error, fatal")
	cobra.OnInitialize(func() {
		ufalog.Init(ufalog.Config{Level: ufalog.Level(logLevel)})
	})

	root.AddCommand(addCmd, removeCmd, listCmd, initCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ufactl:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if ufaerr.KindOf(err) == ufaerr.Unavailable {
		return sysexit.Unavailable
	}
	return sysexit.Usage
}

func dial() (*client.Client, error) {
	reg := config.New()
	socketPath, err := client.DefaultSocketPath(reg)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Unavailable, err, "resolve daemon socket path")
	}
	return client.Dial(socketPath)
}

var addCmd = &cobra.Command{
	Use:   "add <dir>",
	Short: "Register an existing repository directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.AddRepo(args[0]); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("added %s\n", args[0])
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <dir>",
	Short: "Unregister a repository directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.RemoveRepo(args[0]); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("removed %s\n", args[0])
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repository directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		dirs, err := c.ListRepos(false)
		if err != nil {
			return err
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
		return nil
	},
}

var noRegister bool

var initCmd = &cobra.Command{
	Use:   "init <dir>",
	Short: "Initialize a directory as a UFA repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.InitRepo(args[0], !noRegister); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("initialized %s\n", args[0])
		}
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&noRegister, "no-register", false, "initialize without registering in the config registry")
}
