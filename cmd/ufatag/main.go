// Command ufatag manages tags on individual files: set, unset, list,
// clear, list-all, create. Grounded on
// original_source/src/tools/ufatag.c's command table; every subcommand
// goes through the RPC Client Façade, matching the original's own
// ufa_jsonrpc_api_* calls.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/rpc/client"
	"github.com/henriquetft/ufa/internal/sysexit"
	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
)

var (
	repoDir  string
	verbose  bool
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "ufatag",
		Short:         "Manage tags on UFA repository files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&repoDir, "repo", "r", "", "repository dir (default: current dir)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level: off, debug, info, warn, error, fatal")
	cobra.OnInitialize(func() {
		ufalog.Init(ufalog.Config{Level: ufalog.Level(logLevel)})
	})

	root.AddCommand(setCmd, unsetCmd, listCmd, clearCmd, listAllCmd, createCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ufatag:", err)
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

// currentRepoDir resolves -r, defaulting to the current working directory,
// and requires it to already be an initialized repository, matching
// ufatag.c's get_and_validate_repository.
func currentRepoDir() (string, error) {
	dir := repoDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if !repo.IsRepo(abs) {
		return "", ufaerr.New(ufaerr.NotInRepo, "%s is not a repository path", abs)
	}
	return abs, nil
}

var setCmd = &cobra.Command{
	Use:   "set FILE TAG",
	Short: "Set tags on file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.SetTag(path, args[1])
	},
}

var unsetCmd = &cobra.Command{
	Use:   "unset FILE TAG",
	Short: "Unset tags on file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.UnsetTag(path, args[1])
	},
}

var listCmd = &cobra.Command{
	Use:   "list FILE",
	Short: "List the tags on file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		tags, err := c.GetTags(path)
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Println(t)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear FILE",
	Short: "Unset all tags on file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.ClearTags(path)
	},
}

var listAllCmd = &cobra.Command{
	Use:   "list-all",
	Short: "List all tags of repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := currentRepoDir()
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		tags, err := c.ListTags(dir)
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Println(t)
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create TAG",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := currentRepoDir()
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		_, err = c.InsertTag(dir, args[0])
		return err
	},
}
