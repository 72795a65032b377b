// Command ufaattr manages name/value attributes on individual files: set,
// unset, get, list, describe. Grounded on
// original_source/src/tools/ufaattr.c's command table. Unlike the
// original (which calls ufa_data_setattr/unsetattr/getattr directly,
// bypassing the daemon entirely), this port goes through the RPC Client
// Façade like every other CLI tool, per SPEC_FULL.md §C.1.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/rpc/client"
	"github.com/henriquetft/ufa/internal/sysexit"
	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
)

var (
	verbose  bool
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "ufaattr",
		Short:         "Manage attributes on UFA repository files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level: off, debug, info, warn, error, fatal")
	cobra.OnInitialize(func() {
		ufalog.Init(ufalog.Config{Level: ufalog.Level(logLevel)})
	})

	root.AddCommand(setCmd, unsetCmd, getCmd, listCmd, describeCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ufaattr:", err)
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

var setCmd = &cobra.Command{
	Use:   "set FILE ATTRIBUTE VALUE",
	Short: "Set attributes on file",
	Args:  cobra.ExactArgs(3),
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
		return c.SetAttr(path, args[1], args[2])
	},
}

var unsetCmd = &cobra.Command{
	Use:   "unset FILE ATTRIBUTE",
	Short: "Unset attributes on file",
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
		return c.UnsetAttr(path, args[1])
	},
}

var getCmd = &cobra.Command{
	Use:   "get FILE ATTRIBUTE",
	Short: "Get the value of an attribute",
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
		attrs, err := c.GetAttr(path)
		if err != nil {
			return err
		}
		value, ok := attrs[args[1]]
		if !ok {
			return ufaerr.New(ufaerr.InvalidArgs, "file has no attribute %q", args[1])
		}
		fmt.Println(value)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list FILE",
	Short: "List attributes of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := describeFile(args[0])
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe FILE",
	Short: "List attributes and values of a file",
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
		attrs, err := c.GetAttr(path)
		if err != nil {
			return err
		}
		for _, name := range sortedKeys(attrs) {
			fmt.Printf("%s=%s\n", name, attrs[name])
		}
		return nil
	},
}

func describeFile(arg string) ([]string, error) {
	path, err := filepath.Abs(arg)
	if err != nil {
		return nil, err
	}
	c, err := dial()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	attrs, err := c.GetAttr(path)
	if err != nil {
		return nil, err
	}
	return sortedKeys(attrs), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
