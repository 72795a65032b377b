// Command ufafind searches across repositories by tag and attribute.
// Grounded on original_source/src/tools/ufafind.c: no subcommands, just
// -r/-a/-t flags over the RPC Client Façade's Search.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/rpc/client"
	"github.com/henriquetft/ufa/internal/sysexit"
	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
)

var (
	repoDir    string
	attrExprs  []string
	tags       []string
	verbose    bool
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "ufafind",
		Short:         "Search UFA repositories by tag and attribute",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVarP(&repoDir, "repo", "r", "", "repository dir (default: current dir + config registry)")
	root.Flags().StringArrayVarP(&attrExprs, "attribute", "a", nil, "find by attribute, e.g. attr=value or attr~=value")
	root.Flags().StringArrayVarP(&tags, "tag", "t", nil, "find by tag")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.Flags().StringVarP(&logLevel, "log-level", "l", "warn", "log level: off, debug, info, warn, error, fatal")
	cobra.OnInitialize(func() {
		ufalog.Init(ufalog.Config{Level: ufalog.Level(logLevel)})
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ufafind:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch ufaerr.KindOf(err) {
	case ufaerr.Unavailable:
		return sysexit.Unavailable
	case ufaerr.InvalidArgs, ufaerr.InvalidParams:
		return sysexit.Usage
	default:
		return sysexit.Usage
	}
}

func run(cmd *cobra.Command, args []string) error {
	if len(tags) == 0 && len(attrExprs) == 0 {
		return ufaerr.New(ufaerr.InvalidArgs, "at least one of -a or -t is required")
	}

	filters := make([]repo.AttrFilter, 0, len(attrExprs))
	for _, expr := range attrExprs {
		filters = append(filters, parseAttrExpr(expr))
	}

	var dirs []string
	includeConfig := true
	if repoDir != "" {
		abs, err := filepath.Abs(repoDir)
		if err != nil {
			return err
		}
		dirs = []string{abs}
		includeConfig = false
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		if repo.IsRepo(cwd) {
			dirs = []string{cwd}
		}
	}

	reg := config.New()
	socketPath, err := client.DefaultSocketPath(reg)
	if err != nil {
		return ufaerr.Wrap(ufaerr.Unavailable, err, "resolve daemon socket path")
	}
	c, err := client.Dial(socketPath)
	if err != nil {
		return err
	}
	defer c.Close()

	results, err := c.Search(client.SearchRequest{
		RepoDirs:           dirs,
		FilterAttrs:        filters,
		Tags:               tags,
		IncludeConfigRepos: includeConfig,
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Println(r)
	}
	return nil
}

// parseAttrExpr mirrors ufafind.c's _add_attr: attr~=value is Wildcard,
// attr=value is Equal, and a bare attribute name matches on presence
// alone (Equal with a nil value). "~=" is checked first since "=" is a
// substring of it.
func parseAttrExpr(expr string) repo.AttrFilter {
	if idx := strings.Index(expr, "~="); idx != -1 {
		name, value := expr[:idx], expr[idx+2:]
		return repo.AttrFilter{Name: name, Mode: repo.Wildcard, Value: &value}
	}
	if idx := strings.Index(expr, "="); idx != -1 {
		name, value := expr[:idx], expr[idx+1:]
		return repo.AttrFilter{Name: name, Mode: repo.Equal, Value: &value}
	}
	return repo.AttrFilter{Name: expr, Mode: repo.Equal}
}
