// Command ufad is the daemon entrypoint: it wires the Config Registry,
// Repository Cache, Watcher Reactor, and RPC Server together, following
// original_source/src/core/ufad.c's start_ufad/reload_config/
// callback_event_repo/callback_event_config wiring order (spec §6).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/repocache"
	"github.com/henriquetft/ufa/internal/rpc/client"
	"github.com/henriquetft/ufa/internal/rpc/server"
	"github.com/henriquetft/ufa/internal/sysexit"
	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
	"github.com/henriquetft/ufa/internal/watcher"
)

const (
	pidFileName = "ufad.pid"
	watchMask   = watcher.MaskMove | watcher.MaskDelete | watcher.MaskCloseWrite
)

var (
	foreground bool
	detailed   bool
	logLevel   string
)

// exitError carries a sysexits.h-style code out of RunE, since cobra's own
// exit path always maps a non-nil error to status 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitErr wraps a startup/wiring failure; ufad.c exits EX_UNAVAILABLE for
// any failure that prevents the daemon from coming up at all.
func exitErr(err error) error {
	return &exitError{code: sysexit.Unavailable, err: err}
}

func exitErrf(code int, format string, args ...interface{}) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	root := &cobra.Command{
		Use:           "ufad",
		Short:         "UFA tagging daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().BoolVarP(&foreground, "foreground", "F", false, "run in foreground")
	root.Flags().BoolVarP(&detailed, "detailed", "L", false, "detailed log output (timestamps, caller)")
	root.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level: off, debug, info, warn, error, fatal")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ufad:", err)
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(sysexit.Usage)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ufalog.Init(ufalog.Config{Level: ufalog.Level(logLevel), Detailed: detailed})
	log := ufalog.WithComponent("ufad")

	if !foreground {
		log.Warn().Msg("this build always runs in the foreground; true daemonization is out of scope")
	}

	reg := config.New()
	cfgDir, err := reg.ConfigDirPath()
	if err != nil {
		return exitErr(err)
	}
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return exitErr(err)
	}

	pidPath := filepath.Join(cfgDir, pidFileName)
	if running, pid := daemonRunning(pidPath); running {
		return exitErrf(sysexit.Unavailable, "ufad already running (pid %d)", pid)
	}
	if err := writePIDFile(pidPath); err != nil {
		return exitErr(err)
	}
	defer os.Remove(pidPath)

	cache := repocache.New()
	defer cache.CloseAll()

	w, err := watcher.New()
	if err != nil {
		return exitErr(err)
	}
	defer w.Stop()

	watched, err := reg.List(true)
	if err != nil {
		return exitErr(err)
	}
	for _, dir := range watched {
		if _, err := w.Add(dir, watchMask); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("could not watch repository directory")
		}
	}
	if _, err := w.Add(cfgDir, watchMask); err != nil {
		return exitErr(err)
	}
	log.Info().Int("count", len(watched)).Msg("watching repository directories")

	socketPath, err := client.DefaultSocketPath(reg)
	if err != nil {
		return exitErr(err)
	}
	srv := server.New(socketPath, cache, reg)
	if err := srv.Start(); err != nil {
		return exitErr(err)
	}
	defer srv.Stop()
	log.Info().Str("socket", socketPath).Msg("RPC server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			return nil
		case ev := <-w.Events:
			handleEvent(log, cache, reg, w, cfgDir, &watched, ev)
		case watchErr := <-w.Errors:
			log.Error().Err(watchErr).Msg("watcher error")
		}
	}
}

// handleEvent mirrors callback_event_repo/callback_event_config: a
// CLOSE_WRITE on the config dir's dirs-file triggers a reload; a MOVE or
// DELETE inside a repository directory reconciles the Store's file table.
func handleEvent(log zerolog.Logger, cache *repocache.Cache, reg *config.Registry,
	w *watcher.Watcher, cfgDir string, watched *[]string, ev watcher.Event) {

	if ev.Kind == watcher.EventCloseWrite && ev.Path1 != "" &&
		filepath.Dir(ev.Path1) == cfgDir && filepath.Base(ev.Path1) == config.DirsFileName {
		reloadConfig(log, reg, w, watched)
		return
	}

	switch ev.Kind {
	case watcher.EventMove:
		handleRepoMove(log, cache, cfgDir, ev)
	case watcher.EventDelete:
		if ev.Path1 == "" || filepath.Dir(ev.Path1) == cfgDir {
			return
		}
		store, err := cache.Get(filepath.Dir(ev.Path1))
		if err != nil {
			logReconcile(log, "open repository", err)
			return
		}
		logReconcile(log, "delete", store.RemoveFile(filepath.Base(ev.Path1)))
	case watcher.EventCloseWrite:
		// content changed in place; the file's identity is unchanged.
	}
}

// handleRepoMove reconciles a MOVE event against the Store(s) it actually
// concerns, per spec §4.4: a rename within a single repository updates
// that repository's file record in place; a move across two different
// repositories has no one Store that can represent it atomically, so it
// is forwarded as a delete-from-source with no-op-on-destination, never
// as a rename executed against the source repository's own database
// (which would leave a record pointing at a basename that only exists,
// if at all, in a different repository).
func handleRepoMove(log zerolog.Logger, cache *repocache.Cache, cfgDir string, ev watcher.Event) {
	switch {
	case ev.Path1 != "" && ev.Path2 != "":
		srcDir, dstDir := filepath.Dir(ev.Path1), filepath.Dir(ev.Path2)
		if srcDir == cfgDir || dstDir == cfgDir {
			return
		}
		if srcDir == dstDir {
			store, err := cache.Get(srcDir)
			if err != nil {
				logReconcile(log, "open repository", err)
				return
			}
			logReconcile(log, "rename",
				store.RenameFile(filepath.Base(ev.Path1), filepath.Base(ev.Path2)))
			return
		}
		// Cross-repository move: delete-from-source, no-op-on-destination
		// (spec §4.4) — the destination repository never had a record of
		// this file, so there is nothing for it to reconcile.
		store, err := cache.Get(srcDir)
		if err != nil {
			logReconcile(log, "open repository", err)
			return
		}
		logReconcile(log, "cross-repo move-out", store.RemoveFile(filepath.Base(ev.Path1)))
	case ev.Path1 != "":
		if filepath.Dir(ev.Path1) == cfgDir {
			return
		}
		store, err := cache.Get(filepath.Dir(ev.Path1))
		if err != nil {
			logReconcile(log, "open repository", err)
			return
		}
		logReconcile(log, "move-out", store.RemoveFile(filepath.Base(ev.Path1)))
	case ev.Path2 != "":
		// Path2-only (a file moved in from outside any watched directory)
		// carries no prior metadata; nothing to reconcile.
	}
}

func logReconcile(log zerolog.Logger, op string, err error) {
	if err == nil {
		return
	}
	if ufaerr.KindOf(err) == ufaerr.FileNotInDb {
		log.Debug().Err(err).Str("op", op).Msg("reconcile: file not tracked")
		return
	}
	log.Error().Err(err).Str("op", op).Msg("reconcile")
}

func reloadConfig(log zerolog.Logger, reg *config.Registry, w *watcher.Watcher, watched *[]string) {
	log.Debug().Msg("dirs-file changed, reloading")

	newDirs, err := reg.List(true)
	if err != nil {
		log.Error().Err(err).Msg("reload config")
		return
	}

	old := make(map[string]bool, len(*watched))
	for _, d := range *watched {
		old[d] = true
	}
	next := make(map[string]bool, len(newDirs))
	for _, d := range newDirs {
		next[d] = true
	}

	for _, d := range newDirs {
		if !old[d] {
			if _, err := w.Add(d, watchMask); err != nil {
				log.Warn().Err(err).Str("dir", d).Msg("could not watch new repository directory")
			}
		}
	}
	for _, d := range *watched {
		if !next[d] {
			if err := w.Remove(d); err != nil {
				log.Warn().Err(err).Str("dir", d).Msg("could not unwatch removed repository directory")
			}
		}
	}

	*watched = newDirs
	log.Info().Int("count", len(newDirs)).Msg("reloaded watched repository directories")
}

func daemonRunning(pidPath string) (bool, int) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return false, 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return false, 0
	}
	return true, pid
}

func writePIDFile(pidPath string) error {
	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
