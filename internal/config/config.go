// Package config implements the Config Registry (spec §4.3): the list of
// watched repository directories, persisted as a line-oriented text file
// under the user configuration directory.
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/henriquetft/ufa/internal/ufaerr"
)

const (
	// AppDirName is the application's subdirectory under the user config dir.
	AppDirName = "ufa"
	// DirsFileName is the basename of the dirs-file inside AppDirName.
	DirsFileName = "dirs"
	// defaultHeader seeds a freshly created dirs-file.
	defaultHeader = "# UFA repository folders\n\n"
)

// Registry is the process-wide, mutex-guarded view of the dirs-file.
// The in-memory list is guarded by a single mutex; List returns a deep
// copy so callers may keep it after the lock is released (spec §5).
type Registry struct {
	mu          sync.Mutex
	cached      []string
	hasCache    bool
	userCfgRoot string // override for tests; empty means use os.UserConfigDir
}

// New returns a Registry rooted at the OS-default user config directory.
func New() *Registry {
	return &Registry{}
}

// NewWithRoot returns a Registry rooted at root instead of the OS default;
// used by tests to avoid touching the real user config directory.
func NewWithRoot(root string) *Registry {
	return &Registry{userCfgRoot: root}
}

func (r *Registry) baseConfigDir() (string, error) {
	if r.userCfgRoot != "" {
		return r.userCfgRoot, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", ufaerr.Wrap(ufaerr.File, err, "cannot determine user config directory")
	}
	return dir, nil
}

func (r *Registry) appConfigDir() (string, error) {
	base, err := r.baseConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppDirName), nil
}

// ensureConfigFile creates the app config directory (failing with
// NoBaseConfigDir if its parent does not exist) and seeds the dirs-file
// with the default header on first use.
func (r *Registry) ensureConfigFile() (string, error) {
	base, err := r.baseConfigDir()
	if err != nil {
		return "", err
	}
	appDir, err := r.appConfigDir()
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(appDir); err != nil || !info.IsDir() {
		if baseInfo, err := os.Stat(base); err != nil || !baseInfo.IsDir() {
			return "", ufaerr.New(ufaerr.NoBaseConfigDir, "base config dir does not exist: %s", base)
		}
		if err := os.Mkdir(appDir, 0o755); err != nil {
			return "", ufaerr.Wrap(ufaerr.File, err, "cannot create config dir %q", appDir)
		}
	}

	dirsFile := filepath.Join(appDir, DirsFileName)
	if _, err := os.Stat(dirsFile); err != nil {
		if err := os.WriteFile(dirsFile, []byte(defaultHeader), 0o644); err != nil {
			return "", ufaerr.Wrap(ufaerr.File, err, "cannot create dirs file %q", dirsFile)
		}
	}
	return dirsFile, nil
}

// List returns the currently-watched directories in file order, filtered
// to those that currently exist as directories. If reload is false and a
// cached list exists, it is returned without touching the file.
func (r *Registry) List(reload bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(reload)
}

func (r *Registry) listLocked(reload bool) ([]string, error) {
	if r.hasCache && !reload {
		return append([]string(nil), r.cached...), nil
	}

	dirsFile, err := r.ensureConfigFile()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(dirsFile)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.File, err, "cannot read dirs file %q", dirsFile)
	}
	defer f.Close()

	var dirs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if info, err := os.Stat(line); err == nil && info.IsDir() {
			dirs = append(dirs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, ufaerr.Wrap(ufaerr.File, err, "cannot scan dirs file %q", dirsFile)
	}

	r.cached = dirs
	r.hasCache = true
	return append([]string(nil), dirs...), nil
}

func (r *Registry) writeLocked(dirs []string) error {
	dirsFile, err := r.ensureConfigFile()
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(defaultHeader)
	for _, dir := range dirs {
		b.WriteString(dir)
		b.WriteString("\n")
	}
	if err := os.WriteFile(dirsFile, []byte(b.String()), 0o644); err != nil {
		return ufaerr.Wrap(ufaerr.File, err, "cannot write dirs file %q", dirsFile)
	}
	r.cached = dirs
	r.hasCache = true
	return nil
}

// Add appends the normalized absolute path of dir if not already present.
// Idempotent: adding an already-listed directory succeeds without change.
func (r *Registry) Add(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return ufaerr.Wrap(ufaerr.File, err, "cannot resolve %q", dir)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return ufaerr.New(ufaerr.NotDir, "%q is not a directory", dir)
	}

	dirs, err := r.listLocked(true)
	if err != nil {
		return err
	}
	for _, existing := range dirs {
		if existing == abs {
			return nil
		}
	}
	return r.writeLocked(append(dirs, abs))
}

// Remove drops the first entry equal to dir. Idempotent: removing an
// absent directory succeeds without error.
func (r *Registry) Remove(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dirs, err := r.listLocked(true)
	if err != nil {
		return err
	}
	for i, existing := range dirs {
		if existing == dir {
			remaining := append(append([]string(nil), dirs[:i]...), dirs[i+1:]...)
			return r.writeLocked(remaining)
		}
	}
	return nil
}

// DirsFilePath returns the absolute path to the dirs-file, creating the
// config directory and file if this is the first use.
func (r *Registry) DirsFilePath() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureConfigFile()
}

// ConfigDirPath returns the absolute path to the app's config directory
// (the one the Watcher Reactor subscribes to for dirs-file changes).
func (r *Registry) ConfigDirPath() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appConfigDir()
}
