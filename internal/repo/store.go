package repo

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS tag (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS file (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS file_tag (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		id_file INTEGER NOT NULL REFERENCES file(id) ON DELETE CASCADE,
		id_tag  INTEGER NOT NULL REFERENCES tag(id),
		UNIQUE(id_file, id_tag)
	);`,
	`CREATE TABLE IF NOT EXISTS attribute (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		id_file INTEGER NOT NULL REFERENCES file(id) ON DELETE CASCADE,
		name    TEXT NOT NULL,
		value   TEXT,
		UNIQUE(id_file, name)
	);`,
	`CREATE TABLE IF NOT EXISTS meta (
		attr  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
}

// Store is a single repository's open metadata database plus the
// repository directory it describes.
type Store struct {
	db      *sql.DB
	repoDir string
}

// IsRepo reports whether dir already contains a repository database,
// without opening it.
func IsRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, DBFileName))
	return err == nil && !info.IsDir()
}

// Init opens the repository rooted at dir, creating the database, schema,
// and marker file on first use. dir must already exist.
func Init(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.File, err, "cannot resolve repository path %q", dir)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, ufaerr.New(ufaerr.NotDir, "%q is not a directory", abs)
	}

	dbPath := filepath.Join(abs, DBFileName)
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Database, err, "cannot open %q", dbPath)
	}
	db.SetMaxOpenConns(1) // the underlying driver is used in serialized mode (spec §5)

	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, ufaerr.Wrap(ufaerr.Database, err, "cannot initialize schema")
		}
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO meta(attr, value) VALUES (?, ?)`,
		dbVersionAttr, dbVersionValue); err != nil {
		db.Close()
		return nil, ufaerr.Wrap(ufaerr.Database, err, "cannot seed meta table")
	}

	if err := writeMarkerFile(abs); err != nil {
		db.Close()
		return nil, err
	}

	ufalog.WithComponent("repo").Debug().Str("dir", abs).Msg("repository opened")
	return &Store{db: db, repoDir: abs}, nil
}

func writeMarkerFile(repoDir string) error {
	markerPath := filepath.Join(repoDir, MarkerFileName)
	if info, err := os.Stat(markerPath); err == nil && !info.IsDir() {
		return nil
	}
	if err := os.WriteFile(markerPath, []byte(repoDir+"\n"), 0o644); err != nil {
		return ufaerr.Wrap(ufaerr.File, err, "cannot write marker file %q", markerPath)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RepoPath returns the repository's absolute directory path.
func (s *Store) RepoPath() string {
	return s.repoDir
}

// resolveName maps an absolute (or repo-relative) file path to the name
// stored in the file table, failing with NotInRepo if path escapes the
// repository directory.
func (s *Store) resolveName(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.repoDir, path)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(s.repoDir, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ufaerr.New(ufaerr.NotInRepo, "%q is not inside repository %q", path, s.repoDir)
	}
	return filepath.ToSlash(rel), nil
}

// isRegularFile reports whether name (relative to the repository
// directory) refers to a regular file on disk right now.
func (s *Store) isRegularFile(name string) bool {
	info, err := os.Stat(filepath.Join(s.repoDir, name))
	return err == nil && info.Mode().IsRegular()
}

func (s *Store) fileIDByName(name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM file WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, ufaerr.Wrap(ufaerr.Database, err, "lookup file %q", name)
	}
	return id, true, nil
}

// getOrCreateFileID returns the file row id for name, creating it lazily
// if name refers to a regular file on disk. Fails with FileNotInDb if name
// is neither already tracked nor currently a regular file.
func (s *Store) getOrCreateFileID(name string) (int64, error) {
	id, found, err := s.fileIDByName(name)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}
	if !s.isRegularFile(name) {
		return 0, ufaerr.New(ufaerr.FileNotInDb, "%q is not a tracked or existing file", name)
	}
	res, err := s.db.Exec(`INSERT INTO file(name) VALUES (?)`, name)
	if err != nil {
		return 0, ufaerr.Wrap(ufaerr.Database, err, "create file row for %q", name)
	}
	return res.LastInsertId()
}

func (s *Store) requireFileID(name string) (int64, error) {
	id, found, err := s.fileIDByName(name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ufaerr.New(ufaerr.FileNotInDb, "%q is not a tracked file", name)
	}
	return id, nil
}
