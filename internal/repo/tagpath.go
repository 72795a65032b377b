package repo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/henriquetft/ufa/internal/ufaerr"
)

// splitTagPath splits a '/'-separated tag path into its non-empty
// segments. "/" and "" both yield the empty (root) segment list.
func splitTagPath(path string) []string {
	var segments []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// TagExists reports whether name is a tag already present in the
// repository.
func (s *Store) TagExists(name string) (bool, error) {
	_, found, err := s.tagIDByName(name)
	return found, err
}

// ListFiles implements the tag-path listing semantics of spec §4.1.
//
// An empty path ("/") lists the universe of tag names plus the marker
// file. A non-empty path "/t1/.../tn" lists every file basename whose tag
// set is a superset of {t1,...,tn}, followed by every tag that co-occurs
// on at least one of those files but is not itself in {t1,...,tn},
// followed by the marker file basename.
func (s *Store) ListFiles(path string) ([]string, error) {
	segments := splitTagPath(path)
	if len(segments) == 0 {
		tags, err := s.ListTags()
		if err != nil {
			return nil, err
		}
		return append(tags, MarkerFileName), nil
	}

	for _, seg := range segments {
		exists, err := s.TagExists(seg)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ufaerr.New(ufaerr.FileNotInDb, "%q is not a tag", seg)
		}
	}

	files, fileIDs, err := s.filesWithTags(segments)
	if err != nil {
		return nil, err
	}
	coTags, err := s.coOccurringTags(fileIDs, segments)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(files)+len(coTags)+1)
	result = append(result, files...)
	result = append(result, coTags...)
	result = append(result, MarkerFileName)
	return result, nil
}

// filesWithTags returns the basenames (and ids, in the same order) of
// files whose tag set is a superset of tags, in file-id (insertion) order.
func (s *Store) filesWithTags(tags []string) ([]string, []int64, error) {
	if len(tags) == 0 {
		return nil, nil, nil
	}
	var b strings.Builder
	b.WriteString("SELECT f.id, f.name FROM file f WHERE ")
	args := make([]interface{}, 0, len(tags))
	for i, tag := range tags {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(`EXISTS (SELECT 1 FROM file_tag ft JOIN tag t ON t.id = ft.id_tag
			WHERE ft.id_file = f.id AND t.name = ?)`)
		args = append(args, tag)
	}
	b.WriteString(" ORDER BY f.id ASC")

	rows, err := s.db.Query(b.String(), args...)
	if err != nil {
		return nil, nil, ufaerr.Wrap(ufaerr.Database, err, "list files with tags")
	}
	defer rows.Close()

	var names []string
	var ids []int64
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, nil, ufaerr.Wrap(ufaerr.Database, err, "scan file row")
		}
		names = append(names, name)
		ids = append(ids, id)
	}
	return names, ids, rows.Err()
}

// coOccurringTags returns, in ascending order, the tag names attached to
// any of fileIDs that are not themselves in exclude.
func (s *Store) coOccurringTags(fileIDs []int64, exclude []string) ([]string, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(fileIDs))
	args := make([]interface{}, 0, len(fileIDs)+len(exclude))
	for i, id := range fileIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT t.name
		FROM tag t
		JOIN file_tag ft ON ft.id_tag = t.id
		WHERE ft.id_file IN (%s)`, strings.Join(placeholders, ","))
	if len(exclude) > 0 {
		excludePlaceholders := make([]string, len(exclude))
		for i, name := range exclude {
			excludePlaceholders[i] = "?"
			args = append(args, name)
		}
		query += fmt.Sprintf(" AND t.name NOT IN (%s)", strings.Join(excludePlaceholders, ","))
	}
	query += " ORDER BY t.name ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Database, err, "list co-occurring tags")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ufaerr.Wrap(ufaerr.Database, err, "scan tag row")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ResolvedPath is the outcome of resolving a tag path's leaf component,
// per spec §4.1's disambiguation rule.
type ResolvedPath struct {
	IsFile      bool
	IsTag       bool
	FileName    string   // relative to the repository directory, set if IsFile
	TagSegments []string // set if IsTag (nil for the root)
}

// Resolve disambiguates a tag path's leaf: it resolves to a real file if
// that basename is a regular file inside the repository directory,
// otherwise to a tag if it names one. Every non-leaf segment must already
// be an existing tag.
func (s *Store) Resolve(path string) (ResolvedPath, error) {
	segments := splitTagPath(path)
	if len(segments) == 0 {
		return ResolvedPath{IsTag: true}, nil
	}
	for _, seg := range segments[:len(segments)-1] {
		exists, err := s.TagExists(seg)
		if err != nil {
			return ResolvedPath{}, err
		}
		if !exists {
			return ResolvedPath{}, ufaerr.New(ufaerr.FileNotInDb, "%q is not a tag", seg)
		}
	}

	leaf := segments[len(segments)-1]
	if s.isRegularFile(leaf) {
		return ResolvedPath{IsFile: true, FileName: leaf}, nil
	}
	exists, err := s.TagExists(leaf)
	if err != nil {
		return ResolvedPath{}, err
	}
	if exists {
		return ResolvedPath{IsTag: true, TagSegments: segments}, nil
	}
	return ResolvedPath{}, ufaerr.New(ufaerr.FileNotInDb, "%q is neither a file nor a tag", leaf)
}

// RealFilePath returns the absolute on-disk path for a relative file name
// inside the repository.
func (s *Store) RealFilePath(name string) string {
	return filepath.Join(s.repoDir, name)
}
