package repo

import (
	"strings"

	"github.com/henriquetft/ufa/internal/ufaerr"
)

// SearchInRepo selects the absolute paths of files in this repository that
// have every tag in tags AND satisfy every filter in filterAttrs, in
// database (file-id) order. It does not itself enforce the
// empty-tags-and-empty-filters InvalidArgs rule — that is a cross-repo
// concern enforced once by the caller (internal/repocache.Search).
func (s *Store) SearchInRepo(filterAttrs []AttrFilter, tags []string) ([]string, error) {
	var b strings.Builder
	b.WriteString("SELECT f.name FROM file f WHERE 1=1")
	var args []interface{}

	for _, tag := range tags {
		b.WriteString(` AND EXISTS (
			SELECT 1 FROM file_tag ft JOIN tag t ON t.id = ft.id_tag
			WHERE ft.id_file = f.id AND t.name = ?)`)
		args = append(args, tag)
	}

	for _, filter := range filterAttrs {
		clause, filterArgs, err := filter.sqlClause()
		if err != nil {
			return nil, err
		}
		b.WriteString(" AND ")
		b.WriteString(clause)
		args = append(args, filterArgs...)
	}

	b.WriteString(" ORDER BY f.id ASC")

	rows, err := s.db.Query(b.String(), args...)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Database, err, "search repository %q", s.repoDir)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ufaerr.Wrap(ufaerr.Database, err, "scan search result")
		}
		paths = append(paths, s.RealFilePath(name))
	}
	return paths, rows.Err()
}

func (f AttrFilter) sqlClause() (string, []interface{}, error) {
	if f.Value == nil {
		return `EXISTS (SELECT 1 FROM attribute a WHERE a.id_file = f.id AND a.name = ?)`,
			[]interface{}{f.Name}, nil
	}
	switch f.Mode {
	case Equal:
		return `EXISTS (SELECT 1 FROM attribute a
			WHERE a.id_file = f.id AND a.name = ? AND a.value = ?)`,
			[]interface{}{f.Name, *f.Value}, nil
	case Wildcard:
		pattern := strings.ReplaceAll(*f.Value, "*", "%")
		return `EXISTS (SELECT 1 FROM attribute a
			WHERE a.id_file = f.id AND a.name = ? AND a.value LIKE ?)`,
			[]interface{}{f.Name, pattern}, nil
	default:
		return "", nil, ufaerr.New(ufaerr.InvalidArgs, "unsupported match mode %d for %q", f.Mode, f.Name)
	}
}

// ErrInvalidSearch is returned by cross-repo orchestration (repocache.Search)
// when both the tag list and the attribute filter list are empty.
func ErrInvalidSearch() error {
	return ufaerr.New(ufaerr.InvalidArgs, "search requires at least one tag or attribute filter")
}
