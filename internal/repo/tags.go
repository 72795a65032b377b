package repo

import (
	"database/sql"

	"github.com/henriquetft/ufa/internal/ufaerr"
)

// ListTags returns every tag name in the repository, deduplicated (tag
// names are already unique in storage), in ascending order.
func (s *Store) ListTags() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM tag ORDER BY name ASC`)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Database, err, "list tags")
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

func (s *Store) tagIDByName(name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM tag WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, ufaerr.Wrap(ufaerr.Database, err, "lookup tag %q", name)
	}
	return id, true, nil
}

// InsertTag inserts name if absent and returns its id, or the existing id
// if the tag already exists.
func (s *Store) InsertTag(name string) (int64, error) {
	id, found, err := s.tagIDByName(name)
	if err != nil {
		return -1, err
	}
	if found {
		return id, nil
	}
	res, err := s.db.Exec(`INSERT INTO tag(name) VALUES (?)`, name)
	if err != nil {
		return -1, ufaerr.Wrap(ufaerr.Database, err, "insert tag %q", name)
	}
	return res.LastInsertId()
}

// SetTag idempotently tags filepath with tag, lazily creating the tag and
// the file record. Succeeds without change if the assignment already
// exists.
func (s *Store) SetTag(filepath string, tag string) error {
	name, err := s.resolveName(filepath)
	if err != nil {
		return err
	}
	fileID, err := s.getOrCreateFileID(name)
	if err != nil {
		return err
	}
	tagID, err := s.InsertTag(tag)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO file_tag(id_file, id_tag) VALUES (?, ?)`,
		fileID, tagID); err != nil {
		return ufaerr.Wrap(ufaerr.Database, err, "set tag %q on %q", tag, filepath)
	}
	return nil
}

// UnsetTag removes a single assignment; succeeds even if it did not exist.
func (s *Store) UnsetTag(filepath string, tag string) error {
	name, err := s.resolveName(filepath)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`
		DELETE FROM file_tag
		WHERE id_file = (SELECT id FROM file WHERE name = ?)
		  AND id_tag  = (SELECT id FROM tag  WHERE name = ?)`,
		name, tag); err != nil {
		return ufaerr.Wrap(ufaerr.Database, err, "unset tag %q on %q", tag, filepath)
	}
	return nil
}

// ClearTags removes every assignment for filepath without deleting the
// file record or its attributes.
func (s *Store) ClearTags(filepath string) error {
	name, err := s.resolveName(filepath)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`
		DELETE FROM file_tag
		WHERE id_file = (SELECT id FROM file WHERE name = ?)`, name); err != nil {
		return ufaerr.Wrap(ufaerr.Database, err, "clear tags on %q", filepath)
	}
	return nil
}

// GetTags returns the tag names for filepath in ascending order. Fails
// with FileNotInDb if filepath is not a tracked file.
func (s *Store) GetTags(filepath string) ([]string, error) {
	name, err := s.resolveName(filepath)
	if err != nil {
		return nil, err
	}
	fileID, err := s.requireFileID(name)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT t.name
		FROM tag t
		JOIN file_tag ft ON ft.id_tag = t.id
		WHERE ft.id_file = ?
		ORDER BY t.name ASC`, fileID)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Database, err, "get tags for %q", filepath)
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
