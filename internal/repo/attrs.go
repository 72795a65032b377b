package repo

import "github.com/henriquetft/ufa/internal/ufaerr"

// SetAttr upserts (name, value) for filepath, lazily creating the file
// record if filepath is currently a regular file.
func (s *Store) SetAttr(filepath string, name string, value string) error {
	fname, err := s.resolveName(filepath)
	if err != nil {
		return err
	}
	fileID, err := s.getOrCreateFileID(fname)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`
		INSERT INTO attribute(id_file, name, value) VALUES (?, ?, ?)
		ON CONFLICT(id_file, name) DO UPDATE SET value = excluded.value`,
		fileID, name, value); err != nil {
		return ufaerr.Wrap(ufaerr.Database, err, "set attribute %q on %q", name, filepath)
	}
	return nil
}

// UnsetAttr deletes a single (name) for filepath; succeeds if absent.
func (s *Store) UnsetAttr(filepath string, name string) error {
	fname, err := s.resolveName(filepath)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`
		DELETE FROM attribute
		WHERE id_file = (SELECT id FROM file WHERE name = ?)
		  AND name = ?`, fname, name); err != nil {
		return ufaerr.Wrap(ufaerr.Database, err, "unset attribute %q on %q", name, filepath)
	}
	return nil
}

// GetAttrs returns the full (name, value) list for filepath in database
// order. Fails with FileNotInDb if filepath is not a tracked file.
func (s *Store) GetAttrs(filepath string) ([]Attr, error) {
	fname, err := s.resolveName(filepath)
	if err != nil {
		return nil, err
	}
	fileID, err := s.requireFileID(fname)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT name, value FROM attribute WHERE id_file = ? ORDER BY id ASC`, fileID)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Database, err, "get attributes for %q", filepath)
	}
	defer rows.Close()

	var attrs []Attr
	for rows.Next() {
		var a Attr
		if err := rows.Scan(&a.Name, &a.Value); err != nil {
			return nil, ufaerr.Wrap(ufaerr.Database, err, "scan attribute row")
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}
