package repo

import "github.com/henriquetft/ufa/internal/ufaerr"

// RenameFile updates the file record's basename from oldName to newName,
// keeping all tags and attributes (spec §4.1 "rename within same
// repository"). It is a no-op (not an error) if oldName has no file
// record — that corresponds to a rename-in from outside the repository,
// for which there is no prior metadata to carry over.
func (s *Store) RenameFile(oldName string, newName string) error {
	_, found, err := s.fileIDByName(oldName)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if _, err := s.db.Exec(`UPDATE file SET name = ? WHERE name = ?`, newName, oldName); err != nil {
		return ufaerr.Wrap(ufaerr.Database, err, "rename %q to %q", oldName, newName)
	}
	return nil
}

// RemoveFile deletes the file record for name, cascading through its tag
// assignments and attributes. It is a no-op if name has no file record.
func (s *Store) RemoveFile(name string) error {
	if _, err := s.db.Exec(`DELETE FROM file WHERE name = ?`, name); err != nil {
		return ufaerr.Wrap(ufaerr.Database, err, "remove file %q", name)
	}
	return nil
}
