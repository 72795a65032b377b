// Package repo implements the Repository Store: repository lifecycle, the
// tag/attribute data model, and tag-path query semantics (spec §4.1).
//
// Inputs to per-file operations are absolute file paths; the Store resolves
// them to a name relative to its own repository directory and fails with
// ufaerr.NotInRepo if the path falls outside it.
package repo

const (
	// DBFileName is the fixed basename of a repository's metadata database.
	DBFileName = "repo.sqlite"
	// MarkerFileName is the fixed basename of a repository's self-identifying
	// marker file.
	MarkerFileName = ".ufarepo"

	dbVersionAttr  = "db_version"
	dbVersionValue = "1"
)

// MatchMode is the comparison discipline for an attribute filter.
type MatchMode int

const (
	// Equal requires an exact string match.
	Equal MatchMode = iota
	// Wildcard treats '*' in the filter value as a SQL '%' wildcard.
	Wildcard
)

// AttrFilter is (name, value-or-nil, match-mode). A nil Value matches any
// file that has the named attribute set at all, regardless of its value.
type AttrFilter struct {
	Name  string
	Value *string
	Mode  MatchMode
}

// Attr is a single (name, value) attribute pair attached to a file.
type Attr struct {
	Name  string
	Value string
}
