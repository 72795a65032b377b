// Package fuseadapter implements the FUSE mount external-collaborator
// contract (spec §6): readdir projects Repository Store's list-files tag
// path semantics, getattr/read resolve to the real on-disk file, and mkdir
// at depth one creates a tag via insert-tag. Grounded on the teacher's
// internal/app/cotfs (bazil.org/fuse + bazil.org/fuse/fs), with the
// teacher's co-occurrence tag hierarchy (db.GetCoincidentTag(s),
// db.GetFilesWithTags) replaced by internal/repo's flat tag-set model
// (Store.ListFiles, Store.Resolve, Store.RealFilePath).
package fuseadapter

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
)

// Mount serves store's repository as a read-only (save for tag-creating
// mkdir) FUSE filesystem at mountpoint, blocking until it is unmounted.
func Mount(store *repo.Store, mountpoint string) error {
	log := ufalog.WithComponent("fuseadapter")

	c, err := fuse.Mount(mountpoint,
		fuse.FSName("ufa"),
		fuse.Subtype("ufa"),
		fuse.LocalVolume(),
		fuse.VolumeName("ufa:"+store.RepoPath()),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info().Str("repo", store.RepoPath()).Str("mountpoint", mountpoint).Msg("mounted")

	if err := fs.Serve(c, &FS{store: store}); err != nil {
		return err
	}
	<-c.Ready
	return c.MountError
}

// FS is the bazil.org/fuse/fs.FS root for one repository.
type FS struct {
	store *repo.Store
}

var _ fs.FS = (*FS)(nil)

func (f *FS) Root() (fs.Node, error) {
	return &Dir{store: f.store, tagPath: ""}, nil
}

// Dir is a node on the tag-path tree: either the root or a path of
// existing tags, per repo.Store.Resolve's disambiguation rule.
type Dir struct {
	store   *repo.Store
	tagPath string // "/"-joined tag segments; "" for the root
}

var _ fs.Node = (*Dir)(nil)
var _ fs.HandleReadDirAller = (*Dir)(nil)
var _ fs.NodeRequestLookuper = (*Dir)(nil)
var _ fs.NodeMkdirer = (*Dir)(nil)

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	info, err := os.Stat(d.store.RepoPath())
	if err != nil {
		a.Mode = os.ModeDir | 0555
		return nil
	}
	a.Mode = os.ModeDir | (info.Mode().Perm() &^ 0222)
	a.Mtime = info.ModTime()
	return nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	names, err := d.store.ListFiles(d.tagPath)
	if err != nil {
		return nil, translateErr(err)
	}

	var entries []fuse.Dirent
	for _, name := range names {
		if isRealFile(d.store, name) {
			entries = append(entries, fuse.Dirent{Name: name, Type: fuse.DT_File})
		} else {
			entries = append(entries, fuse.Dirent{Name: name, Type: fuse.DT_Dir})
		}
	}
	return entries, nil
}

func (d *Dir) Lookup(ctx context.Context, req *fuse.LookupRequest, resp *fuse.LookupResponse) (fs.Node, error) {
	resolved, err := d.store.Resolve(joinTagPath(d.tagPath, req.Name))
	if err != nil {
		return nil, translateErr(err)
	}
	if resolved.IsFile {
		return &File{store: d.store, name: resolved.FileName}, nil
	}
	return &Dir{store: d.store, tagPath: joinTagPath(d.tagPath, req.Name)}, nil
}

// Mkdir implements the contract's one write affordance: a mkdir at depth
// one creates a tag via insert-tag. Any deeper mkdir fails with NotDir,
// since tags have no hierarchy to extend into (spec §6).
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	if d.tagPath != "" {
		return nil, syscall.ENOTDIR
	}
	if _, err := d.store.InsertTag(req.Name); err != nil {
		return nil, translateErr(err)
	}
	return &Dir{store: d.store, tagPath: req.Name}, nil
}

func joinTagPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}

func isRealFile(store *repo.Store, name string) bool {
	info, err := os.Stat(store.RealFilePath(name))
	return err == nil && info.Mode().IsRegular()
}

// File is a leaf node that resolves to a real on-disk file.
type File struct {
	store *repo.Store
	name  string // relative to the repository directory
}

var _ fs.Node = (*File)(nil)
var _ fs.NodeOpener = (*File)(nil)

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	info, err := os.Stat(f.store.RealFilePath(f.name))
	if err != nil {
		return translateErr(err)
	}
	a.Size = uint64(info.Size())
	a.Mode = info.Mode().Perm() &^ 0222
	a.Mtime = info.ModTime()
	return nil
}

func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	file, err := os.Open(f.store.RealFilePath(f.name))
	if err != nil {
		return nil, translateErr(err)
	}
	resp.Flags |= fuse.OpenKeepCache
	return &FileHandle{r: file}, nil
}

// FileHandle wraps the real file's *os.File for the duration of a FUSE
// open/read/release cycle.
type FileHandle struct {
	r *os.File
}

var _ fs.Handle = (*FileHandle)(nil)
var _ fs.HandleReader = (*FileHandle)(nil)
var _ fs.HandleReleaser = (*FileHandle)(nil)

func (fh *FileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := fh.r.ReadAt(buf, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	resp.Data = buf[:n]
	return nil
}

func (fh *FileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return fh.r.Close()
}

// translateErr maps a ufaerr.Error to the nearest FUSE/syscall errno, per
// spec §6: an unresolvable tag-path leaf is ENOENT, a depth violation is
// ENOTDIR, everything else surfaces as EIO.
func translateErr(err error) error {
	if os.IsNotExist(err) {
		return fuse.ENOENT
	}
	switch ufaerr.KindOf(err) {
	case ufaerr.FileNotInDb, ufaerr.NotInRepo:
		return fuse.ENOENT
	case ufaerr.NotDir:
		return syscall.ENOTDIR
	default:
		return syscall.EIO
	}
}
