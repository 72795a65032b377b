// Package watcher implements the file-system event reactor (spec §4.4):
// it watches a set of directories via raw inotify and emits reconciled
// Move/Delete/CloseWrite events, pairing IN_MOVED_FROM/IN_MOVED_TO on the
// kernel rename cookie the way original_source/src/core/monitor_inotify.c
// does. golang.org/x/sys/unix is used directly (not fsnotify) because
// fsnotify's portable event type drops the cookie, which rename pairing
// requires.
package watcher

import (
	"encoding/binary"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/henriquetft/ufa/internal/ufaerr"
	"github.com/henriquetft/ufa/internal/ufalog"
)

// EventKind classifies a reconciled notification.
type EventKind int

const (
	EventMove EventKind = iota
	EventDelete
	EventCloseWrite
)

func (k EventKind) String() string {
	switch k {
	case EventMove:
		return "MOVE"
	case EventDelete:
		return "DELETE"
	case EventCloseWrite:
		return "CLOSE_WRITE"
	default:
		return "UNKNOWN"
	}
}

// Mask selects which kernel events a watched directory reacts to.
type Mask uint32

const (
	MaskMove       Mask = unix.IN_MOVE
	MaskDelete     Mask = unix.IN_DELETE
	MaskCloseWrite Mask = unix.IN_CLOSE_WRITE
)

// Event is a reconciled, path-level notification. For EventMove: both
// paths set means a rename within watched directories; only Path1 set
// means a move to outside any watched directory (treated as a delete);
// only Path2 set means a move in from outside (no prior metadata exists,
// so callers ignore it).
type Event struct {
	Kind  EventKind
	Path1 string
	Path2 string
}

const inotifyHeaderSize = 16 // wd(4) + mask(4) + cookie(4) + len(4)

// Watcher owns one inotify instance and the watch descriptors registered
// on it. All methods are safe for concurrent use.
type Watcher struct {
	mu      sync.Mutex
	fd      int
	stopFD  int
	byWD    map[int32]string // wd -> watched dir
	byDir   map[string]int32 // watched dir -> wd
	Events  chan Event
	Errors  chan error
	stopped chan struct{}
}

// New opens an inotify instance and starts its event loop in a background
// goroutine. Call Stop to terminate the loop and release both descriptors.
func New() (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, ufaerr.Wrap(ufaerr.Internal, err, "inotify_init1")
	}
	stopFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, ufaerr.Wrap(ufaerr.Internal, err, "eventfd")
	}

	w := &Watcher{
		fd:      fd,
		stopFD:  stopFD,
		byWD:    make(map[int32]string),
		byDir:   make(map[string]int32),
		Events:  make(chan Event, 64),
		Errors:  make(chan error, 1),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Add registers dir for the given events, returning its watch descriptor.
// Re-adding an already-watched directory is a no-op that returns the
// existing descriptor.
func (w *Watcher) Add(dir string, mask Mask) (int32, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, ufaerr.Wrap(ufaerr.File, err, "resolve %q", dir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if wd, ok := w.byDir[abs]; ok {
		return wd, nil
	}

	wd, err := unix.InotifyAddWatch(w.fd, abs, uint32(mask))
	if err != nil {
		return 0, ufaerr.Wrap(ufaerr.Internal, err, "inotify_add_watch %q", abs)
	}

	w.byWD[int32(wd)] = abs
	w.byDir[abs] = int32(wd)
	ufalog.WithComponent("watcher").Debug().Str("dir", abs).Int("wd", wd).Msg("watching")
	return int32(wd), nil
}

// Remove unregisters the watch for dir, if any.
func (w *Watcher) Remove(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ufaerr.Wrap(ufaerr.File, err, "resolve %q", dir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wd, ok := w.byDir[abs]
	if !ok {
		return nil
	}
	if err := unix.InotifyRmWatch(w.fd, uint32(wd)); err != nil {
		return ufaerr.Wrap(ufaerr.Internal, err, "inotify_rm_watch %q", abs)
	}
	delete(w.byDir, abs)
	delete(w.byWD, wd)
	return nil
}

// Stop signals the event loop to exit and blocks until it has.
func (w *Watcher) Stop() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(w.stopFD, buf[:])
	<-w.stopped
}

func (w *Watcher) dirForWD(wd int32) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.byWD[wd]
}

type pendingMove struct {
	wd   int32
	name string
	mask uint32
}

func (w *Watcher) loop() {
	defer close(w.Events)
	defer close(w.stopped)
	defer unix.Close(w.fd)
	defer unix.Close(w.stopFD)

	buf := make([]byte, 64*(inotifyHeaderSize+unix.NAME_MAX+1))
	pending := make(map[uint32]pendingMove)

	pollFds := []unix.PollFd{
		{Fd: int32(w.fd), Events: unix.POLLIN},
		{Fd: int32(w.stopFD), Events: unix.POLLIN},
	}

	for {
		pollFds[0].Revents = 0
		pollFds[1].Revents = 0
		if _, err := unix.Poll(pollFds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			w.Errors <- ufaerr.Wrap(ufaerr.Internal, err, "poll")
			return
		}

		if pollFds[1].Revents&unix.POLLIN != 0 {
			ufalog.WithComponent("watcher").Debug().Msg("stop requested")
			return
		}
		if pollFds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			w.Errors <- ufaerr.Wrap(ufaerr.Internal, err, "read inotify")
			return
		}

		offset := 0
		for offset+inotifyHeaderSize <= n {
			wd := int32(binary.LittleEndian.Uint32(buf[offset : offset+4]))
			mask := binary.LittleEndian.Uint32(buf[offset+4 : offset+8])
			cookie := binary.LittleEndian.Uint32(buf[offset+8 : offset+12])
			nameLen := binary.LittleEndian.Uint32(buf[offset+12 : offset+16])

			nameStart := offset + inotifyHeaderSize
			name := ""
			if nameLen > 0 {
				raw := buf[nameStart : nameStart+int(nameLen)]
				end := 0
				for end < len(raw) && raw[end] != 0 {
					end++
				}
				name = string(raw[:end])
			}
			offset = nameStart + int(nameLen)

			w.dispatchRaw(wd, mask, cookie, name, pending)
		}

		// Half-renames left unpaired at the end of this batch are
		// resolved now (spec §4.4): a lone MOVED_FROM is a move to
		// outside any watched directory; a lone MOVED_TO is a move
		// in from outside, which carries no prior metadata.
		for cookie, mv := range pending {
			dir := w.dirForWD(mv.wd)
			path := filepath.Join(dir, mv.name)
			if mv.mask&unix.IN_MOVED_TO != 0 {
				w.Events <- Event{Kind: EventMove, Path2: path}
			} else {
				w.Events <- Event{Kind: EventMove, Path1: path}
			}
			delete(pending, cookie)
		}
	}
}

func (w *Watcher) dispatchRaw(wd int32, mask, cookie uint32, name string, pending map[uint32]pendingMove) {
	dir := w.dirForWD(wd)
	if dir == "" {
		return
	}
	path := filepath.Join(dir, name)

	switch {
	case mask&unix.IN_MOVE != 0 && cookie != 0:
		if prev, ok := pending[cookie]; ok {
			prevDir := w.dirForWD(prev.wd)
			prevPath := filepath.Join(prevDir, prev.name)
			fromPath, toPath := path, prevPath
			if prev.mask&unix.IN_MOVED_FROM != 0 {
				fromPath, toPath = prevPath, path
			}
			w.Events <- Event{Kind: EventMove, Path1: fromPath, Path2: toPath}
			delete(pending, cookie)
		} else {
			pending[cookie] = pendingMove{wd: wd, name: name, mask: mask}
		}
	case mask&unix.IN_DELETE != 0:
		w.Events <- Event{Kind: EventDelete, Path1: path}
	case mask&unix.IN_CLOSE_WRITE != 0:
		w.Events <- Event{Kind: EventCloseWrite, Path1: path}
	}
}
