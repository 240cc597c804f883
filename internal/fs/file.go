package fs

import (
	"context"
	"io"
	"os"
	"sync"

	"xattrfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File represents a regular file, symlink or special file in the mounted
// view.
type File struct {
	node

	hmu     sync.Mutex
	handles map[*FileHandle]struct{}
}

// Open implements the NodeOpener interface, opening the underlying source file.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, _ *fuse.OpenResponse) (fusefs.Handle, error) {
	p := f.Path()
	fileLogger.Debug("Opening file %q with flags %v", p.Display(), req.Flags)

	file, err := os.OpenFile(f.fullPath(), openFlags(req.Flags), 0)
	if err != nil {
		fileLogger.Debug("Failed to open %q: %v", p.Display(), err)
		return nil, ToFuseError(err)
	}

	return f.openHandle(file), nil
}

// openHandle registers an open descriptor of f.
func (f *File) openHandle(file *os.File) *FileHandle {
	fh := &FileHandle{file: file, path: f.Path().Display(), owner: f}

	f.hmu.Lock()
	defer f.hmu.Unlock()
	if f.handles == nil {
		f.handles = make(map[*FileHandle]struct{})
	}
	f.handles[fh] = struct{}{}
	return fh
}

func (f *File) releaseHandle(fh *FileHandle) {
	f.hmu.Lock()
	defer f.hmu.Unlock()
	delete(f.handles, fh)
}

// anyHandle returns one open handle of f, or nil.
func (f *File) anyHandle() *FileHandle {
	f.hmu.Lock()
	defer f.hmu.Unlock()
	for fh := range f.handles {
		return fh
	}
	return nil
}

// Fsync implements the NodeFsyncer interface. Syncing any descriptor of
// the file flushes it, so one of the handles opened through the mount is
// used. With no handle open there is nothing written through the mount
// left to flush.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	fh := f.anyHandle()
	if fh == nil {
		return nil
	}
	if err := fh.sync(); err != nil {
		fileLogger.Error("Fsync of %q failed: %v", f.Path().Display(), err)
		return ToFuseError(err)
	}
	return nil
}

// Readlink implements the NodeReadlinker interface.
func (f *File) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	dest, err := os.Readlink(f.fullPath())
	if err != nil {
		return "", ToFuseError(err)
	}
	return dest, nil
}

// openFlags converts open(2) flags for os.OpenFile. The kernel supplies
// the offset of every write, so append mode is not passed on.
func openFlags(flags fuse.OpenFlags) int {
	return int(flags) &^ os.O_APPEND
}

// FileHandle represents an open file handle.
// It manages access to an open file descriptor from the source filesystem.
type FileHandle struct {
	file  *os.File
	path  string // For logging purposes
	owner *File
	mu    sync.RWMutex
}

func (fh *FileHandle) sync() error {
	fh.mu.RLock()
	defer fh.mu.RUnlock()
	return fh.file.Sync()
}

// Read implements the HandleReader interface, reading data from the file.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fh.mu.RLock()
	defer fh.mu.RUnlock()

	fileLogger.Trace("Reading %d bytes from file %q at offset %d",
		req.Size, fh.path, req.Offset)

	resp.Data = make([]byte, req.Size)
	n, err := fh.file.ReadAt(resp.Data, req.Offset)
	if err != nil && err != io.EOF {
		fileLogger.Error("Failed to read from file: %v", err)
		return ToFuseError(err)
	}

	resp.Data = resp.Data[:n]
	fileLogger.Trace("Successfully read %d bytes", n)
	return nil
}

// Write implements the HandleWriter interface.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	fh.mu.RLock()
	defer fh.mu.RUnlock()

	fileLogger.Trace("Writing %d bytes to file %q at offset %d",
		len(req.Data), fh.path, req.Offset)

	n, err := fh.file.WriteAt(req.Data, req.Offset)
	resp.Size = n
	if err != nil {
		fileLogger.Error("Failed to write to file: %v", err)
		return ToFuseError(err)
	}
	return nil
}

// Flush implements the HandleFlusher interface.
func (fh *FileHandle) Flush(_ context.Context, _ *fuse.FlushRequest) error {
	return nil
}

// Release implements the HandleReleaser interface, closing the file handle.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	fileLogger.Debug("Closing file %q", fh.path)
	if fh.owner != nil {
		fh.owner.releaseHandle(fh)
	}
	return fh.file.Close()
}
