package fs

import (
	"context"
	"os"

	"xattrfs/internal/logging"
	"xattrfs/internal/source"
	"xattrfs/internal/xattr"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"golang.org/x/sys/unix"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents a directory in the mounted view.
type Dir struct {
	node
}

// Lookup implements the NodeStringLookuper interface, resolving a child.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	child := d.Path().Join(name)
	dirLogger.Trace("Looking up %q", child.Display())

	if d.fs.hidden(name) {
		return nil, fuse.Errno(unix.ENOENT)
	}

	info, err := os.Lstat(child.FullPath(d.fs.source.Root()))
	if err != nil {
		dirLogger.Trace("Lookup of %q: %v", child.Display(), err)
		return nil, ToFuseError(err)
	}

	return d.fs.nodes.lookup(child, info.IsDir(), d.fs.newNode), nil
}

// ReadDirAll implements the HandleReadDirAller interface. Sidecar files are
// left out of the listing unless the mount was asked to show them.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	p := d.Path()
	dirLogger.Debug("Reading directory %q", p.Display())

	entries, err := os.ReadDir(d.fullPath())
	if err != nil {
		dirLogger.Error("Failed to read %q: %v", p.Display(), err)
		return nil, ToFuseError(err)
	}

	if !d.fs.opts.ShowSidecar {
		entries = xattr.FilterListing(entries, os.DirEntry.Name)
	}

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, entry := range entries {
		dirents = append(dirents, fuse.Dirent{
			Name: entry.Name(),
			Type: direntType(entry.Type()),
		})
	}

	dirLogger.Trace("Directory %q has %d entries", p.Display(), len(dirents))
	return dirents, nil
}

// Mkdir implements the NodeMkdirer interface.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	child := d.Path().Join(req.Name)
	dirLogger.Debug("Creating directory %q", child.Display())

	if d.fs.hidden(req.Name) {
		dirLogger.Warn("Refusing to create directory with sidecar name %q", child.Display())
		return nil, ToFuseError(ErrSidecarName)
	}

	if err := os.Mkdir(child.FullPath(d.fs.source.Root()), req.Mode.Perm()); err != nil {
		return nil, ToFuseError(err)
	}
	d.created(child)

	return d.fs.nodes.lookup(child, true, d.fs.newNode), nil
}

// Create implements the NodeCreater interface, creating and opening a file.
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, _ *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	child := d.Path().Join(req.Name)
	dirLogger.Debug("Creating file %q (flags=%v, mode=%v)", child.Display(), req.Flags, req.Mode)

	if d.fs.hidden(req.Name) {
		dirLogger.Warn("Refusing to create file with sidecar name %q", child.Display())
		return nil, nil, ToFuseError(ErrSidecarName)
	}

	full := child.FullPath(d.fs.source.Root())
	existed := d.fs.source.Exists(child.String())

	file, err := os.OpenFile(full, openFlags(req.Flags)|os.O_CREATE, req.Mode.Perm())
	if err != nil {
		return nil, nil, ToFuseError(err)
	}

	if !existed {
		d.created(child)
	}

	n := d.fs.nodes.lookup(child, false, d.fs.newNode).(*File)
	return n, n.openHandle(file), nil
}

// Remove implements the NodeRemover interface. The sidecar goes with the
// entry; if the entry cannot be removed its attributes stay.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	child := d.Path().Join(req.Name)
	dirLogger.Debug("Removing %q (dir=%v)", child.Display(), req.Dir)

	if d.fs.hidden(req.Name) {
		return fuse.Errno(unix.ENOENT)
	}

	full := child.FullPath(d.fs.source.Root())
	err := d.fs.lifecycle.RemoveTarget(child.String(), func() error {
		if req.Dir {
			return unix.Rmdir(full)
		}
		return unix.Unlink(full)
	})
	if err != nil {
		dirLogger.Debug("Remove of %q failed: %v", child.Display(), err)
		return ToFuseError(err)
	}

	d.fs.nodes.remove(child)
	return nil
}

// Rename implements the NodeRenamer interface. The sidecar follows the
// entry, and cached nodes at or beneath the old path take the new one.
func (d *Dir) Rename(_ context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	target, ok := newDir.(*Dir)
	if !ok {
		return fuse.Errno(unix.ENOTDIR)
	}

	oldPath := d.Path().Join(req.OldName)
	newPath := target.Path().Join(req.NewName)
	dirLogger.Debug("Renaming %q to %q", oldPath.Display(), newPath.Display())

	if d.fs.hidden(req.OldName) {
		return fuse.Errno(unix.ENOENT)
	}
	if d.fs.hidden(req.NewName) {
		dirLogger.Warn("Refusing to rename %q onto sidecar name %q", oldPath.Display(), newPath.Display())
		return ToFuseError(ErrSidecarName)
	}

	err := d.fs.lifecycle.RenameTarget(oldPath.String(), newPath.String(), func(from, to string) error {
		return os.Rename(d.fs.source.Full(from), d.fs.source.Full(to))
	})
	if err != nil {
		dirLogger.Debug("Rename of %q failed: %v", oldPath.Display(), err)
		return ToFuseError(err)
	}

	d.fs.nodes.rename(oldPath, newPath)
	return nil
}

// Symlink implements the NodeSymlinker interface.
func (d *Dir) Symlink(_ context.Context, req *fuse.SymlinkRequest) (fusefs.Node, error) {
	child := d.Path().Join(req.NewName)
	dirLogger.Debug("Creating symlink %q -> %q", child.Display(), req.Target)

	if d.fs.hidden(req.NewName) {
		dirLogger.Warn("Refusing to create symlink with sidecar name %q", child.Display())
		return nil, ToFuseError(ErrSidecarName)
	}

	if err := os.Symlink(req.Target, child.FullPath(d.fs.source.Root())); err != nil {
		return nil, ToFuseError(err)
	}
	d.created(child)

	return d.fs.nodes.lookup(child, false, d.fs.newNode), nil
}

// Link implements the NodeLinker interface. The new name starts without
// attributes: sidecars belong to names, not inodes.
func (d *Dir) Link(_ context.Context, req *fuse.LinkRequest, old fusefs.Node) (fusefs.Node, error) {
	src, ok := old.(*File)
	if !ok {
		return nil, fuse.Errno(unix.EPERM)
	}

	child := d.Path().Join(req.NewName)
	dirLogger.Debug("Linking %q to %q", child.Display(), src.Path().Display())

	if d.fs.hidden(req.NewName) {
		dirLogger.Warn("Refusing to create link with sidecar name %q", child.Display())
		return nil, ToFuseError(ErrSidecarName)
	}

	if err := os.Link(src.fullPath(), child.FullPath(d.fs.source.Root())); err != nil {
		return nil, ToFuseError(err)
	}
	d.created(child)

	return d.fs.nodes.lookup(child, false, d.fs.newNode), nil
}

// Mknod implements the NodeMknoder interface for FIFOs, sockets and device
// nodes.
func (d *Dir) Mknod(_ context.Context, req *fuse.MknodRequest) (fusefs.Node, error) {
	child := d.Path().Join(req.Name)
	dirLogger.Debug("Creating node %q (mode=%v, rdev=%d)", child.Display(), req.Mode, req.Rdev)

	if d.fs.hidden(req.Name) {
		dirLogger.Warn("Refusing to create node with sidecar name %q", child.Display())
		return nil, ToFuseError(ErrSidecarName)
	}

	full := child.FullPath(d.fs.source.Root())
	if err := unix.Mknod(full, unixMode(req.Mode), int(req.Rdev)); err != nil {
		return nil, ToFuseError(err)
	}
	d.created(child)

	return d.fs.nodes.lookup(child, false, d.fs.newNode), nil
}

// created clears attributes left behind at a freshly created path.
func (d *Dir) created(child source.Path) {
	if err := d.fs.lifecycle.OnCreate(child.String()); err != nil {
		dirLogger.Warn("Created %q but could not clear old attributes: %v", child.Display(), err)
	}
}

// unixMode converts an os.FileMode to mknod(2) mode bits.
func unixMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m&os.ModeNamedPipe != 0:
		mode |= unix.S_IFIFO
	case m&os.ModeSocket != 0:
		mode |= unix.S_IFSOCK
	case m&os.ModeCharDevice != 0:
		mode |= unix.S_IFCHR
	case m&os.ModeDevice != 0:
		mode |= unix.S_IFBLK
	default:
		mode |= unix.S_IFREG
	}
	return mode
}

func direntType(m os.FileMode) fuse.DirentType {
	switch {
	case m&os.ModeDir != 0:
		return fuse.DT_Dir
	case m&os.ModeSymlink != 0:
		return fuse.DT_Link
	case m&os.ModeNamedPipe != 0:
		return fuse.DT_FIFO
	case m&os.ModeSocket != 0:
		return fuse.DT_Socket
	case m&os.ModeCharDevice != 0:
		return fuse.DT_Char
	case m&os.ModeDevice != 0:
		return fuse.DT_Block
	default:
		return fuse.DT_File
	}
}
