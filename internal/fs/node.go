package fs

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"xattrfs/internal/logging"
	"xattrfs/internal/source"
	"xattrfs/internal/xattr"

	"bazil.org/fuse"
	"golang.org/x/sys/unix"
)

var (
	nodeLogger = logging.GetLogger().WithPrefix("node")
)

// node holds what files and directories share: their path in the source
// tree, stat passthrough, and extended attribute handling.
type node struct {
	fs   *XattrFS
	mu   sync.RWMutex
	path source.Path
}

func (n *node) base() *node {
	return n
}

// Path returns the node's current source path.
func (n *node) Path() source.Path {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.path
}

func (n *node) setPath(p source.Path) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = p
}

func (n *node) fullPath() string {
	return n.Path().FullPath(n.fs.source.Root())
}

// Attr implements the Node interface, copying attributes from the source.
func (n *node) Attr(_ context.Context, a *fuse.Attr) error {
	p := n.Path()
	nodeLogger.Trace("Getting attributes for %q", p.Display())

	info, err := os.Lstat(p.FullPath(n.fs.source.Root()))
	if err != nil {
		nodeLogger.Debug("Stat of %q failed: %v", p.Display(), err)
		return ToFuseError(err)
	}
	fillAttr(info, a)
	return nil
}

// Forget implements the NodeForgetter interface.
func (n *node) Forget() {
	n.fs.nodes.forget(n)
}

// Setattr implements the NodeSetattrer interface.
func (n *node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	full := n.fullPath()
	nodeLogger.Debug("Setattr on %q (valid=%v)", n.Path().Display(), req.Valid)

	if req.Valid.Mode() {
		if err := os.Chmod(full, req.Mode); err != nil {
			return ToFuseError(err)
		}
	}

	if req.Valid.Uid() || req.Valid.Gid() {
		uid, gid := -1, -1
		if req.Valid.Uid() {
			uid = int(req.Uid)
		}
		if req.Valid.Gid() {
			gid = int(req.Gid)
		}
		if err := os.Lchown(full, uid, gid); err != nil {
			return ToFuseError(err)
		}
	}

	if req.Valid.Size() {
		if err := os.Truncate(full, int64(req.Size)); err != nil {
			return ToFuseError(err)
		}
	}

	if req.Valid.Atime() || req.Valid.Mtime() || req.Valid.AtimeNow() || req.Valid.MtimeNow() {
		info, err := os.Stat(full)
		if err != nil {
			return ToFuseError(err)
		}
		atime, mtime := info.ModTime(), info.ModTime()
		now := time.Now()
		switch {
		case req.Valid.AtimeNow():
			atime = now
		case req.Valid.Atime():
			atime = req.Atime
		}
		switch {
		case req.Valid.MtimeNow():
			mtime = now
		case req.Valid.Mtime():
			mtime = req.Mtime
		}
		if err := os.Chtimes(full, atime, mtime); err != nil {
			return ToFuseError(err)
		}
	}

	return n.Attr(ctx, &resp.Attr)
}

// Getxattr implements the NodeGetxattrer interface, reading an attribute
// from the sidecar.
func (n *node) Getxattr(_ context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	p := n.Path()
	nodeLogger.Debug("Getting xattr %q for %q (size=%d)", req.Name, p.Display(), req.Size)

	value, err := n.fs.store.Get(p.String(), req.Name)
	if err != nil {
		nodeLogger.Trace("Getxattr %q on %q: %v", req.Name, p.Display(), err)
		return ToFuseError(err)
	}
	if req.Size != 0 && safeIntToUint32(len(value)) > req.Size {
		return fuse.Errno(syscall.ERANGE)
	}

	resp.Xattr = value
	return nil
}

// Listxattr implements the NodeListxattrer interface.
func (n *node) Listxattr(_ context.Context, req *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	p := n.Path()
	nodeLogger.Debug("Listing xattrs for %q (size=%d)", p.Display(), req.Size)

	keys, err := n.fs.store.List(p.String())
	if err != nil {
		return ToFuseError(err)
	}

	total := listSize(keys)
	if total > n.fs.opts.ListMax {
		nodeLogger.Warn("Attribute list of %q is %d bytes, limit %d", p.Display(), total, n.fs.opts.ListMax)
		return fuse.Errno(syscall.E2BIG)
	}
	if req.Size != 0 && safeIntToUint32(total) > req.Size {
		return fuse.Errno(syscall.ERANGE)
	}

	resp.Append(keys...)
	nodeLogger.Trace("Listed %d xattrs", len(keys))
	return nil
}

// Setxattr implements the NodeSetxattrer interface.
func (n *node) Setxattr(_ context.Context, req *fuse.SetxattrRequest) error {
	p := n.Path()
	nodeLogger.Debug("Setting xattr %q for %q (size=%d, flags=%#x)", req.Name, p.Display(), len(req.Xattr), req.Flags)

	flag, err := setFlag(req.Flags)
	if err != nil {
		return ToFuseError(err)
	}
	if err := n.fs.store.Set(p.String(), req.Name, req.Xattr, flag); err != nil {
		nodeLogger.Debug("Setxattr %q on %q: %v", req.Name, p.Display(), err)
		return ToFuseError(err)
	}
	return nil
}

// Removexattr implements the NodeRemovexattrer interface.
func (n *node) Removexattr(_ context.Context, req *fuse.RemovexattrRequest) error {
	p := n.Path()
	nodeLogger.Debug("Removing xattr %q for %q", req.Name, p.Display())

	if err := n.fs.store.Remove(p.String(), req.Name); err != nil {
		return ToFuseError(err)
	}
	return nil
}

// setFlag translates setxattr(2) flags.
func setFlag(flags uint32) (xattr.SetFlag, error) {
	create := flags&unix.XATTR_CREATE != 0
	replace := flags&unix.XATTR_REPLACE != 0
	switch {
	case create && replace:
		return 0, xattr.ErrInvalidFlag
	case create:
		return xattr.SetCreateOnly, nil
	case replace:
		return xattr.SetReplaceOnly, nil
	default:
		return xattr.SetAny, nil
	}
}

func fillAttr(info os.FileInfo, a *fuse.Attr) {
	a.Mode = info.Mode()
	a.Size = safeInt64ToUint64(info.Size())
	a.Mtime = info.ModTime()
	a.Atime = info.ModTime()
	a.Ctime = info.ModTime()
	a.BlockSize = 4096
	a.Blocks = safeInt64ToUint64((info.Size() + 511) / 512)
	fillOwner(info, a)
}
