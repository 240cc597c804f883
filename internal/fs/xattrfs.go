package fs

import (
	"fmt"
	"os"
	"time"

	"xattrfs/internal/logging"
	"xattrfs/internal/source"
	"xattrfs/internal/xattr"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

// Options controls the mounted view.
type Options struct {
	FSName      string // Name shown in the mount table
	AllowOther  bool   // Let users other than the mounter in
	ShowSidecar bool   // List and resolve .xattr files in the mount
	ListMax     int    // Ceiling on the size of a listxattr reply
}

// XattrFS is a passthrough view of a source directory that adds extended
// attributes backed by sidecar files. Ordinary operations go straight to
// the source; attribute calls, listings, removals and renames go through
// the xattr store and lifecycle coordinator.
type XattrFS struct {
	source    *source.Dir        // Real directory tree
	store     *xattr.Store       // Sidecar-backed attributes
	lifecycle *xattr.Coordinator // Keeps sidecars in step with targets
	opts      Options
	nodes     *nodeTable
	conn      *fuse.Conn
	done      chan error
}

// NewXattrFS creates a filesystem over src using store for attributes.
func NewXattrFS(src *source.Dir, store *xattr.Store, opts Options) *XattrFS {
	if opts.ListMax <= 0 {
		opts.ListMax = xattr.DefaultListMax
	}
	if opts.FSName == "" {
		opts.FSName = "xattrfs"
	}

	vfsLogger.Info("Creating filesystem over %s", src.Root())
	vfsLogger.Debug("Options: %+v", opts)

	xfs := &XattrFS{
		source:    src,
		store:     store,
		lifecycle: xattr.NewCoordinator(store),
		opts:      opts,
		nodes:     newNodeTable(),
	}
	return xfs
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (xfs *XattrFS) Root() (fusefs.Node, error) {
	vfsLogger.Trace("Getting root directory node")
	return xfs.nodes.lookup(source.NewPath(""), true, xfs.newNode), nil
}

func (xfs *XattrFS) newNode(p source.Path, isDir bool) pathNode {
	if isDir {
		return &Dir{node: node{fs: xfs, path: p}}
	}
	return &File{node: node{fs: xfs, path: p}}
}

// hidden reports whether name belongs to the sidecar namespace that the
// mounted view conceals.
func (xfs *XattrFS) hidden(name string) bool {
	return !xfs.opts.ShowSidecar && xattr.IsSidecarName(name)
}

func waitForMount(mountpoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountpoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount mounts the filesystem and starts serving it in the background.
// Done reports when serving stops.
func (xfs *XattrFS) Mount(mountPoint string) error {
	vfsLogger.Info("Mounting filesystem")
	vfsLogger.Debug("Mount point: %s", mountPoint)
	vfsLogger.Debug("Source directory: %s", xfs.source.Root())

	if _, err := os.ReadDir(xfs.source.Root()); err != nil {
		vfsLogger.Error("Cannot read source directory: %v", err)
		return fmt.Errorf("source directory not readable: %w", err)
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName(xfs.opts.FSName),
		fuse.Subtype("xattrfs"),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
	}
	if xfs.opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	xfs.conn = c
	xfs.done = make(chan error, 1)

	go func() {
		err := fusefs.Serve(c, xfs)
		if err != nil {
			vfsLogger.Error("FUSE server error: %v", err)
		}
		xfs.done <- err
	}()

	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		vfsLogger.Error("Mount point not ready: %v", err)
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	vfsLogger.Info("Filesystem mounted successfully")
	return nil
}

// Done is closed with the serve result once the filesystem stops serving.
func (xfs *XattrFS) Done() <-chan error {
	return xfs.done
}

// Unmount cleanly unmounts the filesystem.
func (xfs *XattrFS) Unmount(mountPoint string) error {
	vfsLogger.Info("Unmounting filesystem from: %s", mountPoint)
	if xfs.conn == nil {
		return nil
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		vfsLogger.Error("Unmount failed: %v", err)
		return err
	}
	vfsLogger.Info("Unmount completed successfully")
	return nil
}

// Close releases the FUSE connection.
func (xfs *XattrFS) Close() error {
	if xfs.conn == nil {
		return nil
	}
	return xfs.conn.Close()
}
