package fs

import (
	"context"

	"bazil.org/fuse"
	"golang.org/x/sys/unix"
)

// Statfs implements the FSStatfser interface, reporting the filesystem
// that holds the source directory.
func (xfs *XattrFS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	var st unix.Statfs_t
	if err := unix.Statfs(xfs.source.Root(), &st); err != nil {
		vfsLogger.Error("Statfs of %s failed: %v", xfs.source.Root(), err)
		return ToFuseError(err)
	}

	resp.Blocks = st.Blocks
	resp.Bfree = st.Bfree
	resp.Bavail = st.Bavail
	resp.Files = st.Files
	resp.Ffree = st.Ffree
	resp.Bsize = uint32(st.Bsize)
	resp.Frsize = uint32(st.Frsize)
	resp.Namelen = uint32(st.Namelen)
	return nil
}
