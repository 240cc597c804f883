//go:build unix

package fs

import (
	"os"
	"syscall"

	"bazil.org/fuse"
)

func fillOwner(info os.FileInfo, a *fuse.Attr) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	a.Inode = uint64(st.Ino)
	a.Nlink = uint32(st.Nlink)
	a.Uid = st.Uid
	a.Gid = st.Gid
}
