//go:build !linux && !darwin

package fs

import (
	"context"
	"syscall"

	"bazil.org/fuse"
)

// Statfs implements the FSStatfser interface.
func (xfs *XattrFS) Statfs(_ context.Context, _ *fuse.StatfsRequest, _ *fuse.StatfsResponse) error {
	return fuse.Errno(syscall.ENOSYS)
}
