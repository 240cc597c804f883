package xattr

import "syscall"

// Linux rejects values over XATTR_SIZE_MAX with E2BIG before a request
// reaches the filesystem, so the store never sees them.
const (
	platformNameMax          = 255
	platformNameErrno        = syscall.ERANGE
	platformEnforceValueSize = false
)
