package xattr

import "syscall"

const (
	platformNameMax          = 127
	platformNameErrno        = syscall.ENAMETOOLONG
	platformEnforceValueSize = true
)
