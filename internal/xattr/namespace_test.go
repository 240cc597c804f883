package xattr

import (
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		key      string
		expected Verdict
	}{
		{"user.foo", Allowed},
		{"user.", Allowed},
		{"user.a.b", Allowed},
		{"security.selinux", ForbiddenEPERM},
		{"system.posix_acl_access", ForbiddenENOTSUP},
		{"trusted.foo", ForbiddenENOTSUP},
		{"trust.foo", ForbiddenENOTSUP},
		{"foo.foo", ForbiddenENOTSUP},
		{"user", ForbiddenENOTSUP},
		{".user", ForbiddenENOTSUP},
		{"", ForbiddenENOTSUP},
		{"USER.foo", ForbiddenENOTSUP},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.key))
		})
	}
}

func TestVerdictErr(t *testing.T) {
	assert.NoError(t, Allowed.Err())
	assert.Equal(t, syscall.EPERM, Errno(ForbiddenEPERM.Err()))
	assert.Equal(t, syscall.ENOTSUP, Errno(ForbiddenENOTSUP.Err()))
}

func TestLimits(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
	}{
		{"reference", Limits{NameMax: 255, NameErrno: syscall.ERANGE, ValueMax: DefaultValueMax, EnforceValueSize: true}},
		{"constrained", Limits{NameMax: 127, NameErrno: syscall.ENAMETOOLONG, ValueMax: DefaultValueMax, EnforceValueSize: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atLimit := "user." + strings.Repeat("k", tt.limits.NameMax-len("user."))
			assert.NoError(t, tt.limits.ValidateKey(atLimit))

			err := tt.limits.ValidateKey(atLimit + "k")
			assert.ErrorIs(t, err, ErrNameTooLong)
			assert.Equal(t, tt.limits.NameErrno, Errno(err))

			assert.NoError(t, tt.limits.ValidateValue(make([]byte, DefaultValueMax)))
			err = tt.limits.ValidateValue(make([]byte, DefaultValueMax+1))
			assert.ErrorIs(t, err, ErrValueTooLarge)
			assert.Equal(t, syscall.ENOSPC, Errno(err))
		})
	}

	t.Run("unenforced value size", func(t *testing.T) {
		l := Limits{NameMax: 255, NameErrno: syscall.ERANGE, ValueMax: DefaultValueMax}
		assert.NoError(t, l.ValidateValue(make([]byte, DefaultValueMax+1)))
	})
}
