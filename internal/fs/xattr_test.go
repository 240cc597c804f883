package fs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"testing"

	"xattrfs/internal/xattr"

	"bazil.org/fuse"
	"golang.org/x/sys/unix"
)

func TestXattrOperations(t *testing.T) {
	xfs, sourceDir := setupTestFS(t, Options{ListMax: 32})
	ctx := context.Background()

	writeSource(t, sourceDir, "f", "data")
	n, err := rootDir(t, xfs).Lookup(ctx, "f")
	if err != nil {
		t.Fatalf("Failed to lookup file: %v", err)
	}
	file := n.(*File)

	set := func(name, value string, flags uint32) error {
		return file.Setxattr(ctx, &fuse.SetxattrRequest{Name: name, Xattr: []byte(value), Flags: flags})
	}
	get := func(name string, size uint32) ([]byte, error) {
		resp := &fuse.GetxattrResponse{}
		err := file.Getxattr(ctx, &fuse.GetxattrRequest{Name: name, Size: size}, resp)
		return resp.Xattr, err
	}
	list := func(size uint32) ([]string, error) {
		resp := &fuse.ListxattrResponse{}
		if err := file.Listxattr(ctx, &fuse.ListxattrRequest{Size: size}, resp); err != nil {
			return nil, err
		}
		var names []string
		for _, part := range bytes.Split(resp.Xattr, []byte{0}) {
			if len(part) > 0 {
				names = append(names, string(part))
			}
		}
		sort.Strings(names)
		return names, nil
	}

	t.Run("EmptyList", func(t *testing.T) {
		names, err := list(0)
		if err != nil {
			t.Fatalf("Listxattr failed: %v", err)
		}
		if len(names) != 0 {
			t.Errorf("Expected no attributes, got %v", names)
		}
	})

	t.Run("SetGet", func(t *testing.T) {
		if err := set("user.a", "1", 0); err != nil {
			t.Fatalf("Setxattr failed: %v", err)
		}
		value, err := get("user.a", 0)
		if err != nil {
			t.Fatalf("Getxattr failed: %v", err)
		}
		if string(value) != "1" {
			t.Errorf("Expected 1, got %q", value)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := get("user.missing", 0)
		expectErrno(t, err, xattr.NoAttrErrno)
	})

	t.Run("ShortBuffer", func(t *testing.T) {
		if err := set("user.long", "0123456789", 0); err != nil {
			t.Fatalf("Setxattr failed: %v", err)
		}
		_, err := get("user.long", 4)
		expectErrno(t, err, syscall.ERANGE)

		value, err := get("user.long", 10)
		if err != nil || string(value) != "0123456789" {
			t.Errorf("Exact-size get failed: %q, %v", value, err)
		}

		_, err = list(3)
		expectErrno(t, err, syscall.ERANGE)
	})

	t.Run("Flags", func(t *testing.T) {
		expectErrno(t, set("user.a", "2", unix.XATTR_CREATE), syscall.EEXIST)
		expectErrno(t, set("user.new", "x", unix.XATTR_REPLACE), xattr.NoAttrErrno)
		expectErrno(t, set("user.a", "x", unix.XATTR_CREATE|unix.XATTR_REPLACE), syscall.EINVAL)

		if err := set("user.a", "3", unix.XATTR_REPLACE); err != nil {
			t.Fatalf("Replace failed: %v", err)
		}
		if err := set("user.fresh", "y", unix.XATTR_CREATE); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	})

	t.Run("Namespaces", func(t *testing.T) {
		expectErrno(t, set("security.selinux", "x", 0), syscall.EPERM)
		expectErrno(t, set("trusted.x", "x", 0), syscall.ENOTSUP)
		expectErrno(t, set("nodot", "x", 0), syscall.ENOTSUP)
	})

	t.Run("List", func(t *testing.T) {
		names, err := list(0)
		if err != nil {
			t.Fatalf("Listxattr failed: %v", err)
		}
		want := []string{"user.a", "user.fresh", "user.long"}
		if strings.Join(names, ",") != strings.Join(want, ",") {
			t.Errorf("Expected %v, got %v", want, names)
		}
	})

	t.Run("ListTooBig", func(t *testing.T) {
		// Three names above take 28 of the 32 bytes, user.b tips it over
		if err := set("user.b", "", 0); err != nil {
			t.Fatalf("Setxattr failed: %v", err)
		}
		_, err := list(0)
		expectErrno(t, err, syscall.E2BIG)

		if err := file.Removexattr(ctx, &fuse.RemovexattrRequest{Name: "user.b"}); err != nil {
			t.Fatalf("Removexattr failed: %v", err)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		for _, name := range []string{"user.a", "user.fresh", "user.long"} {
			if err := file.Removexattr(ctx, &fuse.RemovexattrRequest{Name: name}); err != nil {
				t.Fatalf("Removexattr %s failed: %v", name, err)
			}
		}
		err := file.Removexattr(ctx, &fuse.RemovexattrRequest{Name: "user.a"})
		expectErrno(t, err, xattr.NoAttrErrno)

		if _, err := os.Stat(filepath.Join(sourceDir, "f.xattr")); !os.IsNotExist(err) {
			t.Error("Sidecar should be deleted with the last attribute")
		}
	})

	t.Run("RootDirectory", func(t *testing.T) {
		root := rootDir(t, xfs)
		if err := root.Setxattr(ctx, &fuse.SetxattrRequest{Name: "user.r", Xattr: []byte("root")}); err != nil {
			t.Fatalf("Setxattr on root failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(sourceDir, ".xattr")); err != nil {
			t.Errorf("Root sidecar missing: %v", err)
		}
		entries, err := root.ReadDirAll(ctx)
		if err != nil {
			t.Fatalf("ReadDirAll failed: %v", err)
		}
		for _, e := range entries {
			if xattr.IsSidecarName(e.Name) {
				t.Errorf("Sidecar %q leaked into listing", e.Name)
			}
		}
	})
}

func TestToFuseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{"not exist", os.ErrNotExist, syscall.ENOENT},
		{"raw errno", syscall.EROFS, syscall.EROFS},
		{"no attr", xattr.ErrNoAttr, xattr.NoAttrErrno},
		{"reserved name", ErrSidecarName, syscall.EPERM},
		{"passthrough", fuse.Errno(syscall.ERANGE), syscall.ERANGE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectErrno(t, ToFuseError(tt.err), tt.want)
		})
	}

	if ToFuseError(nil) != nil {
		t.Error("nil should map to nil")
	}
}
