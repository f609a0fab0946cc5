package mirrorfs

import (
	"errors"
	"os"
	"syscall"

	"github.com/billziss-gh/cgofuse/fuse"
)

// errno maps a Go error from a mirror-relative operation to a negative
// FUSE errno, the shape every façade upcall must return (spec §7: "any
// failure from the mirror descriptor is propagated as its negative
// errno").
func errno(err error) int {
	if err == nil {
		return 0
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		return -int(sysErr)
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return -fuse.ENOENT
	case errors.Is(err, os.ErrPermission):
		return -fuse.EACCES
	case errors.Is(err, os.ErrExist):
		return -fuse.EEXIST
	case errors.Is(err, ErrBadPath):
		return -fuse.ENOENT
	default:
		return -fuse.EIO
	}
}
