//go:build linux

package mirrorfs

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/billziss-gh/cgofuse/fuse"
	"golang.org/x/sys/unix"
)

// POSIX access(2) mask bits, used by the Access upcall.
const (
	unixXOK = 1
	unixWOK = 2
	unixROK = 4
)

// fillStat converts info (as returned by a mirror-relative Stat/Lstat)
// into a fuse.Stat_t. It relies on the Linux *syscall.Stat_t shape of
// info.Sys(); if that assertion fails (should not happen on the build-tagged
// platform this package targets), only Mode and Size are populated.
func fillStat(stat *fuse.Stat_t, info os.FileInfo) {
	stat.Mode = uint32(info.Mode().Perm())
	stat.Size = info.Size()

	switch {
	case info.IsDir():
		stat.Mode |= fuse.S_IFDIR
	case info.Mode()&os.ModeSymlink != 0:
		stat.Mode |= fuse.S_IFLNK
	default:
		stat.Mode |= fuse.S_IFREG
	}

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}

	stat.Mode = st.Mode
	stat.Nlink = uint32(st.Nlink)
	stat.Uid = st.Uid
	stat.Gid = st.Gid
	stat.Rdev = uint64(st.Rdev)
	stat.Size = st.Size
	stat.Atim = fuse.Timespec{Sec: st.Atim.Sec, Nsec: st.Atim.Nsec}
	stat.Mtim = fuse.Timespec{Sec: st.Mtim.Sec, Nsec: st.Mtim.Nsec}
	stat.Ctim = fuse.Timespec{Sec: st.Ctim.Sec, Nsec: st.Ctim.Nsec}
	stat.Blksize = int64(st.Blksize)
	stat.Blocks = st.Blocks
}

// checkAccessBits runs faccessat(2) against the effective user for rel
// (resolved relative to root), the same discipline classify's isExecutable
// uses: mask is already in access(2)'s R_OK/W_OK/X_OK encoding, since
// that's what cgofuse's Access upcall hands the façade.
func checkAccessBits(root *os.Root, rel string, mask uint32) bool {
	if mask == 0 {
		return true
	}

	abs := filepath.Join(root.Name(), rel)

	return unix.Faccessat(unix.AT_FDCWD, abs, mask, unix.AT_EACCESS) == nil
}
