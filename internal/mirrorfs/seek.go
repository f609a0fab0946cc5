package mirrorfs

import (
	"fmt"
	"io"
)

// Whence mirrors the standard SEEK_SET/SEEK_CUR/SEEK_END constants used by
// the lseek(h) upcall (spec §6).
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Lseek repositions h's descriptor and returns the new absolute offset.
//
// Open question (a) (spec §9): the original implementation's sfs_lseek
// returns 0 on success instead of the new offset, which the spec calls out
// as almost certainly a bug — a caller relying on lseek's return value to
// learn the resulting position (e.g. SEEK_END probing for size) would
// always see 0. This redesign returns the offset lseek(2) itself reports.
func (t *Table) Lseek(cookie uint64, offset int64, whence Whence) (int64, error) {
	h := t.Lookup(cookie)
	if h == nil {
		return 0, fmt.Errorf("mirrorfs: lseek of unknown handle %d", cookie)
	}

	if h.Kind == HandleFolder || h.File == nil {
		return 0, fmt.Errorf("mirrorfs: lseek on non-seekable handle %d", cookie)
	}

	var ioWhence int

	switch whence {
	case SeekSet:
		ioWhence = io.SeekStart
	case SeekCur:
		ioWhence = io.SeekCurrent
	case SeekEnd:
		ioWhence = io.SeekEnd
	default:
		return 0, fmt.Errorf("mirrorfs: lseek: unknown whence %d", whence)
	}

	return h.File.Seek(offset, ioWhence)
}
