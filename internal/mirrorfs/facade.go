//go:build linux

package mirrorfs

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/billziss-gh/cgofuse/fuse"
	"golang.org/x/sys/unix"

	"github.com/go-scriptfs/scriptfs/internal/classify"
	"github.com/go-scriptfs/scriptfs/internal/procexec"
	"github.com/go-scriptfs/scriptfs/internal/scriptrun"
)

// SizeMode controls whether Getattr reports a script's stored (source)
// size or its materialized (stdout) size (spec §4.8, §8 scenario 4).
type SizeMode int

const (
	SizeStored SizeMode = iota
	SizeMaterialized
)

// Facade implements fuse.FileSystemInterface over a mirror directory,
// consulting the Procedure Registry to decide, per spec §4.8, whether a
// regular file is a script. Script-awareness touches exactly five upcalls:
// Getattr, Access, Open, Truncate/Utimens, and Chmod.
type Facade struct {
	fuse.FileSystemBase

	root       *os.Root
	mirrorPath string
	registry   *classify.Registry
	exec       *procexec.Executor
	runner     *scriptrun.Runner
	sizeMode   SizeMode
	log        *slog.Logger

	handles *Table

	mu      sync.Mutex
	dirOpen map[uint64]*dirStream
}

// dirStream holds the materialized directory-entry list for one Opendir
// call; cgofuse's Readdir contract asks the façade to supply entries via a
// fill callback rather than a stream the kernel drives itself, so Opendir
// reads the directory once and Readdir replays it.
type dirStream struct {
	entries []os.DirEntry
}

// New returns a Facade serving root, classifying files with registry and
// materializing matches via runner.
func New(root *os.Root, mirrorPath string, registry *classify.Registry, exec *procexec.Executor, runner *scriptrun.Runner, sizeMode SizeMode, log *slog.Logger) *Facade {
	if log == nil {
		log = slog.Default()
	}

	return &Facade{
		root:       root,
		mirrorPath: mirrorPath,
		registry:   registry,
		exec:       exec,
		runner:     runner,
		sizeMode:   sizeMode,
		log:        log,
		handles:    NewTable(),
		dirOpen:    make(map[uint64]*dirStream),
	}
}

func (f *Facade) Init() {
	f.log.Debug("mirrorfs: mount initialized", "mirror", f.mirrorPath)
}

func (f *Facade) Destroy() {
	f.log.Debug("mirrorfs: mount destroyed")
}

func (f *Facade) Statfs(path string, stat *fuse.Statfs_t) int {
	var buf unix.Statfs_t
	if err := unix.Statfs(f.mirrorPath, &buf); err != nil {
		return errno(err)
	}

	stat.Bsize = uint64(buf.Bsize)
	stat.Frsize = uint64(buf.Frsize)
	stat.Blocks = uint64(buf.Blocks)
	stat.Bfree = uint64(buf.Bfree)
	stat.Bavail = uint64(buf.Bavail)
	stat.Files = uint64(buf.Files)
	stat.Ffree = uint64(buf.Ffree)
	stat.Favail = uint64(buf.Ffree)
	stat.Namemax = uint64(buf.Namelen)

	return 0
}

func (f *Facade) Mkdir(path string, mode uint32) int {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	return errno(f.root.Mkdir(rel, os.FileMode(mode)))
}

func (f *Facade) Rmdir(path string) int {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	return errno(f.root.Remove(rel))
}

func (f *Facade) Unlink(path string) int {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	return errno(f.root.Remove(rel))
}

func (f *Facade) Link(oldpath string, newpath string) int {
	oldRel, err := ToRelative(oldpath)
	if err != nil {
		return errno(err)
	}

	newRel, err := ToRelative(newpath)
	if err != nil {
		return errno(err)
	}

	return errno(f.root.Link(oldRel, newRel))
}

func (f *Facade) Symlink(target string, newpath string) int {
	newRel, err := ToRelative(newpath)
	if err != nil {
		return errno(err)
	}

	return errno(f.root.Symlink(target, newRel))
}

func (f *Facade) Readlink(path string) (int, string) {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err), ""
	}

	target, err := f.root.Readlink(rel)
	if err != nil {
		return errno(err), ""
	}

	return 0, target
}

// Rename always performs a plain replace-rename. The vendored cgofuse
// FileSystemInterface's Rename(oldpath, newpath string) int has no flags
// parameter, so RENAME_NOREPLACE/RENAME_EXCHANGE semantics never reach this
// façade to pass through to renameat2 — see DESIGN.md's binding-gap note.
func (f *Facade) Rename(oldpath string, newpath string) int {
	oldRel, err := ToRelative(oldpath)
	if err != nil {
		return errno(err)
	}

	newRel, err := ToRelative(newpath)
	if err != nil {
		return errno(err)
	}

	return errno(f.root.Rename(oldRel, newRel))
}

// Chmod masks off write bits on a matched script, per spec §4.8 ("Chmod
// succeeds but write bits are silently masked" — §8 scenario 5).
func (f *Facade) Chmod(path string, mode uint32) int {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	if f.isScript(rel) {
		mode &^= uint32(fuse.S_IWUSR | fuse.S_IWGRP | fuse.S_IWOTH)
	}

	return errno(f.root.Chmod(rel, os.FileMode(mode)))
}

func (f *Facade) Chown(path string, uid uint32, gid uint32) int {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	return errno(f.root.Chown(rel, int(uid), int(gid)))
}

// Utimens denies on a matched script, per spec §4.8.
func (f *Facade) Utimens(path string, tmsp []fuse.Timespec) int {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	if f.isScript(rel) {
		return -fuse.EACCES
	}

	atime, mtime := time.Now(), time.Now()
	if len(tmsp) == 2 {
		atime = tmsp[0].Time()
		mtime = tmsp[1].Time()
	}

	return errno(f.root.Chtimes(rel, atime, mtime))
}

// Access denies write-mode queries against a matched script, per spec
// §4.8.
func (f *Facade) Access(path string, mask uint32) int {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	info, err := f.root.Stat(rel)
	if err != nil {
		return errno(err)
	}

	if mask&unixWOK != 0 && info.Mode().IsRegular() && f.isScript(rel) {
		return -fuse.EACCES
	}

	if !checkAccessBits(f.root, rel, mask) {
		return -fuse.EACCES
	}

	return 0
}

// Create opens a brand-new mirror file. New files are never classified as
// scripts at creation time (classification only matters for files that
// already exist), so Create always passes through.
func (f *Facade) Create(path string, flags int, mode uint32) (int, uint64) {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err), badHandle
	}

	file, err := f.root.OpenFile(rel, flags|os.O_CREATE, os.FileMode(mode))
	if err != nil {
		return errno(err), badHandle
	}

	cookie := f.handles.Open(&Handle{Kind: HandleFile, File: file, RelativeName: rel})

	return 0, cookie
}

// Open materializes a matched script via the Script Runner and returns a
// Script-kind handle; otherwise it opens the mirror file directly. Write
// modes are refused on a matched script (spec §4.8).
func (f *Facade) Open(path string, flags int) (int, uint64) {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err), badHandle
	}

	proc, matched, err := f.registry.Match(f.root, rel, f.exec)
	if err != nil {
		f.log.Error("mirrorfs: classification failed", "path", rel, "err", err)
		return -fuse.EIO, badHandle
	}

	if matched {
		if flags&(os.O_WRONLY|os.O_RDWR) != 0 {
			return -fuse.EACCES, badHandle
		}

		out, err := f.runner.Run(rel, proc)
		if err != nil {
			f.log.Error("mirrorfs: script materialization failed", "path", rel, "err", err)
			return -fuse.EIO, badHandle
		}

		cookie := f.handles.Open(&Handle{Kind: HandleScript, File: out, RelativeName: rel})

		return 0, cookie
	}

	file, err := f.root.OpenFile(rel, flags, 0)
	if err != nil {
		return errno(err), badHandle
	}

	cookie := f.handles.Open(&Handle{Kind: HandleFile, File: file, RelativeName: rel})

	return 0, cookie
}

// Getattr reports the mirror's stat, stripping write bits from a matched
// script and, under materialized size mode, substituting the script's
// actual output length (spec §4.8, §8 scenario 4).
func (f *Facade) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	info, err := f.root.Lstat(rel)
	if err != nil {
		return errno(err)
	}

	fillStat(stat, info)

	if !info.Mode().IsRegular() {
		return 0
	}

	proc, matched, err := f.registry.Match(f.root, rel, f.exec)
	if err != nil {
		f.log.Error("mirrorfs: classification failed", "path", rel, "err", err)
		return 0
	}

	if !matched {
		return 0
	}

	stat.Mode &^= uint32(fuse.S_IWUSR | fuse.S_IWGRP | fuse.S_IWOTH)

	if f.sizeMode != SizeMaterialized {
		return 0
	}

	out, err := f.runner.Run(rel, proc)
	if err != nil {
		f.log.Warn("mirrorfs: materialized-size run failed, reporting stored size", "path", rel, "err", err)
		return 0
	}
	defer out.Close()

	if realInfo, err := out.Stat(); err == nil {
		stat.Size = realInfo.Size()
	}

	return 0
}

// Truncate denies on a matched script (whether recognized via the open
// handle or, absent one, via the path itself — spec §9 open question (c));
// otherwise truncates the mirror file directly (spec §4.8).
func (f *Facade) Truncate(path string, size int64, fh uint64) int {
	h := f.handles.Lookup(fh)
	if h.IsScript() {
		return -fuse.EACCES
	}

	rel, err := ToRelative(path)
	if err != nil {
		return errno(err)
	}

	if f.isScript(rel) {
		return -fuse.EACCES
	}

	if h != nil && h.File != nil {
		return errno(h.File.Truncate(size))
	}

	file, err := f.root.OpenFile(rel, os.O_WRONLY, 0)
	if err != nil {
		return errno(err)
	}
	defer file.Close()

	return errno(file.Truncate(size))
}

// Read reads at ofst with a positional read (ReadAt), so concurrent callers
// sharing a handle still observe the offset they asked for (spec §4.8).
func (f *Facade) Read(path string, buff []byte, ofst int64, fh uint64) int {
	h := f.handles.Lookup(fh)
	if h == nil || h.File == nil {
		return -fuse.EBADF
	}

	n, err := h.File.ReadAt(buff, ofst)
	if err != nil && err != io.EOF {
		return errno(err)
	}

	return n
}

// Write refuses any write against a Script handle; otherwise writes at
// ofst with a positional write (WriteAt) (spec §4.8, §3 invariant "A Script handle is read-only").
func (f *Facade) Write(path string, buff []byte, ofst int64, fh uint64) int {
	h := f.handles.Lookup(fh)
	if h == nil || h.File == nil {
		return -fuse.EBADF
	}

	if h.IsScript() {
		return -fuse.EACCES
	}

	n, err := h.File.WriteAt(buff, ofst)
	if err != nil {
		return errno(err)
	}

	return n
}

func (f *Facade) Flush(path string, fh uint64) int {
	return 0
}

func (f *Facade) Release(path string, fh uint64) int {
	if err := f.handles.Release(fh); err != nil {
		return errno(err)
	}

	return 0
}

func (f *Facade) Fsync(path string, datasync bool, fh uint64) int {
	h := f.handles.Lookup(fh)
	if h == nil || h.File == nil {
		return -fuse.EBADF
	}

	return errno(h.File.Sync())
}

func (f *Facade) Opendir(path string) (int, uint64) {
	rel, err := ToRelative(path)
	if err != nil {
		return errno(err), badHandle
	}

	dir, err := f.root.Open(rel)
	if err != nil {
		return errno(err), badHandle
	}

	entries, err := dir.ReadDir(-1)
	if err != nil {
		dir.Close()
		return errno(err), badHandle
	}

	cookie := f.handles.Open(&Handle{Kind: HandleFolder, Dir: dir, RelativeName: rel})

	f.mu.Lock()
	f.dirOpen[cookie] = &dirStream{entries: entries}
	f.mu.Unlock()

	return 0, cookie
}

// Readdir replays the entry list captured at Opendir. Open question (b)
// (spec §9): the original implementation conflates "no more entries" with
// "readdir failed" because both surface as the loop condition becoming
// false; here the two are distinguished structurally — running off the end
// of entries is normal termination (fill stops being called and the loop
// exits via bounds, never via an error value), and the only way Readdir
// itself reports failure is an unknown handle.
func (f *Facade) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	f.mu.Lock()
	stream := f.dirOpen[fh]
	f.mu.Unlock()

	if stream == nil {
		return -fuse.EBADF
	}

	fill(".", nil, 0)
	fill("..", nil, 0)

	for _, entry := range stream.entries {
		if !fill(entry.Name(), nil, 0) {
			break
		}
	}

	return 0
}

func (f *Facade) Releasedir(path string, fh uint64) int {
	f.mu.Lock()
	delete(f.dirOpen, fh)
	f.mu.Unlock()

	if err := f.handles.Release(fh); err != nil {
		return errno(err)
	}

	return 0
}

func (f *Facade) Fsyncdir(path string, datasync bool, fh uint64) int {
	h := f.handles.Lookup(fh)
	if h == nil || h.Dir == nil {
		return -fuse.EBADF
	}

	return errno(h.Dir.Sync())
}

// badHandle is returned alongside an error code from handle-creating
// upcalls, matching cgofuse's own FileSystemBase convention.
const badHandle = ^uint64(0)

func (f *Facade) isScript(rel string) bool {
	_, matched, err := f.registry.Match(f.root, rel, f.exec)
	if err != nil {
		f.log.Error("mirrorfs: classification failed", "path", rel, "err", err)
		return false
	}

	return matched
}
