//go:build linux

package mirrorfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/billziss-gh/cgofuse/fuse"

	"github.com/go-scriptfs/scriptfs/internal/classify"
	"github.com/go-scriptfs/scriptfs/internal/procexec"
	"github.com/go-scriptfs/scriptfs/internal/scriptrun"
)

func newTestFacade(t *testing.T, sizeMode SizeMode) (*Facade, string) {
	t.Helper()

	mirrorPath := t.TempDir()

	root, err := os.OpenRoot(mirrorPath)
	if err != nil {
		t.Fatalf("os.OpenRoot: %v", err)
	}
	t.Cleanup(func() { _ = root.Close() })

	reg := classify.NewRegistry()
	reg.InstallDefault()

	ex := procexec.New(os.Environ())
	runner := scriptrun.New(root, t.TempDir(), ex)

	return New(root, mirrorPath, reg, ex, runner, sizeMode, nil), mirrorPath
}

func TestFacadePassthroughReadMatchesMirror(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeStored)

	if err := os.WriteFile(filepath.Join(mirrorPath, "readme.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	code, fh := facade.Open("/readme.txt", os.O_RDONLY)
	if code != 0 {
		t.Fatalf("Open() = %d, want 0", code)
	}

	buf := make([]byte, 32)
	n := facade.Read("/readme.txt", buf, 0, fh)
	if n < 0 {
		t.Fatalf("Read() = %d, want >=0", n)
	}

	if string(buf[:n]) != "hello\n" {
		t.Fatalf("Read() = %q, want %q", buf[:n], "hello\n")
	}

	if code := facade.Release("/readme.txt", fh); code != 0 {
		t.Fatalf("Release() = %d, want 0", code)
	}
}

func TestFacadeGetattrStripsWriteBitsOnScript(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeStored)

	if err := os.WriteFile(filepath.Join(mirrorPath, "greet.sh"), []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stat fuse.Stat_t

	if code := facade.Getattr("/greet.sh", &stat, badHandle); code != 0 {
		t.Fatalf("Getattr() = %d, want 0", code)
	}

	if stat.Mode&uint32(fuse.S_IWUSR|fuse.S_IWGRP|fuse.S_IWOTH) != 0 {
		t.Fatalf("Mode = %o, want write bits stripped", stat.Mode)
	}
}

func TestFacadeGetattrMaterializedSizeReportsOutputLength(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeMaterialized)

	if err := os.WriteFile(filepath.Join(mirrorPath, "greet.sh"), []byte("#!/bin/sh\necho hello\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stat fuse.Stat_t

	if code := facade.Getattr("/greet.sh", &stat, badHandle); code != 0 {
		t.Fatalf("Getattr() = %d, want 0", code)
	}

	if stat.Size != int64(len("hello\n")) {
		t.Fatalf("Size = %d, want %d", stat.Size, len("hello\n"))
	}
}

func TestFacadeOpenRefusesWriteModeOnScript(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeStored)

	if err := os.WriteFile(filepath.Join(mirrorPath, "greet.sh"), []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	code, fh := facade.Open("/greet.sh", os.O_WRONLY)
	if code != -fuse.EACCES {
		t.Fatalf("Open(O_WRONLY) = %d, want -EACCES", code)
	}

	if fh != badHandle {
		t.Fatalf("Open(O_WRONLY) returned handle %d, want badHandle", fh)
	}
}

func TestFacadeAccessDeniesWriteQueryOnScript(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeStored)

	if err := os.WriteFile(filepath.Join(mirrorPath, "greet.sh"), []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if code := facade.Access("/greet.sh", unixWOK); code != -fuse.EACCES {
		t.Fatalf("Access(W_OK) = %d, want -EACCES", code)
	}

	if code := facade.Access("/greet.sh", unixROK); code != 0 {
		t.Fatalf("Access(R_OK) = %d, want 0", code)
	}
}

func TestFacadeChmodMasksWriteBitsOnScript(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeStored)

	if err := os.WriteFile(filepath.Join(mirrorPath, "greet.sh"), []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if code := facade.Chmod("/greet.sh", 0o777); code != 0 {
		t.Fatalf("Chmod() = %d, want 0", code)
	}

	info, err := os.Stat(filepath.Join(mirrorPath, "greet.sh"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if info.Mode().Perm()&0o222 != 0 {
		t.Fatalf("mode = %o, want write bits masked off", info.Mode().Perm())
	}
}

func TestFacadeTruncateDeniedOnScript(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeStored)

	if err := os.WriteFile(filepath.Join(mirrorPath, "greet.sh"), []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if code := facade.Truncate("/greet.sh", 0, badHandle); code != -fuse.EACCES {
		t.Fatalf("Truncate() = %d, want -EACCES", code)
	}
}

func TestFacadeMkdirRmdirPassthrough(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeStored)

	if code := facade.Mkdir("/newdir", 0o755); code != 0 {
		t.Fatalf("Mkdir() = %d, want 0", code)
	}

	if _, err := os.Stat(filepath.Join(mirrorPath, "newdir")); err != nil {
		t.Fatalf("mirror dir not created: %v", err)
	}

	if code := facade.Rmdir("/newdir"); code != 0 {
		t.Fatalf("Rmdir() = %d, want 0", code)
	}
}

func TestFacadeReaddirListsEntries(t *testing.T) {
	facade, mirrorPath := newTestFacade(t, SizeStored)

	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(mirrorPath, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	code, fh := facade.Opendir("/")
	if code != 0 {
		t.Fatalf("Opendir() = %d, want 0", code)
	}

	seen := map[string]bool{}
	code = facade.Readdir("/", func(name string, stat *fuse.Stat_t, ofst int64) bool {
		seen[name] = true
		return true
	}, 0, fh)
	if code != 0 {
		t.Fatalf("Readdir() = %d, want 0", code)
	}

	for _, want := range []string{".", "..", "a.txt", "b.txt"} {
		if !seen[want] {
			t.Fatalf("Readdir() did not report %q, saw %v", want, seen)
		}
	}

	if code := facade.Releasedir("/", fh); code != 0 {
		t.Fatalf("Releasedir() = %d, want 0", code)
	}
}
