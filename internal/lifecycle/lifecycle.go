// Package lifecycle resolves the mirror and mount point, opens the mirror
// directory descriptor, chooses a temp-file template, and installs the
// default procedure when none was supplied — the startup/teardown sequence
// spec.md §4.9 describes, kept apart from cmd/scriptfs's flag parsing so it
// can be driven directly from tests without a CLI in the loop.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-scriptfs/scriptfs/internal/classify"
	"github.com/go-scriptfs/scriptfs/internal/mirrorfs"
)

// Exit codes named after the BSD sysexits.h values the original CLI surface
// uses (spec.md §6): EX_USAGE for bad arguments, EX_NOPERM for a mirror that
// exists but can't be opened, ENOENT for a missing mirror or mount point.
const (
	ExitUsage    = 64
	ExitNoPerm   = 77
	ExitNotFound = 2
)

// devShm is preferred as the temp-file directory when it exists: tmpfs
// avoids a disk write for every script materialization (spec.md §4.9,
// "temp_template ... is /dev/shm if it is a directory, else /tmp").
const devShm = "/dev/shm"

// Options configures Start. Procedures are in final registry order: config-file
// entries should already have been appended before any -p-flag-derived ones
// (§A.3's layering — config file before -p flags, because later insertion can
// never change an earlier match per §3's first-match-wins invariant).
type Options struct {
	MirrorPath string
	MountPoint string
	SizeMode   mirrorfs.SizeMode
	Procedures []classify.Procedure
	// Env is the environment vector passed to every exec'd program. Defaults
	// to os.Environ() when nil, but callers (and tests) can supply their own.
	Env []string
}

// Lifecycle holds everything a running mount needs: the mirror's directory
// descriptor, the chosen temp directory, the captured environment, and the
// constructed registry. Close tears all of it down.
type Lifecycle struct {
	Root       *os.Root
	MirrorPath string
	MountPoint string
	TempDir    string
	SizeMode   mirrorfs.SizeMode
	Registry   *classify.Registry
	Env        []string
	UID        int
	GID        int
}

// Start performs spec.md §4.9's startup sequence: canonicalize the mirror
// path, require both mirror and mount point to already exist as directories,
// open the mirror, choose a temp template, and install the default procedure
// if Options didn't supply any.
func Start(opts Options) (*Lifecycle, error) {
	mirrorAbs, err := filepath.Abs(opts.MirrorPath)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: resolving mirror path %q: %w", opts.MirrorPath, err)
	}

	mirrorAbs, err = filepath.EvalSymlinks(mirrorAbs)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: resolving mirror path %q: %w", opts.MirrorPath, err)
	}

	if err := requireDir(mirrorAbs); err != nil {
		return nil, fmt.Errorf("lifecycle: mirror %q: %w", mirrorAbs, err)
	}

	if err := requireDir(opts.MountPoint); err != nil {
		return nil, fmt.Errorf("lifecycle: mount point %q: %w", opts.MountPoint, err)
	}

	root, err := os.OpenRoot(mirrorAbs)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: opening mirror %q: %w", mirrorAbs, err)
	}

	registry := classify.NewRegistry()
	for _, p := range opts.Procedures {
		registry.Add(p)
	}

	if registry.Empty() {
		registry.InstallDefault()
	}

	env := opts.Env
	if env == nil {
		env = os.Environ()
	}

	return &Lifecycle{
		Root:       root,
		MirrorPath: mirrorAbs,
		MountPoint: opts.MountPoint,
		TempDir:    tempTemplateDir(),
		SizeMode:   opts.SizeMode,
		Registry:   registry,
		Env:        env,
		UID:        os.Getuid(),
		GID:        os.Getgid(),
	}, nil
}

// Close frees the mirror descriptor. Procedure storage needs no explicit
// freeing in Go (the registry is garbage-collected with the Lifecycle), but
// Close is still the one teardown call spec.md §4.9 names.
func (l *Lifecycle) Close() error {
	if l.Root == nil {
		return nil
	}

	return l.Root.Close()
}

// requireDir treats "doesn't exist" and "exists but isn't a directory" as
// the same failure, per the original implementation's main(): both paths
// through scriptfs.c's startup stat checks report ENOENT, not a separate
// "wrong type" error. Wrapping with os.ErrNotExist lets
// exitCodeForLifecycleError map either case to ExitNotFound.
func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%q: %w", path, errNotADirectory)
	}

	return nil
}

var errNotADirectory = fmt.Errorf("not a directory: %w", os.ErrNotExist)

func tempTemplateDir() string {
	if info, err := os.Stat(devShm); err == nil && info.IsDir() {
		return devShm
	}

	return os.TempDir()
}
