package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/billziss-gh/cgofuse/fuse"
	flag "github.com/spf13/pflag"

	"github.com/go-scriptfs/scriptfs/internal/lifecycle"
	"github.com/go-scriptfs/scriptfs/internal/logging"
	"github.com/go-scriptfs/scriptfs/internal/mirrorfs"
	"github.com/go-scriptfs/scriptfs/internal/procexec"
	"github.com/go-scriptfs/scriptfs/internal/scriptrun"
)

const (
	scriptfsExecutableName = "scriptfs"

	// exitCodeSIGINT mirrors the teacher's 128+signal convention.
	exitCodeSIGINT = 130

	// unmountTimeout is how long to wait for a graceful FUSE unmount after a
	// first SIGINT before a second interrupt (or the timeout) forces exit.
	unmountTimeout = 10 * time.Second
)

// Run is the side-effect-free entry point: a function of its arguments and
// streams, in the teacher's Run(stdin, stdout, stderr, args, env, sigCh)
// shape, so main() stays a thin wrapper and tests can drive the whole CLI
// without touching the real process environment. Returns the process exit
// code.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env []string, sigCh <-chan os.Signal) int {
	flags := flag.NewFlagSet(scriptfsExecutableName, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(io.Discard)

	flagHelp := flags.BoolP("help", "h", false, "Show help")
	flagVersion := flags.BoolP("version", "v", false, "Show version and exit")

	flags.BoolP("materialized-size", "l", false, "Report a script's materialized (stdout) size instead of its stored size")
	flags.StringArrayP("procedure", "p", nil, "Append a classification procedure (repeatable, order preserved)")
	flags.StringArrayP("fuse-option", "o", nil, "Pass an option through to the FUSE mount layer (repeatable)")
	flags.StringP("config", "c", "", "Load additional procedures from a JSON/JSONC config file")
	flags.Bool("debug", false, "Enable verbose structured logging")

	if err := flags.Parse(args[1:]); err != nil {
		fprintError(stderr, err)
		fprintln(stderr)
		printUsage(stderr)

		return lifecycle.ExitUsage
	}

	if *flagVersion {
		fprintf(stdout, "%s\n", formatVersion())

		return 0
	}

	if *flagHelp {
		printUsage(stdout)

		return 0
	}

	cfg, err := LoadConfig(LoadConfigInput{CLIFlags: flags, Positional: flags.Args()})
	if err != nil {
		fprintError(stderr, err)
		fprintln(stderr)
		printUsage(stderr)

		return lifecycle.ExitUsage
	}

	log := logging.New(logging.Options{Output: stderr, Debug: cfg.Debug})

	lc, err := lifecycle.Start(lifecycle.Options{
		MirrorPath: cfg.MirrorPath,
		MountPoint: cfg.MountPoint,
		SizeMode:   cfg.SizeMode,
		Procedures: cfg.Procedures,
		Env:        env,
	})
	if err != nil {
		fprintError(stderr, err)

		return exitCodeForLifecycleError(err)
	}
	defer lc.Close()

	logStartupSummary(log, lc, cfg.Debug)

	exec := procexec.New(lc.Env)
	runner := scriptrun.New(lc.Root, lc.TempDir, exec)
	facade := mirrorfs.New(lc.Root, lc.MirrorPath, lc.Registry, exec, runner, lc.SizeMode, log)

	host := fuse.NewFileSystemHost(facade)
	host.SetCapReaddirPlus(false)

	killCtx, kill := context.WithCancel(context.Background())
	defer kill()

	termCtx, terminate := context.WithCancel(killCtx)
	defer terminate()

	mountDone := make(chan bool, 1)

	mountOpts := make([]string, 0, 2*len(cfg.FuseOpts))
	for _, opt := range cfg.FuseOpts {
		mountOpts = append(mountOpts, "-o", opt)
	}

	go func() {
		mountDone <- host.Mount(cfg.MountPoint, mountOpts)
	}()

	go func() {
		<-termCtx.Done()
		host.Unmount()
	}()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				fprintln(stderr, "Interrupted, unmounting... (Ctrl+C again to force exit)")
				terminate()
			case <-killCtx.Done():
			}
		}()
	}

	select {
	case ok := <-mountDone:
		if !ok {
			fprintError(stderr, errors.New("mount failed"))

			return 1
		}

		return 0
	case <-termCtx.Done():
	}

	select {
	case ok := <-mountDone:
		if !ok {
			return exitCodeSIGINT
		}

		return 0
	case <-sigCh:
		fprintln(stderr, "Forced exit.")
		kill()

		return exitCodeSIGINT
	case <-time.After(unmountTimeout):
		fprintln(stderr, "Forced exit.")
		kill()

		return exitCodeSIGINT
	}
}

func exitCodeForLifecycleError(err error) int {
	if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
		return lifecycle.ExitNotFound
	}

	if os.IsPermission(err) || errors.Is(err, os.ErrPermission) {
		return lifecycle.ExitNoPerm
	}

	return 1
}

const usageHelp = `scriptfs - a FUSE overlay exposing script stdout as file content

Usage: scriptfs [fuse-opts] [-l] [-p PROC]... MIRROR MOUNTPOINT

Flags:
  -h, --help                  Show help
  -v, --version                Show version and exit
  -l, --materialized-size       Report materialized (stdout) size, not stored size
  -p, --procedure PROC         Append a classification procedure (repeatable)
  -o, --fuse-option ARG        Pass an option through to the FUSE mount layer (repeatable)
  -c, --config FILE            Load additional procedures from a JSON/JSONC config file
      --debug                  Enable verbose structured logging

Examples:
  scriptfs /srv/scripts /mnt/scriptfs
  scriptfs -l -p '/bin/cat !' /srv/scripts /mnt/scriptfs
  scriptfs -o allow_other /srv/scripts /mnt/scriptfs`

func printUsage(output io.Writer) {
	fprintln(output, usageHelp)
}

func fprintln(out io.Writer, a ...any) {
	_, _ = fmt.Fprintln(out, a...)
}

func fprintf(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}

func fprintError(out io.Writer, err error) {
	fprintln(out, "scriptfs: error:", err)
}

func formatVersion() string {
	if version == "source" {
		return fmt.Sprintf("scriptfs (built from source, %s)", date)
	}

	return fmt.Sprintf("scriptfs %s (%s, %s)", version, commit, date)
}
