package procexec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// execNotFoundExitCode is the exit status reported when the Shebang
// Launcher cannot resolve a program at all. The original implementation
// forks unconditionally and only discovers a bad path inside the child,
// which then aborts; the parent observes that as a generic non-zero
// status, not a fork failure. We fold ErrProgramNotFound into the same
// "ran, exited non-zero" shape rather than treating it as an Executor
// error, so callers probing procedures (classify.Test) fall through to
// the next candidate instead of aborting.
const execNotFoundExitCode = 127

// Executor runs a resolved program against the mirror directory, with
// optional stdin-feeding from another mirror-relative file and an optional
// destination for the child's stdout (spec §4.4).
type Executor struct {
	// Env is the fixed environment vector handed to every child process
	// (captured once at startup, per spec §4.9).
	Env []string
}

// New returns an Executor that execs children with env.
func New(env []string) *Executor {
	return &Executor{Env: env}
}

// Run implements classify.ProgramRunner: it executes program with argv,
// sending the child's stdout to stderr, and reports its exit status. This is
// the shape the Test Evaluator needs for TestProgram (spec §4.3).
func (e *Executor) Run(root *os.Root, program string, argv []string, stdinSource string) (int, error) {
	return e.Execute(root, program, argv, nil, stdinSource)
}

// Execute runs program (resolved via the Shebang Launcher, relative to
// root) with argv, writing its stdout to out if out is non-nil (otherwise
// duplicating stderr over stdout, so the child can never contaminate a
// parent stdout it was not given — spec §4.4 step 4). If stdinSource is
// non-empty, it is opened relative to root and its bytes are piped to the
// child's stdin with partial-write retry, mirroring the original's
// execute_program.
func (e *Executor) Execute(root *os.Root, program string, argv []string, out *os.File, stdinSource string) (int, error) {
	res, err := launch(root, program, argv)
	if err != nil {
		if errors.Is(err, ErrProgramNotFound) {
			return execNotFoundExitCode, nil
		}

		return -1, fmt.Errorf("procexec: resolving %q: %w", program, err)
	}
	defer res.Close()

	cmd := &exec.Cmd{
		Path:       procSelfFD(firstExtraFD),
		Args:       res.argv,
		Env:        e.Env,
		ExtraFiles: []*os.File{res.file},
	}

	// An interpreter named by a shebang line receives the mirror-relative
	// program name in argv, so the child runs from inside the mirror.
	if root != nil {
		cmd.Dir = root.Name()
	}

	if out != nil {
		cmd.Stdout = out
	} else {
		cmd.Stdout = os.Stderr
	}

	var stdinReader, stdinWriter *os.File

	if stdinSource != "" {
		r, w, perr := os.Pipe()
		if perr != nil {
			return -1, fmt.Errorf("procexec: creating stdin pipe: %w", perr)
		}

		stdinReader, stdinWriter = r, w
		cmd.Stdin = stdinReader
	}

	if startErr := cmd.Start(); startErr != nil {
		if stdinWriter != nil {
			stdinWriter.Close()
			stdinReader.Close()
		}

		return -1, fmt.Errorf("procexec: starting %q: %w", program, startErr)
	}

	if stdinReader != nil {
		stdinReader.Close() // the child holds its own copy; the parent's is unneeded
	}

	if stdinSource != "" {
		srcFile, openErr := openProgram(root, stdinSource)
		if openErr == nil {
			copyWithRetry(stdinWriter, srcFile)
			srcFile.Close()
		}

		stdinWriter.Sync() //nolint:errcheck
		stdinWriter.Close()
	}

	waitErr := cmd.Wait()

	return exitCodeFromWaitErr(waitErr)
}

// firstExtraFD is the fd number a process's first ExtraFiles entry lands on
// inside the child (0, 1, 2 are stdin/stdout/stderr).
const firstExtraFD = 3

// procSelfFD builds the exec-by-fd alias: execve resolves this symlink in
// the child's own fd table after fork, at the moment of exec, not before —
// eliminating the window between the Shebang Launcher's open and the
// actual exec (spec §4.5 rationale).
func procSelfFD(fd int) string {
	return filepath.Join("/proc/self/fd", strconv.Itoa(fd))
}

// copyWithRetry streams src to dst, retrying partial writes, then lets the
// caller fsync and close dst. Read/write errors end the copy silently: the
// original implementation has no way to report a failed feed other than
// stopping, and the child simply sees a short or empty stdin.
func copyWithRetry(dst io.Writer, src io.Reader) {
	buf := make([]byte, 4096)

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			written := 0
			for written < n {
				w, werr := dst.Write(buf[written:n])
				if werr != nil {
					return
				}

				written += w
			}
		}

		if rerr != nil {
			return
		}
	}
}

// exitCodeFromWaitErr maps exec.Cmd.Wait's result to a non-negative exit
// status: a clean exit reports its status, a signaled process is reported
// as a generic non-zero (spec §4.4: "a child that is signaled is reported
// as a generic non-zero"), and anything else is a hard error.
func exitCodeFromWaitErr(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if exitErr.Exited() {
			return exitErr.ExitCode(), nil
		}

		return 1, nil
	}

	return -1, fmt.Errorf("procexec: waiting for child: %w", waitErr)
}
