// Package scriptrun materializes a classified script's output into an
// anonymous file handle (spec §4.6): the caller gets back a descriptor
// positioned at offset 0, already unlinked from the temp directory, whose
// only holder is the Handle Table entry for the open file.
package scriptrun

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-scriptfs/scriptfs/internal/classify"
	"github.com/go-scriptfs/scriptfs/internal/procexec"
)

// copyReadExecMask is the permission mask temp copies of a candidate are
// chmod'd to: owner read and owner execute, each kept only if the source
// has it.
// Mirrors the original implementation's temp_copy, which always transfers
// only S_IRUSR|S_IXUSR regardless of the source's other bits.
const copyReadExecMask = 0o500

// Runner materializes scripts by running their Procedure's Program against
// the mirror directory.
type Runner struct {
	Root    *os.Root
	TempDir string
	Exec    *procexec.Executor
}

// New returns a Runner that opens candidates relative to root, stages temp
// files under tempDir, and execs through exec.
func New(root *os.Root, tempDir string, exec *procexec.Executor) *Runner {
	return &Runner{Root: root, TempDir: tempDir, Exec: exec}
}

// Run materializes candidate's script output per proc and returns an open
// file positioned at offset 0, already unlinked (the caller owns the only
// reference; closing it frees the underlying storage).
func (r *Runner) Run(candidate string, proc classify.Procedure) (*os.File, error) {
	out, err := os.CreateTemp(r.TempDir, "sfs.*")
	if err != nil {
		return nil, fmt.Errorf("scriptrun: creating output handle: %w", err)
	}

	name := out.Name()
	if rmErr := os.Remove(name); rmErr != nil {
		out.Close()
		return nil, fmt.Errorf("scriptrun: unlinking output handle %s: %w", name, rmErr)
	}

	var runErr error

	switch proc.Program.Kind {
	case classify.ProgramInterpretShell:
		runErr = r.runInterpretShell(candidate, out)
	case classify.ProgramExternalFilter:
		runErr = r.runExternalFilter(candidate, proc.Program, out)
	default:
		runErr = fmt.Errorf("scriptrun: unknown program kind %v", proc.Program.Kind)
	}

	if runErr != nil {
		out.Close()
		return nil, runErr
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		out.Close()
		return nil, fmt.Errorf("scriptrun: seeking output handle to start: %w", err)
	}

	return out, nil
}

// runInterpretShell copies candidate to a second temp file (preserving only
// owner read/execute bits), execs that copy directly, and captures its
// stdout onto out.
func (r *Runner) runInterpretShell(candidate string, out *os.File) error {
	tmpScript, err := r.copyToTemp(candidate)
	if err != nil {
		return fmt.Errorf("scriptrun: staging interpret-shell copy of %s: %w", candidate, err)
	}
	defer os.Remove(tmpScript)

	_, err = r.Exec.Execute(nil, tmpScript, []string{tmpScript}, out, "")
	if err != nil {
		return fmt.Errorf("scriptrun: executing %s: %w", tmpScript, err)
	}

	return nil
}

// runExternalFilter runs program.Path with argv built from program.Argv. If
// the template has a placeholder, it is substituted with a temp copy of
// candidate (not candidate's mirror-relative name) so that external filter
// programs retain access to the bytes even if they cannot see mirror_dir
// directly. If program.Filter is set, candidate's bytes are independently
// fed on the child's stdin (spec §4.2: Filter and the "!" placeholder are
// orthogonal).
func (r *Runner) runExternalFilter(candidate string, program classify.Program, out *os.File) error {
	argvCandidate := candidate

	if program.Argv.HasPlaceholder {
		tmpCopy, err := r.copyToTemp(candidate)
		if err != nil {
			return fmt.Errorf("scriptrun: staging filter-arg copy of %s: %w", candidate, err)
		}
		defer os.Remove(tmpCopy)

		argvCandidate = tmpCopy
	}

	argv := program.Argv.Build(argvCandidate)

	stdinSource := ""
	if program.Filter {
		stdinSource = candidate
	}

	_, err := r.Exec.Execute(r.Root, program.Path, argv, out, stdinSource)
	if err != nil {
		return fmt.Errorf("scriptrun: executing %s: %w", program.Path, err)
	}

	return nil
}

// copyToTemp copies candidate (opened relative to Root) into a fresh temp
// file under TempDir, chmod'd to copyReadExecMask intersected with the
// source's own owner bits, and returns the temp file's path.
func (r *Runner) copyToTemp(candidate string) (string, error) {
	src, err := r.Root.Open(candidate)
	if err != nil {
		return "", fmt.Errorf("opening %s relative to mirror: %w", candidate, err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(r.TempDir, "sfs.*")
	if err != nil {
		return "", fmt.Errorf("creating temp copy: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("copying %s: %w", candidate, err)
	}

	mode := os.FileMode(0)
	if info, statErr := src.Stat(); statErr == nil {
		mode = info.Mode() & copyReadExecMask
	}

	if err := dst.Chmod(mode); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("chmod temp copy of %s: %w", candidate, err)
	}

	return filepath.Clean(dst.Name()), nil
}
