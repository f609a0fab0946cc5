// Package classify holds the procedure registry and test evaluator: the
// ordered list of (Test, Program) pairs that decides whether a mirror file is
// a script and, if so, which program produces its content.
package classify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/sys/unix"
)

// TestKind discriminates the variants a Test can take.
//
// The zero value is invalid: Evaluate rejects it as an unknown kind, so
// every Test (a literal or one built by ParseProcedure) sets Kind.
type TestKind int

const (
	// TestAlwaysTrue matches every file. Diagnostic only.
	TestAlwaysTrue TestKind = iota + 1
	// TestAlwaysFalse matches no file. Diagnostic only.
	TestAlwaysFalse
	// TestShebang matches files whose first two bytes are "#!".
	TestShebang
	// TestExecutable matches files with an execute bit accessible to the
	// current user.
	TestExecutable
	// TestShebangOrExecutable is the logical OR of TestShebang and
	// TestExecutable. This is the default test when none is specified.
	TestShebangOrExecutable
	// TestRegex matches the mirror-relative pathname against a compiled
	// regular expression, uncanonicalized.
	TestRegex
	// TestProgram invokes a user-supplied filter program; exit status 0 is a
	// match.
	TestProgram
)

// Test is a predicate over a mirror-relative filename classifying it as a
// script or not.
//
// Test is immutable after construction; Evaluate never mutates it (see
// ArgTemplate for how argv substitution avoids the shared-mutable-slot hack
// in the original implementation).
type Test struct {
	Kind TestKind

	// Regex is set only when Kind == TestRegex.
	Regex *regexp.Regexp

	// Program, Argv and Filter are set only when Kind == TestProgram: the
	// filter program's path, its argument template, and whether the
	// candidate's bytes should be fed on the filter's stdin.
	Program string
	Argv    ArgTemplate
	Filter  bool
}

// ErrNoMatch is a sentinel returned by nothing in this package directly, but
// kept for callers that want to distinguish "ran the test and it said no"
// from "failed to run the test" without an explicit bool return. Currently
// Evaluate reports non-match via (false, nil), so this stays unused inside
// the package; callers are free to ignore it.
var ErrNoMatch = errors.New("classify: no match")

// Evaluate runs t against a mirror-relative candidate, opening files via
// root (never by absolute reconstruction, per the mirror-root invariant).
//
// A Test returning true must be idempotent and side-effect-free from the
// caller's perspective; TestProgram may fork a process but must not modify
// the mirror.
func (t Test) Evaluate(root *os.Root, candidate string, exec ProgramRunner) (bool, error) {
	switch t.Kind {
	case TestAlwaysTrue:
		return true, nil
	case TestAlwaysFalse:
		return false, nil
	case TestShebang:
		return hasShebang(root, candidate)
	case TestExecutable:
		return isExecutable(root, candidate)
	case TestShebangOrExecutable:
		ok, err := hasShebang(root, candidate)
		if err != nil {
			return false, err
		}

		if ok {
			return true, nil
		}

		return isExecutable(root, candidate)
	case TestRegex:
		if t.Regex == nil {
			return false, nil
		}

		return t.Regex.MatchString(candidate), nil
	case TestProgram:
		return t.evaluateProgram(root, candidate, exec)
	default:
		return false, fmt.Errorf("classify: test: unknown kind %d", t.Kind)
	}
}

// ProgramRunner is the subset of internal/procexec.Executor's behavior the
// classify package needs: run a program against an optional stdin source and
// report whether it exited 0. It is an interface here so classify has no
// import-time dependency on procexec, keeping the Test/Program variant types
// free of process-execution concerns.
type ProgramRunner interface {
	Run(root *os.Root, program string, argv []string, stdinSource string) (exitCode int, err error)
}

func (t Test) evaluateProgram(root *os.Root, candidate string, exec ProgramRunner) (bool, error) {
	if exec == nil {
		return false, errors.New("classify: program test requires a ProgramRunner")
	}

	argv := t.Argv.Build(candidate)

	stdinSource := ""
	if t.Filter {
		stdinSource = candidate
	}

	code, err := exec.Run(root, t.Program, argv, stdinSource)
	if err != nil {
		return false, fmt.Errorf("classify: running test program %q: %w", t.Program, err)
	}

	return code == 0, nil
}

func hasShebang(root *os.Root, candidate string) (bool, error) {
	f, err := root.Open(candidate)
	if err != nil {
		return false, nil //nolint:nilerr // unreadable candidates simply don't match
	}
	defer f.Close()

	var magic [2]byte

	n, err := f.Read(magic[:])
	if err != nil && n < 2 {
		return false, nil
	}

	return n == 2 && magic[0] == '#' && magic[1] == '!', nil
}

// isExecutable is faccessat(X_OK, AT_EACCESS) against the *effective* user,
// mirroring the original implementation's access(2) probe rather than
// approximating it by hand from the stat mode bits.
func isExecutable(root *os.Root, candidate string) (bool, error) {
	if _, err := root.Stat(candidate); err != nil {
		return false, nil //nolint:nilerr // unreadable candidates simply don't match
	}

	abs := filepath.Join(root.Name(), candidate)

	if err := unix.Faccessat(unix.AT_FDCWD, abs, unix.X_OK, unix.AT_EACCESS); err != nil {
		return false, nil //nolint:nilerr // permission-denied is "doesn't match", not an Evaluate error
	}

	return true, nil
}
