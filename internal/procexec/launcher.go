// Package procexec resolves a classified file to a runnable program and
// executes it, feeding the candidate's bytes on stdin when requested and
// capturing the child's stdout into a caller-supplied descriptor.
package procexec

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrProgramNotFound is returned by openProgram (and so by launch) when neither the mirror-relative
// nor the absolute fallback open of a program succeeds. Callers treat this
// the same way the original implementation treats a failed fexecve: as a
// non-matching/non-zero outcome, not a hard Executor error.
var ErrProgramNotFound = errors.New("procexec: program not found")

const shebangProbeBytes = 512

// resolved is what the Shebang Launcher hands back to the Executor: the
// file to exec (already open, so the kernel resolves exactly what the
// launcher inspected — no TOCTOU window between classification and exec)
// and the argument vector to run it with, argv[0] set to the program or
// interpreter path as named (not the /proc/self/fd alias).
type resolved struct {
	file *os.File
	argv []string
}

func (r *resolved) Close() error {
	if r == nil || r.file == nil {
		return nil
	}

	return r.file.Close()
}

// launch implements the Shebang Launcher (spec §4.5): it opens program
// relative to root, inspects the first line for a "#!" marker, and returns
// either the interpreter (with argv rewritten to [interpreter, program,
// argv[1:]...]) or the program itself, whichever is the actual thing that
// must be exec'd.
func launch(root *os.Root, program string, argv []string) (*resolved, error) {
	target, err := openProgram(root, program)
	if err != nil {
		return nil, err
	}

	interp, rewritten, err := probeShebang(root, target, program, argv)
	if err != nil {
		target.Close()
		return nil, err
	}

	if interp == nil {
		return &resolved{file: target, argv: argv}, nil
	}

	target.Close()

	return &resolved{file: interp, argv: rewritten}, nil
}

// openProgram opens program relative to the mirror directory; if that
// fails (the program lives outside the mirror, e.g. a user-supplied filter
// on the host PATH), it falls back to an absolute-path open (spec §4.5
// step 5).
func openProgram(root *os.Root, program string) (*os.File, error) {
	if root != nil {
		if f, err := root.Open(program); err == nil {
			return f, nil
		}
	}

	f, err := os.Open(program)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProgramNotFound, program, err)
	}

	return f, nil
}

// probeShebang reads the first line of target. If it begins with "#!", it
// parses the interpreter path, re-opens the interpreter (mirror-relative
// first, falling back to absolute), and returns it along with argv rewritten
// to [interpreter, program, argv[1:]...]. If no shebang is present, or the
// parsed interpreter path is empty, it returns (nil, nil, nil) meaning
// "exec target as-is".
func probeShebang(root *os.Root, target *os.File, program string, argv []string) (*os.File, []string, error) {
	buf := make([]byte, shebangProbeBytes)

	n, _ := target.ReadAt(buf, 0)
	if n < 2 {
		return nil, nil, nil
	}

	if buf[0] != '#' || buf[1] != '!' {
		return nil, nil, nil
	}

	line := buf[:n]
	if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}

	interpPath := parseShebangInterpreter(string(line[2:]))
	if interpPath == "" {
		return nil, nil, nil
	}

	interp, err := openProgram(root, interpPath)
	if err != nil {
		return nil, nil, err
	}

	rewritten := make([]string, 0, len(argv)+1)
	rewritten = append(rewritten, interpPath, program)

	if len(argv) > 1 {
		rewritten = append(rewritten, argv[1:]...)
	}

	return interp, rewritten, nil
}

// parseShebangInterpreter skips leading blanks after "#!" and reads up to
// the next unescaped blank or end of line, mirroring the original
// implementation's backslash-continuation handling.
func parseShebangInterpreter(rest string) string {
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}

	if i >= len(rest) {
		return ""
	}

	var b strings.Builder

	for i < len(rest) {
		c := rest[i]
		if c == '\\' && i+1 < len(rest) {
			b.WriteByte(rest[i+1])
			i += 2

			continue
		}

		if c == ' ' || c == '\t' {
			break
		}

		b.WriteByte(c)
		i++
	}

	return b.String()
}
