package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-scriptfs/scriptfs/internal/lifecycle"
)

func runCLI(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer

	fullArgs := append([]string{"scriptfs"}, args...)
	code := Run(nil, &stdout, &stderr, fullArgs, nil, nil)

	return stdout.String(), stderr.String(), code
}

func TestRunShowsHelpOnHelpFlag(t *testing.T) {
	stdout, _, code := runCLI("--help")

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if !strings.Contains(stdout, "scriptfs - a FUSE overlay") {
		t.Fatalf("stdout = %q, want usage text", stdout)
	}
}

func TestRunShowsVersionOnVersionFlag(t *testing.T) {
	stdout, _, code := runCLI("--version")

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if !strings.Contains(stdout, "scriptfs") {
		t.Fatalf("stdout = %q, want version string", stdout)
	}
}

func TestRunRejectsMissingPositionalArgs(t *testing.T) {
	_, stderr, code := runCLI()

	if code != 64 {
		t.Fatalf("exit code = %d, want 64 (EX_USAGE)", code)
	}

	if !strings.Contains(stderr, "MIRROR") {
		t.Fatalf("stderr = %q, want a usage error mentioning MIRROR", stderr)
	}
}

func TestRunRejectsOnlyOnePositionalArg(t *testing.T) {
	_, stderr, code := runCLI("/tmp")

	if code != 64 {
		t.Fatalf("exit code = %d, want 64 (EX_USAGE)", code)
	}

	if stderr == "" {
		t.Fatal("expected a usage error on stderr")
	}
}

func TestRunRejectsMissingMirrorDirectory(t *testing.T) {
	mount := t.TempDir()

	_, _, code := runCLI("/nonexistent/mirror/path", mount)

	if code != lifecycle.ExitNotFound {
		t.Fatalf("exit code = %d, want %d (ENOENT)", code, lifecycle.ExitNotFound)
	}
}

// TestRunRejectsMirrorThatIsNotADirectory covers a mirror path that exists
// but is a regular file: the original CLI treats that the same as a
// missing mirror (ENOENT), not a generic failure.
func TestRunRejectsMirrorThatIsNotADirectory(t *testing.T) {
	dir := t.TempDir()
	mirror := filepath.Join(dir, "not-a-dir")

	if err := os.WriteFile(mirror, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mount := t.TempDir()

	_, _, code := runCLI(mirror, mount)

	if code != lifecycle.ExitNotFound {
		t.Fatalf("exit code = %d, want %d (ENOENT)", code, lifecycle.ExitNotFound)
	}
}

func TestRunRejectsBadProcedureFlag(t *testing.T) {
	mirror := t.TempDir()
	mount := t.TempDir()

	_, stderr, code := runCLI("-p", "", mirror, mount)

	if code != 64 {
		t.Fatalf("exit code = %d, want 64 (EX_USAGE)", code)
	}

	if stderr == "" {
		t.Fatal("expected a parse error on stderr for an empty -p argument")
	}
}
