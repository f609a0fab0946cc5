package procexec

import (
	"os"
	"testing"
)

func TestExecuteCapturesStdout(t *testing.T) {
	root := openTestRoot(t)
	write(t, root, "greet.sh", "#!/bin/sh\necho hello-from-script\n", 0o755)

	out, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer out.Close()

	exec := New(os.Environ())

	code, err := exec.Execute(root, "greet.sh", []string{"greet.sh"}, out, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	got, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "hello-from-script\n" {
		t.Fatalf("captured stdout = %q, want %q", got, "hello-from-script\n")
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	root := openTestRoot(t)
	write(t, root, "fail.sh", "#!/bin/sh\nexit 3\n", 0o755)

	exec := New(os.Environ())

	code, err := exec.Run(root, "fail.sh", []string{"fail.sh"}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
}

func TestExecuteFeedsStdin(t *testing.T) {
	root := openTestRoot(t)
	write(t, root, "cat.sh", "#!/bin/sh\ncat\n", 0o755)
	write(t, root, "input.txt", "piped content\n", 0o644)

	out, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer out.Close()

	exec := New(os.Environ())

	code, err := exec.Execute(root, "cat.sh", []string{"cat.sh"}, out, "input.txt")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	got, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "piped content\n" {
		t.Fatalf("captured stdout = %q, want %q", got, "piped content\n")
	}
}

func TestExecuteMissingProgramReportsNonZeroNotError(t *testing.T) {
	root := openTestRoot(t)

	exec := New(os.Environ())

	code, err := exec.Run(root, "no-such-program", nil, "")
	if err != nil {
		t.Fatalf("Run: %v, want no hard error for a missing program", err)
	}

	if code == 0 {
		t.Fatal("exit code = 0, want non-zero for a missing program")
	}
}
