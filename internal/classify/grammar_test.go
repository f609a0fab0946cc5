package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParseProcedureDefaultsToShebangOrExecutable(t *testing.T) {
	proc, err := ParseProcedure("/usr/bin/jq .")
	if err != nil {
		t.Fatalf("ParseProcedure: %v", err)
	}

	if proc.Test.Kind != TestShebangOrExecutable {
		t.Fatalf("Test.Kind = %v, want TestShebangOrExecutable", proc.Test.Kind)
	}

	if proc.Program.Kind != ProgramExternalFilter {
		t.Fatalf("Program.Kind = %v, want ProgramExternalFilter", proc.Program.Kind)
	}

	if proc.Program.Path != "/usr/bin/jq" {
		t.Fatalf("Program.Path = %q, want /usr/bin/jq", proc.Program.Path)
	}
}

func TestParseProcedureFilterMode(t *testing.T) {
	proc, err := ParseProcedure("< /usr/bin/jq .")
	if err != nil {
		t.Fatalf("ParseProcedure: %v", err)
	}

	if !proc.Program.Filter {
		t.Fatal("Program.Filter = false, want true")
	}

	if proc.Program.Path != "/usr/bin/jq" {
		t.Fatalf("Program.Path = %q, want /usr/bin/jq", proc.Program.Path)
	}
}

func TestParseProcedurePlaceholder(t *testing.T) {
	proc, err := ParseProcedure("/usr/bin/tidy -q !")
	if err != nil {
		t.Fatalf("ParseProcedure: %v", err)
	}

	got := proc.Program.Argv.Build("script.html")
	want := []string{"/usr/bin/tidy", "-q", "script.html"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseProcedureTestHalves(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want TestKind
	}{
		{"always-true", "/bin/cat;T", TestAlwaysTrue},
		{"always-false", "/bin/cat;F", TestAlwaysFalse},
		{"executable", "/bin/cat;x", TestExecutable},
		{"shebang", "/bin/cat;s", TestShebang},
		{"regex", "/bin/cat;/\\.json$/", TestRegex},
		{"program", "/bin/cat;p /usr/bin/file -b !", TestProgram},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, err := ParseProcedure(tt.raw)
			if err != nil {
				t.Fatalf("ParseProcedure(%q): %v", tt.raw, err)
			}

			if proc.Test.Kind != tt.want {
				t.Fatalf("Test.Kind = %v, want %v", proc.Test.Kind, tt.want)
			}
		})
	}
}

func TestParseProcedureTestHalfFilterMode(t *testing.T) {
	proc, err := ParseProcedure("/bin/cat;< p /usr/bin/file !")
	if err != nil {
		t.Fatalf("ParseProcedure: %v", err)
	}

	if proc.Test.Kind != TestProgram {
		t.Fatalf("Test.Kind = %v, want TestProgram", proc.Test.Kind)
	}

	if !proc.Test.Filter {
		t.Fatal("Test.Filter = false, want true")
	}
}

func TestParseProcedureRejectsEmptyProgram(t *testing.T) {
	_, err := ParseProcedure("   ")
	if err == nil {
		t.Fatal("expected error for empty program half")
	}
}

func TestParseProcedureRejectsUnknownTestMarker(t *testing.T) {
	_, err := ParseProcedure("/bin/cat;zzz")
	if err == nil {
		t.Fatal("expected error for unknown test marker")
	}
}

func TestArgTemplateBuildNoPlaceholder(t *testing.T) {
	tmpl := newArgTemplate([]string{"/bin/cat", "-n"})

	got := tmpl.Build("ignored.txt")
	want := []string{"/bin/cat", "-n"}

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestArgTemplateBuildIsFreshEachCall(t *testing.T) {
	tmpl := newArgTemplate([]string{"/bin/cat", "!"})

	first := tmpl.Build("a.txt")
	second := tmpl.Build("b.txt")

	if first[1] != "a.txt" || second[1] != "b.txt" {
		t.Fatalf("got first=%v second=%v, want independent substitutions", first, second)
	}

	// Mutating one result must never leak into the template or the other result.
	first[1] = "mutated"
	if second[1] != "b.txt" {
		t.Fatalf("second[1] = %q after mutating first, want unaffected b.txt", second[1])
	}
}
