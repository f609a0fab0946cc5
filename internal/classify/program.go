package classify

// ProgramKind discriminates the mechanism used to produce a script's output.
type ProgramKind int

const (
	// ProgramInterpretShell copies the source to a fresh temp file
	// (preserving owner read+execute bits), execs it directly with no
	// arguments, and captures stdout.
	ProgramInterpretShell ProgramKind = iota + 1
	// ProgramExternalFilter runs a user-supplied executable with an argument
	// vector that may include a filename placeholder, optionally feeding the
	// candidate's bytes on stdin.
	ProgramExternalFilter
)

// Program is the mechanism that produces a classified file's output.
type Program struct {
	Kind ProgramKind

	// Path, Argv and Filter are set only when Kind == ProgramExternalFilter.
	Path   string
	Argv   ArgTemplate
	Filter bool
}

// InterpretShellProgram returns the default Program: copy-and-exec-directly.
func InterpretShellProgram() Program {
	return Program{Kind: ProgramInterpretShell}
}

// ExternalFilterProgram returns a Program that runs path with the given
// argument template, optionally feeding the candidate on stdin.
func ExternalFilterProgram(path string, argv ArgTemplate, filter bool) Program {
	return Program{Kind: ProgramExternalFilter, Path: path, Argv: argv, Filter: filter}
}
