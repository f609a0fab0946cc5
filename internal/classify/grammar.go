package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// maxTokensPerHalf mirrors the original implementation's token buffer limit:
// only the first 254 tokens of either half of a -p argument are honored.
const maxTokensPerHalf = 254

// ParseProcedure parses a single -p argument of the form "program[;test]"
// into a Procedure.
//
// Program half: whitespace-tokenized argv for an external filter program.
// The first token is the program path; a leading "<" token instead marks
// filter mode (the candidate's bytes are fed on the program's stdin) and is
// itself not part of the path/argv. An unescaped "!" token anywhere in the
// remaining tokens marks the placeholder slot substituted with the
// candidate's filename at dispatch time (see ArgTemplate).
//
// Test half (optional; defaults to shebang-or-executable when absent):
// whitespace-tokenized, first token selects the variant:
//
//	T        always-true
//	F        always-false
//	x        executable
//	s        shebang
//	p PROG [ARGS...]   program test (PROG/ARGS tokenized the same way as
//	                    the program half, including "!" placeholder support)
//	/REGEX/  regex test, matched against the mirror-relative pathname
//
// A leading "<" token on the test half marks filter mode for a "p"-kind
// test, the same way it does on the program half.
func ParseProcedure(raw string) (Procedure, error) {
	programHalf, testHalf, hasTest := strings.Cut(raw, ";")

	program, err := parseProgramHalf(programHalf)
	if err != nil {
		return Procedure{}, fmt.Errorf("classify: parsing program half of %q: %w", raw, err)
	}

	if !hasTest {
		return Procedure{Test: Test{Kind: TestShebangOrExecutable}, Program: program}, nil
	}

	test, err := parseTestHalf(testHalf)
	if err != nil {
		return Procedure{}, fmt.Errorf("classify: parsing test half of %q: %w", raw, err)
	}

	return Procedure{Test: test, Program: program}, nil
}

func parseProgramHalf(half string) (Program, error) {
	tokens := tokenize(half)

	filter := false
	if len(tokens) > 0 && tokens[0] == "<" {
		filter = true
		tokens = tokens[1:]
	}

	if len(tokens) == 0 {
		return Program{}, fmt.Errorf("empty program")
	}

	path := tokens[0]
	argv := newArgTemplate(tokens)

	return ExternalFilterProgram(path, argv, filter), nil
}

func parseTestHalf(half string) (Test, error) {
	tokens := tokenize(half)

	filter := false
	if len(tokens) > 0 && tokens[0] == "<" {
		filter = true
		tokens = tokens[1:]
	}

	if len(tokens) == 0 {
		return Test{}, fmt.Errorf("empty test")
	}

	marker := tokens[0]

	switch {
	case marker == "T":
		return Test{Kind: TestAlwaysTrue}, nil
	case marker == "F":
		return Test{Kind: TestAlwaysFalse}, nil
	case marker == "x":
		return Test{Kind: TestExecutable}, nil
	case marker == "s":
		return Test{Kind: TestShebang}, nil
	case marker == "p":
		if len(tokens) < 2 {
			return Test{}, fmt.Errorf("program test requires a program path")
		}

		path := tokens[1]
		argv := newArgTemplate(tokens[1:])

		return Test{Kind: TestProgram, Program: path, Argv: argv, Filter: filter}, nil
	case isRegexLiteral(marker):
		pattern := marker[1 : len(marker)-1]

		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return Test{}, fmt.Errorf("compiling regex %q: %w", pattern, err)
		}

		return Test{Kind: TestRegex, Regex: compiled}, nil
	default:
		return Test{}, fmt.Errorf("unrecognized test marker %q", marker)
	}
}

func isRegexLiteral(tok string) bool {
	return len(tok) >= 2 && strings.HasPrefix(tok, "/") && strings.HasSuffix(tok, "/")
}

// tokenize splits s on runs of spaces, tabs and newlines, collapsing
// consecutive delimiters and trimming leading/trailing blanks, capped at
// maxTokensPerHalf tokens (matching the original implementation's limit).
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n'
	})

	if len(fields) > maxTokensPerHalf {
		fields = fields[:maxTokensPerHalf]
	}

	return fields
}
