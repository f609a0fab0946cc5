package classify

import "os"

// Procedure is a (Test, Program) pair: a test that selects files, and a
// program that produces their content.
type Procedure struct {
	Test    Test
	Program Program
}

// Registry holds the ordered list of procedures. It is append-only during
// startup and read-only afterward; concurrent calls to Match require no
// synchronization once construction is finished (§5: the registry is
// installed once at startup and never mutated again).
type Registry struct {
	procedures []Procedure
}

// NewRegistry returns an empty registry. Callers append procedures with Add
// during startup, then treat the Registry as immutable.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a procedure to the end of the registry. Order is significant:
// classification traverses procedures in insertion order and the first
// match wins (§3 invariant), so inserting a procedure later can never change
// the result for any file an earlier procedure already matched.
func (r *Registry) Add(p Procedure) {
	r.procedures = append(r.procedures, p)
}

// Len reports how many procedures are registered.
func (r *Registry) Len() int {
	return len(r.procedures)
}

// Empty reports whether no procedures have been registered.
func (r *Registry) Empty() bool {
	return len(r.procedures) == 0
}

// InstallDefault installs the single default procedure (shebang-or-executable,
// interpret-shell) used when no -p flag is given at all (§4.2).
func (r *Registry) InstallDefault() {
	r.Add(Procedure{
		Test:    Test{Kind: TestShebangOrExecutable},
		Program: InterpretShellProgram(),
	})
}

// Match returns the first procedure whose Test matches candidate, or
// (Procedure{}, false, nil) if none does.
func (r *Registry) Match(root *os.Root, candidate string, exec ProgramRunner) (Procedure, bool, error) {
	for _, p := range r.procedures {
		ok, err := p.Test.Evaluate(root, candidate, exec)
		if err != nil {
			return Procedure{}, false, err
		}

		if ok {
			return p, true, nil
		}
	}

	return Procedure{}, false, nil
}
