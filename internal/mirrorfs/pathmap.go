// Package mirrorfs implements the script-aware overlay filesystem façade:
// the Path Mapper, the open-file Handle Table, and the FUSE-facing
// FileSystemInterface that ties them to the classify/procexec/scriptrun
// packages.
package mirrorfs

import (
	"errors"
	"strings"
)

// ErrBadPath is returned by ToRelative for input it cannot map (spec §4.1:
// "Empty input yields a null result and the caller must treat that as a
// bad-path error").
var ErrBadPath = errors.New("mirrorfs: bad path")

// ToRelative translates a virtual absolute path (as delivered by the
// kernel upcall dispatcher) into a path relative to mirror_dir. "/" maps to
// ".": every other path has its leading slash stripped verbatim, with no
// further canonicalization (the caller is expected to resolve it against
// mirror_dir with an "at"-style operation, which itself rejects "..").
func ToRelative(virtual string) (string, error) {
	if virtual == "" {
		return "", ErrBadPath
	}

	if virtual == "/" {
		return ".", nil
	}

	return strings.TrimPrefix(virtual, "/"), nil
}
