package mirrorfs

import (
	"fmt"
	"os"
	"sync"
)

// HandleKind discriminates the three shapes of open-file record the façade
// hands back to the kernel as an opaque cookie (spec §4.7).
type HandleKind int

const (
	// HandleFile is a pass-through descriptor opened directly against the
	// mirror.
	HandleFile HandleKind = iota + 1
	// HandleScript is an unlinked temp descriptor holding a script's
	// materialized stdout.
	HandleScript
	// HandleFolder owns a directory stream.
	HandleFolder
)

// Handle is one open-file record. RelativeName is advisory: it records the
// mirror-relative name the handle was opened against and is not consulted
// again for classification. Write-protection of a Script handle is decided
// by Kind (see IsScript), as Write and Truncate do.
type Handle struct {
	Kind         HandleKind
	File         *os.File
	Dir          *os.File
	RelativeName string
}

// IsScript reports whether h backs a materialized script (write-protected).
func (h *Handle) IsScript() bool {
	return h != nil && h.Kind == HandleScript
}

// Close releases the handle's descriptor. It is safe to call at most once;
// callers must not reuse a Handle after Close.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}

	switch h.Kind {
	case HandleFolder:
		if h.Dir != nil {
			return h.Dir.Close()
		}
	default:
		if h.File != nil {
			return h.File.Close()
		}
	}

	return nil
}

// Table assigns small integer handles to open-file records and hands back
// opaque uint64 cookies to the FUSE layer, which has no notion of Go
// pointers. Table itself holds only the minimum lock needed to protect the
// map and counter; individual Handle operations (read/write/seek) are not
// serialized by Table — the kernel linearizes operations on a single
// handle itself (spec §5 Ordering).
type Table struct {
	mu      sync.Mutex
	next    uint64
	handles map[uint64]*Handle
}

// NewTable returns an empty handle table.
func NewTable() *Table {
	return &Table{handles: make(map[uint64]*Handle)}
}

// Open registers h and returns its cookie.
func (t *Table) Open(h *Handle) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	cookie := t.next
	t.handles[cookie] = h

	return cookie
}

// Lookup returns the handle for cookie, or nil if it is unknown (a
// programming error in the façade or a kernel upcall racing a release).
func (t *Table) Lookup(cookie uint64) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.handles[cookie]
}

// Release removes cookie from the table and closes its underlying
// descriptor.
func (t *Table) Release(cookie uint64) error {
	t.mu.Lock()
	h, ok := t.handles[cookie]
	delete(t.handles, cookie)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("mirrorfs: release of unknown handle %d", cookie)
	}

	return h.Close()
}

// Len reports how many handles are currently open. Exposed for tests and
// for the "no temp file survives" style invariant checks: a clean test run
// should end with Len() == 0.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.handles)
}
