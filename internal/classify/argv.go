package classify

// ArgTemplate builds an argument vector from an immutable prefix/suffix pair
// plus a candidate filename substituted at a single placeholder position.
//
// This replaces the original implementation's shared-mutable-argv hack
// (substitute into a slot, run, then restore an empty sentinel so the next
// caller's substitute-and-free pattern is safe): instead of mutating a
// shared array, Build allocates a fresh slice per candidate from a template
// that is never written to after construction. There is nothing to restore
// and nothing to race on under concurrent Test Evaluator calls.
type ArgTemplate struct {
	// Tokens is the whitespace-tokenized argument list as written on the
	// command line, with HasPlaceholder recording whether one token was an
	// unescaped "!" to be substituted with the candidate filename.
	Tokens         []string
	HasPlaceholder bool
	PlaceholderAt  int
}

// Build returns a fresh argv for candidate. If the template has no
// placeholder, it returns a copy of Tokens unchanged (candidate is fed some
// other way, e.g. via stdin).
func (a ArgTemplate) Build(candidate string) []string {
	out := make([]string, len(a.Tokens))
	copy(out, a.Tokens)

	if a.HasPlaceholder && a.PlaceholderAt >= 0 && a.PlaceholderAt < len(out) {
		out[a.PlaceholderAt] = candidate
	}

	return out
}

// newArgTemplate builds a template from whitespace-tokenized halves,
// recording the position of the first unescaped "!" placeholder token, if
// any.
func newArgTemplate(tokens []string) ArgTemplate {
	tmpl := ArgTemplate{Tokens: tokens, PlaceholderAt: -1}

	for i, tok := range tokens {
		if tok == "!" {
			tmpl.HasPlaceholder = true
			tmpl.PlaceholderAt = i

			break
		}
	}

	return tmpl
}
