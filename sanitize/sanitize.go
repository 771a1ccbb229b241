package sanitize

import (
	"os"
	"regexp"
	"strings"
)

const redacted = "<redacted>"

// Sanitizer replaces host-absolute path prefixes with a fixed
// "<redacted>" token. It is configured once with a list of host roots
// (typically the working directory, a temp dir, and the user's home
// directory) and reused for every error/stack it sees; building the
// regexes once at construction time keeps Sanitize cheap per call.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// New builds a Sanitizer from an explicit list of host roots. Roots
// that are empty strings are ignored. The user's home directory (as
// reported by os.UserHomeDir) is always included, matching spec §4.1
// ("the configured list of host roots and the user's home directory").
func New(roots ...string) *Sanitizer {
	s := &Sanitizer{}
	seen := map[string]struct{}{}
	add := func(root string) {
		root = strings.TrimRight(root, "/")
		if root == "" {
			return
		}
		if _, ok := seen[root]; ok {
			return
		}
		seen[root] = struct{}{}
		// Match the root followed by a path separator or the end of the
		// string, so that "/home/user2" doesn't spuriously match root
		// "/home/user".
		pattern := regexp.QuoteMeta(root) + `(?:/|\\|$)`
		s.patterns = append(s.patterns, regexp.MustCompile(pattern))
	}
	for _, r := range roots {
		add(r)
	}
	if home, err := os.UserHomeDir(); err == nil {
		add(home)
	}
	return s
}

// Sanitize replaces every configured host-root prefix found anywhere in
// s with "<redacted>", preserving whatever follows the root (including
// a trailing ":line:column" suffix, since that suffix is part of what
// follows, not part of the matched prefix).
func (s *Sanitizer) Sanitize(in string) string {
	if s == nil || in == "" {
		return in
	}
	out := in
	for _, pattern := range s.patterns {
		out = pattern.ReplaceAllStringFunc(out, func(match string) string {
			// match is "<root><sep>"; keep the separator's redaction
			// marker only, the path continues right after.
			sep := match[len(match)-1]
			if sep == '/' || sep == '\\' {
				return redacted + string(sep)
			}
			return redacted
		})
	}
	return out
}

// SanitizeStackTrace applies Sanitize to each line of a multiline stack
// trace independently, preserving line breaks.
func (s *Sanitizer) SanitizeStackTrace(multiline string) string {
	if multiline == "" {
		return multiline
	}
	lines := strings.Split(multiline, "\n")
	for i, line := range lines {
		lines[i] = s.Sanitize(line)
	}
	return strings.Join(lines, "\n")
}
