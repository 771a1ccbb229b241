package sanitize_test

import (
	"testing"

	"github.com/codeharbor/sandboxexec/sanitize"
	"github.com/stretchr/testify/assert"
)

func TestSanitize_RedactsConfiguredRoot(t *testing.T) {
	s := sanitize.New("/var/lib/sandbox")

	got := s.Sanitize("Error at /var/lib/sandbox/worker/index.js:12:5")
	assert.Equal(t, "Error at <redacted>/worker/index.js:12:5", got)
}

func TestSanitize_LeavesUnrelatedPathsAlone(t *testing.T) {
	s := sanitize.New("/var/lib/sandbox")

	got := s.Sanitize("Error at /var/lib/sandbox2/other.js:1:1")
	assert.Equal(t, "Error at /var/lib/sandbox2/other.js:1:1", got)
}

func TestSanitize_NoRootsConfiguredLeavesPlainTextAlone(t *testing.T) {
	s := sanitize.New()
	got := s.Sanitize("nothing interesting here")
	assert.Equal(t, "nothing interesting here", got)
}

func TestSanitizeStackTrace_AppliesPerLine(t *testing.T) {
	s := sanitize.New("/srv/app")
	trace := "TypeError: boom\n    at /srv/app/worker.js:3:1\n    at /srv/app/lib/util.js:9:4"
	want := "TypeError: boom\n    at <redacted>/worker.js:3:1\n    at <redacted>/lib/util.js:9:4"
	assert.Equal(t, want, s.SanitizeStackTrace(trace))
}
