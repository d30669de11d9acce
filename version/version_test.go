package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// withVersionVars sets the build variables for one test and restores them.
func withVersionVars(t *testing.T, v, commit, date string, fn func()) {
	t.Helper()
	origVersion, origCommit, origDate := version, gitCommit, buildDate
	defer func() {
		version, gitCommit, buildDate = origVersion, origCommit, origDate
	}()
	version, gitCommit, buildDate = v, commit, date
	fn()
}

func TestVersionNeverEmpty(t *testing.T) {
	assert.NotEmpty(t, Version())
}

func TestVersionFromLdflags(t *testing.T) {
	withVersionVars(t, "1.2.3", "", "", func() {
		assert.Equal(t, "1.2.3", Version())
	})
}

func TestInfoIncludesStampedFields(t *testing.T) {
	withVersionVars(t, "1.2.3", "abcdef0", "2026-08-24", func() {
		info := Info()
		assert.Contains(t, info, "promptforge engine version 1.2.3")
		assert.Contains(t, info, "commit: abcdef0")
		assert.Contains(t, info, "built: 2026-08-24")
	})
}

func TestLogAttrsPairs(t *testing.T) {
	withVersionVars(t, "1.2.3", "abcdef0", "", func() {
		attrs := LogAttrs()
		assert.Equal(t, "version", attrs[0])
		assert.Equal(t, "1.2.3", attrs[1])
		assert.Contains(t, attrs, "commit")
	})
}
