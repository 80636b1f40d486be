package capability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapMatches(t *testing.T) {
	cases := []struct {
		granted  string
		required string
		want     bool
	}{
		{"weft.*", "weft.execute.tool.weft.fs.fs_write", true},
		{"weft.execute.*", "weft.execute.tool.anything", true},
		{"weft.execute.tool.*", "weft.execute.tool.weft.fs.fs_write", true},
		{"weft.execute.tool.weft.fs.*", "weft.execute.tool.weft.fs.fs_write", true},
		{"weft.execute.tool.weft.fs.fs_write", "weft.execute.tool.weft.fs.fs_write", true},
		{"weft.execute", "weft.execute.tool.x", true},
		{"weft.execute.tool.*", "weft.execute.directive.x", false},
		{"weft.search.*", "weft.execute.tool.x", false},
		{"weft.execute.tool.weft.fs.fs_read", "weft.execute.tool.weft.fs.fs_write", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, capMatches(tc.granted, tc.required),
			"granted=%s required=%s", tc.granted, tc.required)
	}
}

func TestStructuralImplication(t *testing.T) {
	// execute implies search and load at the same specificity
	granted := []string{"weft.execute.tool.weft.fs.*"}
	assert.True(t, MatchAny(granted, "weft.search.tool.weft.fs.fs_write"))
	assert.True(t, MatchAny(granted, "weft.load.tool.weft.fs.fs_write"))
	assert.False(t, MatchAny(granted, "weft.sign.tool.weft.fs.fs_write"))

	// sign implies load only
	granted = []string{"weft.sign.directive.*"}
	assert.True(t, MatchAny(granted, "weft.load.directive.x"))
	assert.False(t, MatchAny(granted, "weft.execute.directive.x"))
}

func TestAttenuationIsIntersection(t *testing.T) {
	parent := NewToken([]string{"weft.execute.tool.weft.fs.*"}, "child-1", time.Hour, "", time.Now())

	got := parent.Attenuate([]string{
		"weft.execute.tool.weft.fs.fs_write", // covered
		"weft.execute.tool.weft.net.fetch",   // not covered, dropped
		"weft.search.tool.weft.fs.fs_read",   // covered via implication
	})
	assert.Equal(t, []string{
		"weft.execute.tool.weft.fs.fs_write",
		"weft.search.tool.weft.fs.fs_read",
	}, got)
}

func TestTokenCheck(t *testing.T) {
	now := time.Now()
	tok := NewToken([]string{"weft.execute.tool.*"}, "worker-01", time.Hour, "", now)

	require.NoError(t, tok.Check("weft.execute.tool.weft.fs.fs_write", now))

	err := tok.Check("weft.sign.tool.weft.fs.fs_write", now)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = tok.Check("weft.execute.tool.weft.fs.fs_write", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestItemIDToCap(t *testing.T) {
	got := ItemIDToCap("execute", "tool", "weft/file-system/fs_write")
	assert.Equal(t, "weft.execute.tool.weft.file-system.fs_write", got)
}
