package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordBoundaryPattern_MatchesAtBoundaries(t *testing.T) {
	re, err := wordBoundaryPattern("web")
	require.NoError(t, err)

	assert.True(t, re.MatchString("web"))
	assert.True(t, re.MatchString("acme-web"))
	assert.True(t, re.MatchString("web-service"))
	assert.False(t, re.MatchString("webhook"))
}

func TestWordBoundaryPattern_UnderscoreIsNotABoundary(t *testing.T) {
	// §9 open question, preserved: underscore is a word character, so
	// "my_web" / "web_app" do NOT count "web" as separated by a boundary.
	re, err := wordBoundaryPattern("web")
	require.NoError(t, err)

	assert.False(t, re.MatchString("my_web"))
	assert.False(t, re.MatchString("web_app"))
}
