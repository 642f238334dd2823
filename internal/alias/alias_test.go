package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kouak/tracecli/internal/model"
)

// TestAssign_CommonPrefixStripping is §4.7's worked example: a shared
// "spotlight-" token prefix is stripped before taking the shortest unique
// prefix, and a slug that would otherwise be stripped to empty ("spotlight"
// itself, with no hyphen to strip past) is left unchanged.
func TestAssign_CommonPrefixStripping(t *testing.T) {
	targets := []model.Target{
		{Org: "acme", Project: "spotlight-electron"},
		{Org: "acme", Project: "spotlight-website"},
		{Org: "acme", Project: "spotlight"},
	}

	got := Assign(targets)

	assert.Equal(t, "e", got["acme/spotlight-electron"])
	assert.Equal(t, "w", got["acme/spotlight-website"])
	assert.Equal(t, "s", got["acme/spotlight"])
}

// TestAssign_CrossOrgCollisionPrefixesWithOrg covers §4.7's collision rule:
// two targets from different orgs that would otherwise compute the same
// alias are both re-prefixed with the shortest unique prefix of their org
// slug, even though each org's own within-org computation is unambiguous.
func TestAssign_CrossOrgCollisionPrefixesWithOrg(t *testing.T) {
	acmeWeb := model.Target{Org: "acme", Project: "web"}
	otherWeb := model.Target{Org: "other", Project: "web"}

	got := Assign([]model.Target{acmeWeb, otherWeb})

	assert.Equal(t, "a/w", got[acmeWeb.Key()])
	assert.Equal(t, "o/w", got[otherWeb.Key()])
}

// TestAssign_NonCollidingCrossOrgKeepsBarePrefix makes sure the org prefix
// is only added to targets that actually collide — a third, non-colliding
// org's alias stays a bare project-slug prefix.
func TestAssign_NonCollidingCrossOrgKeepsBarePrefix(t *testing.T) {
	acmeWeb := model.Target{Org: "acme", Project: "web"}
	otherWeb := model.Target{Org: "other", Project: "web"}
	thirdAPI := model.Target{Org: "third", Project: "api"}

	got := Assign([]model.Target{acmeWeb, otherWeb, thirdAPI})

	assert.Equal(t, "a/w", got[acmeWeb.Key()])
	assert.Equal(t, "o/w", got[otherWeb.Key()])
	assert.Equal(t, "a", got[thirdAPI.Key()])
}

func TestAssign_AliasesAreLowercase(t *testing.T) {
	targets := []model.Target{
		{Org: "Acme", Project: "Frontend"},
		{Org: "Acme", Project: "Backend"},
	}

	got := Assign(targets)

	for _, a := range got {
		assert.Equal(t, a, toLowerASCII(a))
	}
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint([]string{"acme/web", "acme/api"})
	b := Fingerprint([]string{"acme/api", "acme/web"})
	assert.Equal(t, a, b)
}

func TestExtractSegmentToken_SkipsPlaceholdersAndNumbers(t *testing.T) {
	assert.Equal(t, "users", ExtractSegmentToken("/api/{org}/users/123/profile"))
	assert.Equal(t, "profile", ExtractSegmentToken("/{org}/123/profile"))
	assert.Empty(t, ExtractSegmentToken("/{org}/123/{id}"))
	assert.Empty(t, ExtractSegmentToken(""))
}

func TestExtractSegmentToken_NeverReturnsPlaceholderOrNumericSegment(t *testing.T) {
	cases := []string{
		"/{org}/456",
		"/api/{org}/{project}/789",
		"checkout/{cartId}/123456",
		"plain-segment",
	}
	for _, c := range cases {
		got := ExtractSegmentToken(c)
		assert.NotEqual(t, "{org}", got)
		assert.False(t, isAllDigits(got) && got != "", "got purely numeric segment %q for input %q", got, c)
	}
}

func TestFingerprint_DeduplicatesIdentifiers(t *testing.T) {
	a := Fingerprint([]string{"acme/web", "acme/web"})
	b := Fingerprint([]string{"acme/web"})
	assert.Equal(t, a, b)
}
