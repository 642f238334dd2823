package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildMultiTargetContextKey_OrderInvariant(t *testing.T) {
	a := BuildMultiTargetContextKey("https://sentry.io/api/0", []string{"acme/web", "acme/api"}, "date", "90d", "")
	b := BuildMultiTargetContextKey("https://sentry.io/api/0", []string{"acme/api", "acme/web"}, "date", "90d", "")
	require.Equal(t, a, b)
}

func TestBuildMultiTargetContextKey_DistinctOnQuery(t *testing.T) {
	a := BuildMultiTargetContextKey("https://sentry.io/api/0", []string{"acme/web"}, "date", "90d", "")
	b := BuildMultiTargetContextKey("https://sentry.io/api/0", []string{"acme/web"}, "date", "90d", "is:unresolved")
	require.NotEqual(t, a, b)
}

func TestEscapeSegment(t *testing.T) {
	require.Equal(t, `a\\b\|c`, EscapeSegment(`a\b|c`))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := []string{"cur1", "", "cur3"}
	out := Decode(Encode(in))
	require.Equal(t, in, out)
}

func TestDecode_LegacyJSONLikeIsEmpty(t *testing.T) {
	require.Nil(t, Decode(`["a","b"]`))
}

func TestDecode_Empty(t *testing.T) {
	require.Nil(t, Decode(""))
}

type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{values: map[string]string{}} }

func (f *fakeStore) key(commandKey, contextKey string) string { return commandKey + "\x00" + contextKey }

func (f *fakeStore) GetPaginationCursor(_ context.Context, commandKey, contextKey string) (string, bool, error) {
	v, ok := f.values[f.key(commandKey, contextKey)]
	return v, ok, nil
}

func (f *fakeStore) SetPaginationCursor(_ context.Context, commandKey, contextKey, cur string) error {
	f.values[f.key(commandKey, contextKey)] = cur
	return nil
}

func (f *fakeStore) DeletePaginationCursor(_ context.Context, commandKey, contextKey string) error {
	delete(f.values, f.key(commandKey, contextKey))
	return nil
}

func TestPersist_DeletesWhenAllSegmentsEmpty(t *testing.T) {
	s := newFakeStore()
	ctx := context.Background()

	require.NoError(t, Persist(ctx, s, "issues.list", "ctx-a", []string{"cur1", "cur2"}))
	_, ok, err := Load(ctx, s, "issues.list", "ctx-a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, Persist(ctx, s, "issues.list", "ctx-a", []string{"", ""}))
	_, ok, err = Load(ctx, s, "issues.list", "ctx-a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoad_MissingReturnsFalse(t *testing.T) {
	s := newFakeStore()
	_, ok, err := Load(context.Background(), s, "issues.list", "nope")
	require.NoError(t, err)
	require.False(t, ok)
}
