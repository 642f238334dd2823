package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractIdentifiers_URLShaped(t *testing.T) {
	key := "abcdef0123456789abcdef0123456789"
	text := "SENTRY_DSN=https://" + key + "@o4501234567890123.ingest.sentry.io/4501234567891"

	ids := extractIdentifiers(text)
	require.Len(t, ids, 1)
	assert.Equal(t, key, ids[0].publicKey)
	assert.Equal(t, "4501234567891", ids[0].projectID)
	assert.Equal(t, "4501234567890123", ids[0].orgID)
}

func TestExtractIdentifiers_BarePublicKey(t *testing.T) {
	key := "abcdef0123456789abcdef0123456789"
	ids := extractIdentifiers("public_key = \"" + key + "\"")

	require.Len(t, ids, 1)
	assert.Equal(t, key, ids[0].publicKey)
	assert.Empty(t, ids[0].orgID)
}

func TestExtractIdentifiers_NoDuplicateFromURLAndBareMatch(t *testing.T) {
	key := "abcdef0123456789abcdef0123456789"
	text := "https://" + key + "@o1.ingest.sentry.io/2"

	ids := extractIdentifiers(text)
	require.Len(t, ids, 1, "the bare-key pattern must not double-count a key already captured by the URL pattern")
}

func TestScanIdentifiers_FindsDotEnvLocal(t *testing.T) {
	dir := t.TempDir()
	key := "abcdef0123456789abcdef0123456789"
	content := []byte("SENTRY_DSN=https://" + key + "@o1.ingest.sentry.io/2\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), content, 0o644))

	ids := scanIdentifiers(dir)
	require.Len(t, ids, 1)
	assert.Equal(t, key, ids[0].publicKey)
}

func TestScanIdentifiers_SkipsVendorDir(t *testing.T) {
	dir := t.TempDir()
	vendorDir := filepath.Join(dir, "vendor")
	require.NoError(t, os.MkdirAll(vendorDir, 0o755))
	key := "abcdef0123456789abcdef0123456789"
	content := []byte("https://" + key + "@o1.ingest.sentry.io/2")
	require.NoError(t, os.WriteFile(filepath.Join(vendorDir, "main.go"), content, 0o644))

	ids := scanIdentifiers(dir)
	assert.Empty(t, ids, "vendor/ must not be descended into")
}
