//go:build cgo

package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kouak/tracecli/internal/model"
)

const testTimeout = 30 * time.Second

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), testTimeout)
}

// skipIfNoDolt skips the test if the embedded engine's CLI companion isn't
// installed; embedded mode still shells out to it for some operations.
func skipIfNoDolt(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("dolt"); err != nil {
		t.Skip("dolt not installed, skipping test")
	}
}

func uniqueTestDBName(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 6)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return "testdb_" + hex.EncodeToString(buf)
}

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	skipIfNoDolt(t)

	ctx, cancel := testContext(t)
	defer cancel()

	tmpDir, err := os.MkdirTemp("", "tracecli-store-test-*")
	require.NoError(t, err)

	cfg := &Config{Path: tmpDir, Database: uniqueTestDBName(t)}
	s, err := Open(ctx, cfg)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("opening store: %v", err)
	}

	cleanup := func() {
		s.Close()
		os.RemoveAll(tmpDir)
	}
	return s, cleanup
}

func TestInitSchema_SetsCurrentVersion(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := testContext(t)
	defer cancel()

	issues, err := s.GetSchemaIssues(ctx)
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestInitSchema_SkipsReinitWhenCurrent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := testContext(t)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS transaction_aliases")
	require.NoError(t, err)

	require.NoError(t, s.initSchema(ctx))

	var count int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'transaction_aliases' AND table_schema = DATABASE()",
	).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count, "initSchema should have skipped DDL since schema_version is already current")
}

func TestRepairSchema_RecreatesDroppedTableWithoutTouchingOthers(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := testContext(t)
	defer cancel()

	require.NoError(t, s.SetDefault(ctx, "org", "acme"))

	_, err := s.db.ExecContext(ctx, "DROP TABLE transaction_aliases")
	require.NoError(t, err)

	issues, err := s.GetSchemaIssues(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, MissingTable, issues[0].Kind)
	require.Equal(t, "transaction_aliases", issues[0].Table)

	report, err := s.RepairSchema(ctx)
	require.NoError(t, err)
	require.Len(t, report.Fixed, 1)
	require.Empty(t, report.Failed)

	issues, err = s.GetSchemaIssues(ctx)
	require.NoError(t, err)
	require.Empty(t, issues)

	value, ok, err := s.GetDefault(ctx, "org")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "acme", value, "repair must not touch unrelated existing data")
}

func TestRepairSchema_ReAddsDroppedColumnWithDefault(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := testContext(t)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "ALTER TABLE org_regions DROP COLUMN url")
	require.NoError(t, err)

	report, err := s.RepairSchema(ctx)
	require.NoError(t, err)
	require.Len(t, report.Fixed, 1)
	require.Equal(t, "org_regions", report.Fixed[0].Table)
	require.Equal(t, "url", report.Fixed[0].Column)

	require.NoError(t, s.SetOrgRegions(ctx, []model.OrgRegion{{Org: "acme", URL: "https://us.example.io"}}))
	url, ok, err := s.ResolveOrgRegion(ctx, "acme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://us.example.io", url)
}

func TestClearAuth_AlsoClearsRegionDirectory(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := testContext(t)
	defer cancel()

	require.NoError(t, s.SetAuth(ctx, Auth{AccessToken: "tok", AuthType: "token"}))
	require.NoError(t, s.SetOrgRegions(ctx, []model.OrgRegion{{Org: "acme", URL: "https://us.example.io"}}))

	require.NoError(t, s.ClearAuth(ctx))

	_, ok, err := s.GetAuth(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.ResolveOrgRegion(ctx, "acme")
	require.NoError(t, err)
	require.False(t, ok, "clearing auth must also clear the region directory (invariant 4)")
}

func TestSetProjectAliases_ReplacesWholeTable(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := testContext(t)
	defer cancel()

	require.NoError(t, s.SetProjectAliases(ctx, []model.ProjectAliasEntry{
		{Alias: "web", Org: "acme", Project: "web-frontend"},
		{Alias: "api", Org: "acme", Project: "api-backend"},
	}, "fp1"))

	require.NoError(t, s.SetProjectAliases(ctx, []model.ProjectAliasEntry{
		{Alias: "fe", Org: "acme", Project: "web-frontend"},
	}, "fp2"))

	aliases, err := s.ProjectAliases(ctx)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	require.Equal(t, "fe", aliases[0].Alias)

	fp, ok, err := s.ProjectAliasFingerprint(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fp2", fp)
}

func TestPaginationCursor_SetGetDelete(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := testContext(t)
	defer cancel()

	require.NoError(t, s.SetPaginationCursor(ctx, "issues.list", "ctx-a", "cur1|cur2"))

	value, ok, err := s.GetPaginationCursor(ctx, "issues.list", "ctx-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cur1|cur2", value)

	require.NoError(t, s.DeletePaginationCursor(ctx, "issues.list", "ctx-a"))
	_, ok, err = s.GetPaginationCursor(ctx, "issues.list", "ctx-a")
	require.NoError(t, err)
	require.False(t, ok)
}
