package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kouak/tracecli/internal/model"
)

// GetSchemaIssues reports schema drift without modifying anything.
func (s *Store) GetSchemaIssues(ctx context.Context) ([]SchemaIssue, error) {
	return GetSchemaIssues(ctx, s.db)
}

// RepairSchema brings the store's schema up to date, never dropping data.
func (s *Store) RepairSchema(ctx context.Context) (*RepairReport, error) {
	return RepairSchema(ctx, s.db)
}

// Auth is the persisted credential set (auth table, single row id=1).
type Auth struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AuthType     string
}

// GetAuth returns the stored credentials, or ok=false if none are stored.
func (s *Store) GetAuth(ctx context.Context) (Auth, bool, error) {
	var a Auth
	var expiresAt int64
	err := s.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&a.AccessToken, &a.RefreshToken, &expiresAt, &a.AuthType)
	}, "SELECT access_token, refresh_token, expires_at, auth_type FROM auth WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return Auth{}, false, nil
	}
	if err != nil {
		return Auth{}, false, err
	}
	a.ExpiresAt = time.Unix(expiresAt, 0)
	return a, true, nil
}

// SetAuth upserts the stored credentials.
func (s *Store) SetAuth(ctx context.Context, a Auth) error {
	_, err := s.exec(ctx, `
		INSERT INTO auth (id, access_token, refresh_token, expires_at, auth_type)
		VALUES (1, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE access_token = ?, refresh_token = ?, expires_at = ?, auth_type = ?
	`, a.AccessToken, a.RefreshToken, a.ExpiresAt.Unix(), a.AuthType,
		a.AccessToken, a.RefreshToken, a.ExpiresAt.Unix(), a.AuthType)
	return err
}

// ClearAuth removes stored credentials and, per invariant 4, atomically
// clears the region directory along with them — a stale org→region
// mapping from a previous account must not leak into the next login.
func (s *Store) ClearAuth(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM auth WHERE id = 1"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM org_regions"); err != nil {
		return err
	}
	return tx.Commit()
}

// GetDefault returns a yaml-independent stored default (e.g. "org",
// "project") or ok=false if unset.
func (s *Store) GetDefault(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&value)
	}, "SELECT value FROM defaults WHERE `key` = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return value, err == nil, err
}

// SetDefault upserts a stored default.
func (s *Store) SetDefault(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, `
		INSERT INTO defaults (` + "`key`" + `, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = ?
	`, key, value, value)
	return err
}

// ListDefaults returns every SQL-backed stored default, for `tracecli
// config list`.
func (s *Store) ListDefaults(ctx context.Context) (map[string]string, error) {
	rows, err := s.query(ctx, "SELECT `key`, value FROM defaults")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

// ResolveOrgRegion returns the cached region root URL for org, if any.
func (s *Store) ResolveOrgRegion(ctx context.Context, org string) (string, bool, error) {
	var url string
	err := s.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&url)
	}, "SELECT url FROM org_regions WHERE org = ?", org)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return url, err == nil, err
}

// SetOrgRegions bulk-upserts org→region mappings.
func (s *Store) SetOrgRegions(ctx context.Context, regions []model.OrgRegion) error {
	for _, r := range regions {
		if _, err := s.exec(ctx, `
			INSERT INTO org_regions (org, url) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE url = ?
		`, r.Org, r.URL, r.URL); err != nil {
			return err
		}
	}
	return nil
}

// ClearOrgRegions empties the region directory. Logout does not go through
// it: ClearAuth deletes the same rows itself, in its own transaction.
func (s *Store) ClearOrgRegions(ctx context.Context) error {
	_, err := s.exec(ctx, "DELETE FROM org_regions")
	return err
}

// SetProjectAliases atomically replaces the whole alias table — callers
// recompute the full set on every change rather than patching individual
// rows (§4.7 "set_project_aliases atomic replace semantics"). fingerprint is
// stamped onto every row so a later lookup can enforce invariant 2 (a
// caller-supplied fingerprint that disagrees with the stored one rejects
// the alias). A single-target resolution passes nil entries, which clears
// the table per §4.7.
func (s *Store) SetProjectAliases(ctx context.Context, entries []model.ProjectAliasEntry, fingerprint string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM project_aliases"); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO project_aliases (alias, org, project, fingerprint) VALUES (?, ?, ?, ?)",
			e.Alias, e.Org, e.Project, fingerprint); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ProjectAliases returns every currently assigned alias, without regard to
// fingerprint. Callers that must honor invariant 2 should use
// ProjectAliasFingerprint to check agreement first.
func (s *Store) ProjectAliases(ctx context.Context) ([]model.ProjectAliasEntry, error) {
	rows, err := s.query(ctx, "SELECT alias, org, project FROM project_aliases")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProjectAliasEntry
	for rows.Next() {
		var e model.ProjectAliasEntry
		if err := rows.Scan(&e.Alias, &e.Org, &e.Project); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ProjectAliasFingerprint returns the fingerprint the current alias table
// was stamped with. ok is false when the table is empty. A legacy table
// (rows present, all with the empty-string default fingerprint) reports ok
// but an empty string, which §4.7 treats as "passes validation unconditionally".
func (s *Store) ProjectAliasFingerprint(ctx context.Context) (string, bool, error) {
	var fp string
	err := s.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&fp)
	}, "SELECT fingerprint FROM project_aliases LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return fp, err == nil, err
}

// GetPaginationCursor implements cursor.Store against the metadata table.
func (s *Store) GetPaginationCursor(ctx context.Context, commandKey, contextKey string) (string, bool, error) {
	var value string
	err := s.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&value)
	}, "SELECT value FROM metadata WHERE command_key = ? AND context_key = ?", commandKey, contextKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return value, err == nil, err
}

// SetPaginationCursor implements cursor.Store against the metadata table.
func (s *Store) SetPaginationCursor(ctx context.Context, commandKey, contextKey, value string) error {
	_, err := s.exec(ctx, `
		INSERT INTO metadata (command_key, context_key, value, updated_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE value = ?, updated_at = ?
	`, commandKey, contextKey, value, time.Now().Unix(), value, time.Now().Unix())
	return err
}

// DeletePaginationCursor implements cursor.Store against the metadata table.
func (s *Store) DeletePaginationCursor(ctx context.Context, commandKey, contextKey string) error {
	_, err := s.exec(ctx, "DELETE FROM metadata WHERE command_key = ? AND context_key = ?", commandKey, contextKey)
	return err
}
