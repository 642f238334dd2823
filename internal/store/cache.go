package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ProjectCacheEntry is a resolved (org, project) pair with its display
// names, as cached by the target resolver (C4) across invocations.
type ProjectCacheEntry struct {
	Org            string
	Project        string
	DisplayOrg     string
	DisplayProject string
	UpdatedAt      time.Time
}

// PutProjectCache upserts a resolved target into project_cache.
func (s *Store) PutProjectCache(ctx context.Context, e ProjectCacheEntry) error {
	_, err := s.exec(ctx, `
		INSERT INTO project_cache (org, project, display_org, display_project, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE display_org = ?, display_project = ?, updated_at = ?
	`, e.Org, e.Project, e.DisplayOrg, e.DisplayProject, time.Now().Unix(),
		e.DisplayOrg, e.DisplayProject, time.Now().Unix())
	return err
}

// ProjectCacheFor returns the cached resolution for an explicit (org,
// project) pair, if any, so the target resolver's explicit-target path
// (§4.4 step 1 and the CLI-args/env-vars forms) can skip a round trip to
// the service when a fresh entry exists.
func (s *Store) ProjectCacheFor(ctx context.Context, org, project string) (ProjectCacheEntry, bool, error) {
	e := ProjectCacheEntry{Org: org, Project: project}
	var updatedAt int64
	err := s.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&e.DisplayOrg, &e.DisplayProject, &updatedAt)
	}, "SELECT display_org, display_project, updated_at FROM project_cache WHERE org = ? AND project = ?", org, project)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectCacheEntry{}, false, nil
	}
	if err != nil {
		return ProjectCacheEntry{}, false, err
	}
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return e, true, nil
}

// LookupDSN finds the (org, project) a public key was last cached as
// belonging to, letting the embedded-identifier scan (§4.4 step 4) skip
// the all-orgs/all-projects key scan on a repeat invocation against the
// same tree.
func (s *Store) LookupDSN(ctx context.Context, publicKey string) (org, project string, ok bool, err error) {
	err = s.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&org, &project)
	}, "SELECT org, project FROM dsn_cache WHERE dsn = ?", publicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return org, project, true, nil
}

// SetDSN upserts the cached (org, project) a public key resolves to.
func (s *Store) SetDSN(ctx context.Context, org, project, publicKey string) error {
	_, err := s.exec(ctx, `
		INSERT INTO dsn_cache (org, project, dsn, updated_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE dsn = ?, updated_at = ?
	`, org, project, publicKey, time.Now().Unix(), publicKey, time.Now().Unix())
	return err
}

// ProjectRootCacheEntry records which (org, project) a working directory
// was last resolved to, keyed by absolute path and invalidated by the
// resolver when the directory's mtime moves past the cached one.
type ProjectRootCacheEntry struct {
	Org     string
	Project string
	Mtime   time.Time
}

// ProjectRootCache returns the cached resolution for an absolute
// directory path, if any.
func (s *Store) ProjectRootCache(ctx context.Context, path string) (ProjectRootCacheEntry, bool, error) {
	var e ProjectRootCacheEntry
	var mtime int64
	err := s.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&e.Org, &e.Project, &mtime)
	}, "SELECT org, project, mtime FROM project_root_cache WHERE path = ?", path)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectRootCacheEntry{}, false, nil
	}
	if err != nil {
		return ProjectRootCacheEntry{}, false, err
	}
	e.Mtime = time.Unix(mtime, 0)
	return e, true, nil
}

// SetProjectRootCache upserts the cached resolution for a directory path.
func (s *Store) SetProjectRootCache(ctx context.Context, path string, e ProjectRootCacheEntry) error {
	_, err := s.exec(ctx, `
		INSERT INTO project_root_cache (path, org, project, mtime) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE org = ?, project = ?, mtime = ?
	`, path, e.Org, e.Project, e.Mtime.Unix(), e.Org, e.Project, e.Mtime.Unix())
	return err
}

// user_info, instance_info, and transaction_aliases are part of the C1
// schema (§4.1) but have no accessor here: no documented HTTP endpoint
// supplies a user identity or instance descriptor to cache (§6 lists
// /users/me/regions/, not /users/me/), and nothing in this CLI's surface
// mints the kind of short-lived per-transaction alias the latter table
// would back. The tables are still created and repaired by initSchema/
// RepairSchema like every other C1 table; only the dead Go accessors
// around them were removed.
