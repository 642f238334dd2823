package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// currentSchemaVersion is bumped on breaking schema changes. repairSchema
// brings an older store forward without discarding existing rows.
const currentSchemaVersion = 1

// columnSpec describes one column a table must have, including the
// default value repairSchema uses when ALTER-adding it to an existing
// table so that legacy rows stay valid (§4.1 "non-destructive defaulting").
type columnSpec struct {
	name    string
	sqlType string
	// addClause is appended verbatim after "<name> <sqlType>" in the ALTER
	// TABLE ... ADD COLUMN statement, typically "DEFAULT ..." or "".
	addClause string
}

type tableSpec struct {
	name    string
	columns []columnSpec
	// createStmt is the full CREATE TABLE statement, including keys and
	// constraints that a plain column list can't express.
	createStmt string
}

var tables = []tableSpec{
	{
		name: "schema_version",
		columns: []columnSpec{
			{"id", "INT", ""},
			{"version", "INT", "DEFAULT 0"},
		},
		createStmt: "CREATE TABLE IF NOT EXISTS schema_version (id INT PRIMARY KEY, version INT DEFAULT 0)",
	},
	{
		name: "auth",
		columns: []columnSpec{
			{"id", "INT", ""},
			{"access_token", "TEXT", ""},
			{"refresh_token", "TEXT", ""},
			{"expires_at", "BIGINT", "DEFAULT 0"},
			{"auth_type", "VARCHAR(32)", "DEFAULT ''"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS auth (
			id INT PRIMARY KEY,
			access_token TEXT,
			refresh_token TEXT,
			expires_at BIGINT DEFAULT 0,
			auth_type VARCHAR(32) DEFAULT ''
		)`,
	},
	{
		name: "defaults",
		columns: []columnSpec{
			{"key", "VARCHAR(64)", ""},
			{"value", "TEXT", ""},
		},
		createStmt: "CREATE TABLE IF NOT EXISTS defaults (`key` VARCHAR(64) PRIMARY KEY, value TEXT)",
	},
	{
		name: "project_cache",
		columns: []columnSpec{
			{"org", "VARCHAR(255)", ""},
			{"project", "VARCHAR(255)", ""},
			{"display_org", "VARCHAR(255)", "DEFAULT ''"},
			{"display_project", "VARCHAR(255)", "DEFAULT ''"},
			{"updated_at", "BIGINT", "DEFAULT 0"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS project_cache (
			org VARCHAR(255),
			project VARCHAR(255),
			display_org VARCHAR(255) DEFAULT '',
			display_project VARCHAR(255) DEFAULT '',
			updated_at BIGINT DEFAULT 0,
			PRIMARY KEY (org, project)
		)`,
	},
	{
		name: "dsn_cache",
		columns: []columnSpec{
			{"org", "VARCHAR(255)", ""},
			{"project", "VARCHAR(255)", ""},
			{"dsn", "TEXT", ""},
			{"updated_at", "BIGINT", "DEFAULT 0"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS dsn_cache (
			org VARCHAR(255),
			project VARCHAR(255),
			dsn TEXT,
			updated_at BIGINT DEFAULT 0,
			PRIMARY KEY (org, project)
		)`,
	},
	{
		name: "project_aliases",
		columns: []columnSpec{
			{"alias", "VARCHAR(255)", ""},
			{"org", "VARCHAR(255)", ""},
			{"project", "VARCHAR(255)", ""},
			{"fingerprint", "VARCHAR(767)", "DEFAULT ''"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS project_aliases (
			alias VARCHAR(255) PRIMARY KEY,
			org VARCHAR(255),
			project VARCHAR(255),
			fingerprint VARCHAR(767) DEFAULT ''
		)`,
	},
	{
		name: "metadata",
		columns: []columnSpec{
			{"command_key", "VARCHAR(64)", ""},
			{"context_key", "VARCHAR(767)", ""},
			{"value", "TEXT", ""},
			{"updated_at", "BIGINT", "DEFAULT 0"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS metadata (
			command_key VARCHAR(64),
			context_key VARCHAR(767),
			value TEXT,
			updated_at BIGINT DEFAULT 0,
			PRIMARY KEY (command_key, context_key)
		)`,
	},
	{
		name: "org_regions",
		columns: []columnSpec{
			{"org", "VARCHAR(255)", ""},
			{"url", "TEXT", ""},
		},
		createStmt: "CREATE TABLE IF NOT EXISTS org_regions (org VARCHAR(255) PRIMARY KEY, url TEXT)",
	},
	{
		name: "user_info",
		columns: []columnSpec{
			{"id", "INT", ""},
			{"user_id", "VARCHAR(255)", "DEFAULT ''"},
			{"email", "VARCHAR(255)", "DEFAULT ''"},
			{"name", "VARCHAR(255)", "DEFAULT ''"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS user_info (
			id INT PRIMARY KEY,
			user_id VARCHAR(255) DEFAULT '',
			email VARCHAR(255) DEFAULT '',
			name VARCHAR(255) DEFAULT ''
		)`,
	},
	{
		name: "instance_info",
		columns: []columnSpec{
			{"id", "INT", ""},
			{"base_url", "TEXT", ""},
			{"version", "VARCHAR(64)", "DEFAULT ''"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS instance_info (
			id INT PRIMARY KEY,
			base_url TEXT,
			version VARCHAR(64) DEFAULT ''
		)`,
	},
	{
		name: "project_root_cache",
		columns: []columnSpec{
			{"path", "VARCHAR(767)", ""},
			{"org", "VARCHAR(255)", "DEFAULT ''"},
			{"project", "VARCHAR(255)", "DEFAULT ''"},
			{"mtime", "BIGINT", "DEFAULT 0"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS project_root_cache (
			path VARCHAR(767) PRIMARY KEY,
			org VARCHAR(255) DEFAULT '',
			project VARCHAR(255) DEFAULT '',
			mtime BIGINT DEFAULT 0
		)`,
	},
	{
		name: "transaction_aliases",
		columns: []columnSpec{
			{"alias", "VARCHAR(255)", ""},
			{"fingerprint", "VARCHAR(767)", "DEFAULT ''"},
			{"created_at", "BIGINT", "DEFAULT 0"},
		},
		createStmt: `CREATE TABLE IF NOT EXISTS transaction_aliases (
			alias VARCHAR(255) PRIMARY KEY,
			fingerprint VARCHAR(767) DEFAULT '',
			created_at BIGINT DEFAULT 0
		)`,
	},
}

// SchemaIssueKind discriminates the two shapes of schema drift
// get_schema_issues can report.
type SchemaIssueKind int

const (
	MissingTable SchemaIssueKind = iota
	MissingColumn
)

// SchemaIssue is one missing table or column found by GetSchemaIssues.
type SchemaIssue struct {
	Kind   SchemaIssueKind
	Table  string
	Column string // empty when Kind == MissingTable
}

func (i SchemaIssue) String() string {
	if i.Kind == MissingTable {
		return fmt.Sprintf("missing table %s", i.Table)
	}
	return fmt.Sprintf("missing column %s.%s", i.Table, i.Column)
}

// RepairReport records what repairSchema fixed and what it couldn't.
type RepairReport struct {
	Fixed  []SchemaIssue
	Failed []SchemaIssue
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?
	`, table).Scan(&count)
	return count > 0, err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?
	`, table, column).Scan(&count)
	return count > 0, err
}

// GetSchemaIssues reports every missing table and column against the
// current schema definition, without modifying anything.
func GetSchemaIssues(ctx context.Context, db *sql.DB) ([]SchemaIssue, error) {
	var issues []SchemaIssue
	for _, t := range tables {
		exists, err := tableExists(ctx, db, t.name)
		if err != nil {
			return nil, fmt.Errorf("checking table %s: %w", t.name, err)
		}
		if !exists {
			issues = append(issues, SchemaIssue{Kind: MissingTable, Table: t.name})
			continue
		}
		for _, c := range t.columns {
			has, err := columnExists(ctx, db, t.name, c.name)
			if err != nil {
				return nil, fmt.Errorf("checking column %s.%s: %w", t.name, c.name, err)
			}
			if !has {
				issues = append(issues, SchemaIssue{Kind: MissingColumn, Table: t.name, Column: c.name})
			}
		}
	}
	return issues, nil
}

// RepairSchema creates missing tables and ALTER-adds missing columns,
// never dropping existing data, and updates schema_version to
// currentSchemaVersion. Columns that can't be added (a type conflict on
// an existing column with the same name from a prior incompatible schema)
// are recorded in RepairReport.Failed rather than aborting the run.
func RepairSchema(ctx context.Context, db *sql.DB) (*RepairReport, error) {
	report := &RepairReport{}

	for _, t := range tables {
		exists, err := tableExists(ctx, db, t.name)
		if err != nil {
			return nil, fmt.Errorf("checking table %s: %w", t.name, err)
		}
		if !exists {
			if _, err := db.ExecContext(ctx, t.createStmt); err != nil {
				report.Failed = append(report.Failed, SchemaIssue{Kind: MissingTable, Table: t.name})
				continue
			}
			report.Fixed = append(report.Fixed, SchemaIssue{Kind: MissingTable, Table: t.name})
			continue
		}

		for _, c := range t.columns {
			has, err := columnExists(ctx, db, t.name, c.name)
			if err != nil {
				return nil, fmt.Errorf("checking column %s.%s: %w", t.name, c.name, err)
			}
			if has {
				continue
			}
			issue := SchemaIssue{Kind: MissingColumn, Table: t.name, Column: c.name}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s %s", t.name, c.name, c.sqlType, c.addClause)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
					continue // raced with another repair; not a failure
				}
				report.Failed = append(report.Failed, issue)
				continue
			}
			report.Fixed = append(report.Fixed, issue)
		}
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO schema_version (id, version) VALUES (1, ?)
		ON DUPLICATE KEY UPDATE version = ?
	`, currentSchemaVersion, currentSchemaVersion); err != nil {
		return report, fmt.Errorf("updating schema_version: %w", err)
	}

	return report, nil
}

// initSchema creates every table idempotently and stamps schema_version,
// skipping all DDL when the store is already current (mirrors the
// teacher's version-gated initSchemaOnDB).
func (s *Store) initSchema(ctx context.Context) error {
	return initSchemaOnDB(ctx, s.db)
}

func initSchemaOnDB(ctx context.Context, db *sql.DB) error {
	var version int
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1").Scan(&version)
	if err == nil && version >= currentSchemaVersion {
		return nil
	}

	for _, t := range tables {
		if _, err := db.ExecContext(ctx, t.createStmt); err != nil {
			return fmt.Errorf("creating table %s: %w", t.name, err)
		}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO schema_version (id, version) VALUES (1, ?)
		ON DUPLICATE KEY UPDATE version = ?
	`, currentSchemaVersion, currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("setting schema_version: %w", err)
	}
	return nil
}
