//go:build cgo

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"

	"github.com/kouak/tracecli/internal/lockfile"
)

const embeddedOpenMaxElapsed = 30 * time.Second

func newEmbeddedOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = embeddedOpenMaxElapsed
	return bo
}

// openEmbeddedMode opens the local store using the embedded engine
// (requires CGO). It acquires the exclusive flock described in §4.1 before
// touching the on-disk database, so a second process invoked concurrently
// waits on the lock rather than racing the engine's own locking.
func openEmbeddedMode(ctx context.Context, cfg *Config) (*Store, error) {
	if info, statErr := os.Stat(cfg.Path); statErr == nil && !info.IsDir() {
		return nil, fmt.Errorf("store path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving store path: %w", err)
	}

	var lockHandle *lockfile.Handle
	if !cfg.ReadOnly {
		lockHandle, err = lockfile.AcquireExclusive(ctx, filepath.Join(absPath, ".lock"), 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("acquiring store lock: %w", err)
		}
	}

	initDSN := fmt.Sprintf("file://%s?commitname=tracecli&commitemail=tracecli@local", absPath)
	dbDSN := fmt.Sprintf("file://%s?commitname=tracecli&commitemail=tracecli@local&database=%s", absPath, cfg.Database)

	configureRetries := func(c *embedded.Config) {
		c.BackOff = newEmbeddedOpenBackoff()
	}

	if !cfg.ReadOnly {
		if err := withEmbeddedDolt(ctx, initDSN, configureRetries, func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
			return err
		}); err != nil {
			if lockHandle != nil {
				_ = lockHandle.Close()
			}
			return nil, fmt.Errorf("creating store database: %w", err)
		}
	}

	db, connector, err := openEmbeddedConnection(dbDSN)
	if err != nil {
		if lockHandle != nil {
			_ = lockHandle.Close()
		}
		return nil, err
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		if lockHandle != nil {
			_ = lockHandle.Close()
		}
		return nil, fmt.Errorf("pinging store: %w", err)
	}

	s := &Store{
		db:                db,
		readOnly:          cfg.ReadOnly,
		serverMode:        false,
		lockHandle:        lockHandle,
		embeddedConnector: connector,
	}

	if !cfg.ReadOnly {
		if err := s.initSchema(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
	}

	return s, nil
}

func openEmbeddedConnection(dsn string) (*sql.DB, *embedded.Connector, error) {
	openCfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing store DSN: %w", err)
	}
	openCfg.BackOff = newEmbeddedOpenBackoff()

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating store connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// The embedded engine is single-writer; mirror that in the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, connector, nil
}

// withEmbeddedDolt opens a short-lived connection against dsn, runs fn, and
// always closes the connection and connector afterward. Used for one-shot
// setup statements (CREATE DATABASE) that must not hold onto pool state.
func withEmbeddedDolt(ctx context.Context, dsn string, configure func(*embedded.Config), fn func(context.Context, *sql.DB) error) error {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("parsing store DSN: %w", err)
	}
	if configure != nil {
		configure(cfg)
	}
	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return fmt.Errorf("creating store connector: %w", err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()
	defer connector.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging store: %w", err)
	}
	return fn(ctx, db)
}
