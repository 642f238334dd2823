// Package store implements the persistent local key-value store: auth
// tokens, region directory, cached resolutions, pagination cursors, and
// project aliases, backed by a local versioned SQL database.
//
// Two connection modes mirror the dual-mode design this backend is built
// on: an embedded engine requiring CGO (github.com/dolthub/driver), and a
// server mode speaking the MySQL wire protocol to a separately-running
// instance (github.com/go-sql-driver/mysql), selected by Config.ServerMode.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kouak/tracecli/internal/lockfile"
)

// DefaultSQLPort is the default server-mode listening port.
const DefaultSQLPort = 3307

// Config holds store connection configuration.
type Config struct {
	Path     string // directory holding the embedded database and its .lock file; server mode takes no lock
	Database string // logical database name, default "tracecli"
	ReadOnly bool

	ServerMode bool
	ServerHost string
	ServerPort int
	ServerUser string
	ServerPassword string
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = "tracecli"
	}
	if cfg.ServerMode {
		if cfg.ServerHost == "" {
			cfg.ServerHost = "127.0.0.1"
		}
		if cfg.ServerPort == 0 {
			cfg.ServerPort = DefaultSQLPort
		}
		if cfg.ServerUser == "" {
			cfg.ServerUser = "root"
		}
		if cfg.ServerPassword == "" {
			cfg.ServerPassword = os.Getenv("TRACECLI_STORE_PASSWORD")
		}
	}
}

// Store is the persistent single-writer key-value store (C1). The zero
// value is not usable; construct with Open.
type Store struct {
	db         *sql.DB
	closed     atomic.Bool
	mu         sync.RWMutex
	readOnly   bool
	serverMode bool

	lockHandle *lockfile.Handle // embedded mode only; released on Close

	// embeddedConnector is non-nil only in embedded mode and must be
	// closed to release the engine's own filesystem locks.
	embeddedConnector io.Closer
}

const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// isRetryableError reports whether err is a transient connection error
// worth retrying in server mode (embedded mode has driver-level retry).
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
		"lost connection",
		"gone away",
		"i/o timeout",
		"unknown database",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// withRetry runs op, retrying transient server-mode errors with bounded
// exponential backoff. Embedded mode passes through unretried.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	if !s.serverMode {
		return op()
	}

	attempts := 0
	bo := newServerRetryBackoff()
	err := backoff.Retry(func() error {
		attempts++
		opErr := op()
		if opErr != nil && isRetryableError(opErr) {
			return opErr
		}
		if opErr != nil {
			return backoff.Permanent(opErr)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if attempts > 1 {
		storeMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	return err
}

var storeTracer = otel.Tracer("github.com/kouak/tracecli/store")

var storeMetrics struct {
	retryCount  metric.Int64Counter
	lockWaitMs  metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/kouak/tracecli/store")
	storeMetrics.retryCount, _ = m.Int64Counter("tracecli.store.retry_count",
		metric.WithDescription("store operations retried due to server-mode transient errors"),
		metric.WithUnit("{retry}"),
	)
	storeMetrics.lockWaitMs, _ = m.Float64Histogram("tracecli.store.lock_wait_ms",
		metric.WithDescription("time spent waiting to acquire the store's exclusive lock"),
		metric.WithUnit("ms"),
	)
}

func (s *Store) spanAttrs() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.system", "tracecli-store"),
		attribute.Bool("db.readonly", s.readOnly),
		attribute.Bool("db.server_mode", s.serverMode),
	}
}

func spanSQL(q string) string {
	if len(q) > 300 {
		return q[:300] + "…"
	}
	return q
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := storeTracer.Start(ctx, "store.exec",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(),
			attribute.String("db.operation", "exec"),
			attribute.String("db.statement", spanSQL(query)),
		)...),
	)
	var result sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	endSpan(span, err)
	return result, err
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := storeTracer.Start(ctx, "store.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(),
			attribute.String("db.operation", "query"),
			attribute.String("db.statement", spanSQL(query)),
		)...),
	)
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	endSpan(span, err)
	return rows, err
}

func (s *Store) queryRow(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	ctx, span := storeTracer.Start(ctx, "store.query_row",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(),
			attribute.String("db.operation", "query_row"),
			attribute.String("db.statement", spanSQL(query)),
		)...),
	)
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, args...)
		return scan(row)
	})
	endSpan(span, err)
	return err
}

// Open acquires exclusive ownership of the store at cfg.Path (embedded
// mode) or connects to a running server (server mode) and ensures the
// schema is current. Exclusive ownership retries with bounded backoff on
// contention rather than failing immediately (§4.1 contract).
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	applyConfigDefaults(cfg)

	if cfg.ServerMode {
		return openServerMode(ctx, cfg)
	}
	return openEmbeddedMode(ctx, cfg)
}

func openServerMode(ctx context.Context, cfg *Config) (*Store, error) {
	addr := net.JoinHostPort(cfg.ServerHost, fmt.Sprintf("%d", cfg.ServerPort))
	conn, dialErr := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if dialErr != nil {
		return nil, fmt.Errorf("store server unreachable at %s: %w", addr, dialErr)
	}
	_ = conn.Close()

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
		cfg.ServerUser, cfg.ServerPassword, addr, cfg.Database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening server-mode connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging store server: %w", err)
	}

	s := &Store{db: db, readOnly: cfg.ReadOnly, serverMode: true}
	if !cfg.ReadOnly {
		if err := s.initSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
	}
	return s, nil
}

// Close releases the database handle and, in embedded mode, the
// exclusive filesystem lock and the engine's own connector.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var dbErr, connErr, lockErr error
	if s.db != nil {
		dbErr = s.db.Close()
	}
	if s.embeddedConnector != nil {
		connErr = s.embeddedConnector.Close()
	}
	if s.lockHandle != nil {
		lockErr = s.lockHandle.Close()
	}
	if dbErr != nil {
		return dbErr
	}
	if connErr != nil {
		return connErr
	}
	return lockErr
}
