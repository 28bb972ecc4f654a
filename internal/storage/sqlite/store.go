package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/quartzdb/jobstore/internal/codec"
	"github.com/quartzdb/jobstore/internal/config"
	"github.com/quartzdb/jobstore/internal/schedule"
	"github.com/quartzdb/jobstore/internal/storage"
)

// Store implements storage.Store on a single SQLite database. It owns the
// gateway (connection/transaction scoping), the codec (job-data
// serialisation) and the schedule registry (next-fire-time arithmetic for
// the Acquisition/Completion and Misfire Handler components).
type Store struct {
	gw       *gateway
	codec    *codec.Codec
	schedule *schedule.Registry
	cfg      *config.Config
	logger   *slog.Logger

	tracer trace.Tracer
	meter  metric.Meter

	acquiredCounter  metric.Int64Counter
	misfiredCounter  metric.Int64Counter
	checkinCounter   metric.Int64Counter
}

var _ storage.Store = (*Store)(nil)

// Option customises Store construction beyond its required config.
type Option func(*Store)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithScheduleRegistry overrides the default simple+cron registry, letting
// a caller register its own Calculator for blob triggers or a custom
// variant (spec §9's extensibility note).
func WithScheduleRegistry(reg *schedule.Registry) Option {
	return func(s *Store) { s.schedule = reg }
}

// Open creates (or attaches to) the SQLite database at dsn, applies the
// persisted schema (spec §6) idempotently, and seeds the well-known
// advisory lock rows (spec §5). dsn is passed straight to
// github.com/ncruces/go-sqlite3/driver, e.g. "file:jobstore.db?_pragma=busy_timeout(5000)".
func Open(ctx context.Context, dsn string, cfg *config.Config, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		gw:       &gateway{db: db, prefix: cfg.TablePrefix, logger: slog.Default()},
		codec:    codec.New(cfg.UseProperties),
		schedule: schedule.NewRegistry(),
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/quartzdb/jobstore/internal/storage/sqlite"),
		meter:    otel.Meter("github.com/quartzdb/jobstore/internal/storage/sqlite"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.gw.logger = s.logger

	if err := s.initMetrics(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init metrics: %w", err)
	}

	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) applySchema(ctx context.Context) error {
	return s.gw.withConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, s.gw.sql(schemaDDL)); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
		for _, name := range lockNames {
			if _, err := conn.ExecContext(ctx, s.gw.sql(sqlSeedLock), name); err != nil {
				return fmt.Errorf("sqlite: seed lock %s: %w", name, err)
			}
		}
		return nil
	})
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.gw.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.gw.db.Close()
}
