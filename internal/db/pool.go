// Package db owns the Postgres connection, the mill schema migrations and
// the raw-SQL query helpers shared by the service layer.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/storymill/storymill/internal/config"
)

// ErrNoRows is the sentinel for single-row lookups that matched nothing.
// Service code tests for it with IsNoRows rather than comparing directly.
var ErrNoRows = sql.ErrNoRows

func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}

type TxOptions struct{}

// CommandTag reports the outcome of a statement. Rows is exported so test
// doubles can fabricate outcomes without a live connection.
type CommandTag struct {
	Rows int64
}

func (c CommandTag) RowsAffected() int64 {
	return c.Rows
}

// Row is the single-row result surface. Production rows wrap *sql.Row;
// tests substitute their own implementations.
type Row interface {
	Scan(dest ...any) error
}

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	if r.row == nil {
		return ErrNoRows
	}
	return r.row.Scan(dest...)
}

type Rows struct {
	rows *sql.Rows
}

func (r *Rows) Next() bool {
	if r == nil || r.rows == nil {
		return false
	}
	return r.rows.Next()
}

func (r *Rows) Scan(dest ...any) error {
	if r == nil || r.rows == nil {
		return ErrNoRows
	}
	return r.rows.Scan(dest...)
}

func (r *Rows) Err() error {
	if r == nil || r.rows == nil {
		return nil
	}
	return r.rows.Err()
}

func (r *Rows) Close() {
	if r == nil || r.rows == nil {
		return
	}
	_ = r.rows.Close()
}

// Tx is the transactional query surface handed to status transitions and
// queue operations. gormTx is the production implementation.
type Tx interface {
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{row: t.db.WithContext(ctx).Raw(query, args...).Row()}
}

func (t *gormTx) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	rows, err := t.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *gormTx) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	res := t.db.WithContext(ctx).Exec(query, args...)
	return CommandTag{Rows: res.RowsAffected}, res.Error
}

func (t *gormTx) Commit(ctx context.Context) error {
	return t.db.WithContext(ctx).Commit().Error
}

func (t *gormTx) Rollback(ctx context.Context) error {
	return t.db.WithContext(ctx).Rollback().Error
}

const (
	defaultMaxConns = 8
	connIdleTimeout = 10 * time.Minute
	connMaxLifetime = time.Hour
)

// Pool wraps one gorm connection. Schema access goes through raw SQL; gorm
// is retained for AutoMigrate and its connection management.
type Pool struct {
	gdb   *gorm.DB
	sqlDB *sql.DB
}

func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:      logger.Default.LogMode(gormLogLevel(cfg.LogLevel, cfg.Environment)),
		PrepareStmt: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get gorm sql db: %w", err)
	}
	tuneConns(sqlDB, int(cfg.DBMaxConns), int(cfg.DBMinConns))

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pool := &Pool{gdb: gdb, sqlDB: sqlDB}
	if err := pool.autoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}
	return pool, nil
}

// tuneConns sizes the pool for an ingest burst from the scraper plus the
// sweep daemon without exhausting Postgres connections.
func tuneConns(sqlDB *sql.DB, maxConns, minConns int) {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if minConns < 1 {
		minConns = 1
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(minConns)
	sqlDB.SetConnMaxIdleTime(connIdleTimeout)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
}

func (p *Pool) BeginTx(ctx context.Context, _ TxOptions) (Tx, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	tx := p.gdb.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{db: tx}, nil
}

func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) Row {
	if p == nil || p.gdb == nil {
		return sqlRow{}
	}
	return sqlRow{row: p.gdb.WithContext(ctx).Raw(query, args...).Row()}
}

func (p *Pool) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	rows, err := p.gdb.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	if p == nil || p.gdb == nil {
		return CommandTag{}, fmt.Errorf("database pool is not initialized")
	}
	res := p.gdb.WithContext(ctx).Exec(query, args...)
	return CommandTag{Rows: res.RowsAffected}, res.Error
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

func (p *Pool) DB() *sql.DB {
	if p == nil {
		return nil
	}
	return p.sqlDB
}

func (p *Pool) GORM() *gorm.DB {
	if p == nil {
		return nil
	}
	return p.gdb
}

// gormLogLevel maps the application log level onto gorm's coarser scale.
// Unknown levels log errors only, except locally where warnings help during
// schema work.
func gormLogLevel(appLogLevel, environment string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(appLogLevel)) {
	case "trace", "debug":
		return logger.Info
	case "", "info", "warn", "warning":
		return logger.Warn
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	}
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		return logger.Warn
	}
	return logger.Error
}
