package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/pkg/contracts/domain"
)

const sinkName = "postgres"

// RateRow is one (district, year, variable) rate in long form
type RateRow struct {
	District   string
	Code       string
	Year       int
	Population float64
	Variable   string
	Rate       float64
}

// PostgresSink stores the normalized table in PostgreSQL
type PostgresSink struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// OpenPostgres connects and pings the database
func OpenPostgres(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PostgresDSN == "" {
		return nil, errors.NewConfigError("storage.postgres_dsn is empty", nil)
	}
	if cfg.Table == "" {
		return nil, errors.NewConfigError("storage.table is empty", nil)
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, errors.NewSinkError(sinkName, fmt.Errorf("failed to open DB: %w", err))
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx := ctx
	if cfg.ConnTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.NewSinkError(sinkName, fmt.Errorf("failed to ping DB: %w", err))
	}

	logger = logger.With(slog.String("component", "postgres_sink"), slog.String("table", cfg.Table))
	logger.InfoContext(ctx, "Connected to PostgreSQL")
	return &PostgresSink{db: db, table: cfg.Table, logger: logger}, nil
}

// EnsureTable creates the rate table if it doesn't exist
func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL(s.table)); err != nil {
		return s.wrap("failed to create table", err)
	}
	return nil
}

// SaveNormalized upserts every rate of the table in a single transaction
// and returns the number of rows written.
func (s *PostgresSink) SaveNormalized(ctx context.Context, runID string, table domain.NormalizedTable) (n int, err error) {
	rows := RateRows(table)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.wrap("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(s.table))
	if err != nil {
		return 0, s.wrap("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx, r.District, r.Code, r.Year, r.Population, r.Variable, r.Rate, runID); err != nil {
			return 0, s.wrap(fmt.Sprintf("failed to insert %s/%d/%s", r.District, r.Year, r.Variable), err)
		}
		n++
	}

	if err = tx.Commit(); err != nil {
		return 0, s.wrap("failed to commit transaction", err)
	}

	s.logger.InfoContext(ctx, "Normalized rates stored",
		slog.Int("rows", n),
		slog.Int("records", len(table.Rows)))
	return n, nil
}

// Close closes the database connection
func (s *PostgresSink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// wrap attaches the server error code when the driver reports one
func (s *PostgresSink) wrap(msg string, err error) error {
	appErr := errors.NewSinkError(sinkName, fmt.Errorf("%s: %w", msg, err))
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		appErr.WithContext("sqlstate", string(pqErr.Code))
	}
	return appErr
}

// RateRows flattens a normalized table to one row per rate column,
// in table row order then column order.
func RateRows(table domain.NormalizedTable) []RateRow {
	rows := make([]RateRow, 0, len(table.Rows)*len(table.Columns))
	for _, rec := range table.Rows {
		for _, col := range table.Columns {
			rows = append(rows, RateRow{
				District:   rec.District,
				Code:       rec.Code,
				Year:       rec.Year,
				Population: rec.Population,
				Variable:   col,
				Rate:       rec.Rates[col],
			})
		}
	}
	return rows
}

func createTableSQL(table string) string {
	t := pq.QuoteIdentifier(table)
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		district   TEXT             NOT NULL,
		code       TEXT,
		year       INTEGER          NOT NULL,
		population DOUBLE PRECISION NOT NULL,
		variable   TEXT             NOT NULL,
		rate       DOUBLE PRECISION NOT NULL,
		run_id     TEXT,
		loaded_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		PRIMARY KEY (district, year, variable)
	);

	CREATE INDEX IF NOT EXISTS %s ON %s (variable);
	`, t, pq.QuoteIdentifier("idx_"+table+"_variable"), t)
}

func upsertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (district, code, year, population, variable, rate, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (district, year, variable) DO UPDATE
		SET code = EXCLUDED.code,
		    population = EXCLUDED.population,
		    rate = EXCLUDED.rate,
		    run_id = EXCLUDED.run_id,
		    loaded_at = NOW()
	`, pq.QuoteIdentifier(table))
}
