package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
)

const driverName = "sqlite"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite reads points from a table (idx INTEGER PRIMARY KEY, value REAL).
type SQLite struct {
	db    *sql.DB
	table string

	fetchQuery  string
	boundsQuery string
	upsertQuery string
}

// OpenSQLite opens dsn and creates the points table if it does not exist.
func OpenSQLite(ctx context.Context, dsn, table string) (*SQLite, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (idx INTEGER PRIMARY KEY, value REAL NOT NULL)`, table))
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	return &SQLite{
		db:          db,
		table:       table,
		fetchQuery:  fmt.Sprintf(`SELECT idx, value FROM %s WHERE idx BETWEEN ? AND ? ORDER BY idx`, table),
		boundsQuery: fmt.Sprintf(`SELECT MIN(idx), MAX(idx) FROM %s`, table),
		upsertQuery: fmt.Sprintf(`INSERT OR REPLACE INTO %s (idx, value) VALUES (?, ?)`, table),
	}, nil
}

// Fetch implements Source.
func (s *SQLite) Fetch(ctx context.Context, start, end int64) ([]series.Point, error) {
	err := checkRange(start, end)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.fetchQuery, start, end)
	if err != nil {
		return nil, fmt.Errorf("query %s [%d, %d]: %w", s.table, start, end, err)
	}
	defer rows.Close()

	var points []series.Point

	for rows.Next() {
		var p series.Point

		err = rows.Scan(&p.Index, &p.Value)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}

		points = append(points, p)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}

	return points, nil
}

// Bounds implements Source.
func (s *SQLite) Bounds(ctx context.Context) (lo, hi int64, ok bool, err error) {
	var minIdx, maxIdx sql.NullInt64

	err = s.db.QueryRowContext(ctx, s.boundsQuery).Scan(&minIdx, &maxIdx)
	if err != nil {
		return 0, 0, false, fmt.Errorf("bounds %s: %w", s.table, err)
	}

	if !minIdx.Valid {
		return 0, 0, false, nil
	}

	return minIdx.Int64, maxIdx.Int64, true, nil
}

// Seed implements Seeder. Points are written in one transaction and replace
// stored points with the same index.
func (s *SQLite) Seed(ctx context.Context, points []series.Point) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.upsertQuery)
	if err != nil {
		return fmt.Errorf("prepare seed: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		_, err = stmt.ExecContext(ctx, p.Index, p.Value)
		if err != nil {
			return fmt.Errorf("seed point %d: %w", p.Index, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	return nil
}

// Close implements Source.
func (s *SQLite) Close() error {
	return s.db.Close()
}
