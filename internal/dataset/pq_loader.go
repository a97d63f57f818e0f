package dataset

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/muchq/sgdmaster/internal/vector"
)

// PostgresLoader reads training examples from a table shaped
// (features double precision[], label double precision), for operators
// who keep training sets in Postgres instead of flat files
// (SPEC_FULL §3, domain-stack addition).
type PostgresLoader struct {
	db    *sql.DB
	table string
}

// NewPostgresLoader opens a connection using the lib/pq driver and returns
// a loader reading from the given table.
func NewPostgresLoader(connStr, table string) (*PostgresLoader, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("dataset: open postgres: %w", err)
	}
	return &PostgresLoader{db: db, table: table}, nil
}

// Close releases the underlying connection pool.
func (l *PostgresLoader) Close() error {
	return l.db.Close()
}

// Load reads every row of the configured table into a Dataset.
func (l *PostgresLoader) Load(ctx context.Context) (*Dataset, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf("SELECT features, label FROM %s", l.table))
	if err != nil {
		return nil, fmt.Errorf("dataset: query %s: %w", l.table, err)
	}
	defer rows.Close()

	var examples []Example
	for rows.Next() {
		var feats pq.Float64Array
		var label float64
		if err := rows.Scan(&feats, &label); err != nil {
			return nil, fmt.Errorf("dataset: scan row: %w", err)
		}
		vec, err := vector.New([]float64(feats))
		if err != nil {
			return nil, fmt.Errorf("dataset: row: %w", err)
		}
		examples = append(examples, Example{Features: vec, Label: label})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dataset: rows: %w", err)
	}
	return New(examples), nil
}
