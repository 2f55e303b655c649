package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"protocell/pkg/domain"
)

// PostgresLog persists replication histories in PostgreSQL over the native
// pgx driver. Insertion order is kept with a position column; rows are never
// updated or deleted.
type PostgresLog struct {
	pool *pgxpool.Pool
}

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

// EnsureSchema creates the replicated_cells table when it does not exist yet.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS replicated_cells (
			owner    UUID NOT NULL,
			cell     UUID NOT NULL,
			position BIGSERIAL,
			PRIMARY KEY (owner, position)
		)`)
	if err != nil {
		return fmt.Errorf("ensure replicated_cells schema: %w", err)
	}
	return nil
}

func (l *PostgresLog) Append(ctx context.Context, owner, cell domain.Address) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO replicated_cells (owner, cell) VALUES ($1, $2)`,
		owner.String(), cell.String())
	if err != nil {
		return fmt.Errorf("append replicated cell: %w", err)
	}
	return nil
}

func (l *PostgresLog) List(ctx context.Context, owner domain.Address) ([]domain.Address, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT cell::text FROM replicated_cells
		WHERE owner = $1
		ORDER BY position`,
		owner.String())
	if err != nil {
		return nil, fmt.Errorf("list replicated cells: %w", err)
	}
	defer rows.Close()

	cells := []domain.Address{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan replicated cell: %w", err)
		}
		cell, err := domain.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("parse replicated cell address: %w", err)
		}
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list replicated cells: %w", err)
	}
	return cells, nil
}
