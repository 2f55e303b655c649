package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"protocell/internal/organelle"
	"protocell/pkg/domain"
	"protocell/pkg/platform/sentinel"
)

// PostgresStore persists organelle tables in PostgreSQL. Insertion order is
// kept with a monotonically increasing position column; the bijection is
// enforced by the (registry, name) primary key and the (registry, address)
// unique constraint, so concurrent writers cannot break it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the organelles table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS organelles (
			registry   UUID    NOT NULL,
			name       TEXT    NOT NULL,
			address    UUID    NOT NULL,
			replicable BOOLEAN NOT NULL,
			position   BIGSERIAL,
			PRIMARY KEY (registry, name),
			UNIQUE (registry, address)
		)`)
	if err != nil {
		return fmt.Errorf("ensure organelles schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, registry domain.Address, entry organelle.Organelle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organelles (registry, name, address, replicable)
		VALUES ($1, $2, $3, $4)`,
		registry.String(), entry.Name, entry.Address.String(), entry.Replicable)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append organelle: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, registry domain.Address, entry organelle.Organelle) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organelles
		SET address = $3, replicable = $4
		WHERE registry = $1 AND name = $2`,
		registry.String(), entry.Name, entry.Address.String(), entry.Replicable)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update organelle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update organelle: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ByName(ctx context.Context, registry domain.Address, name string) (organelle.Organelle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, address, replicable FROM organelles
		WHERE registry = $1 AND name = $2`,
		registry.String(), name)
	return scanOrganelle(row)
}

func (s *PostgresStore) ByAddress(ctx context.Context, registry domain.Address, addr domain.Address) (organelle.Organelle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, address, replicable FROM organelles
		WHERE registry = $1 AND address = $2`,
		registry.String(), addr.String())
	return scanOrganelle(row)
}

func (s *PostgresStore) List(ctx context.Context, registry domain.Address) (organelle.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, address, replicable FROM organelles
		WHERE registry = $1
		ORDER BY position`,
		registry.String())
	if err != nil {
		return nil, fmt.Errorf("list organelles: %w", err)
	}
	defer rows.Close()

	entries := organelle.Table{}
	for rows.Next() {
		var (
			entry organelle.Organelle
			addr  string
		)
		if err := rows.Scan(&entry.Name, &addr, &entry.Replicable); err != nil {
			return nil, fmt.Errorf("scan organelle: %w", err)
		}
		entry.Address, err = domain.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("parse organelle address: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list organelles: %w", err)
	}
	return entries, nil
}

func scanOrganelle(row *sql.Row) (organelle.Organelle, error) {
	var (
		entry organelle.Organelle
		addr  string
	)
	if err := row.Scan(&entry.Name, &addr, &entry.Replicable); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return organelle.Organelle{}, sentinel.ErrNotFound
		}
		return organelle.Organelle{}, fmt.Errorf("scan organelle: %w", err)
	}
	parsed, err := domain.ParseAddress(addr)
	if err != nil {
		return organelle.Organelle{}, fmt.Errorf("parse organelle address: %w", err)
	}
	entry.Address = parsed
	return entry, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
