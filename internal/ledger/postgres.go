package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists user records in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and verifies the database is reachable.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Migrate creates the users table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT        NOT NULL,
			credential TEXT        NOT NULL UNIQUE,
			guest      BOOLEAN     NOT NULL DEFAULT TRUE,
			gold       BIGINT      NOT NULL DEFAULT 0,
			exp        BIGINT      NOT NULL DEFAULT 0,
			games      INTEGER     NOT NULL DEFAULT 0,
			wins       INTEGER     NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateGuest(ctx context.Context, name, credential string, gold int64) (*User, error) {
	u := &User{Name: name, Credential: credential, Guest: true, Gold: gold}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, credential, guest, gold)
		VALUES ($1, $2, TRUE, $3)
		RETURNING id, created_at`,
		name, credential, gold).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Name, &u.Credential, &u.Guest,
		&u.Gold, &u.Exp, &u.Games, &u.Wins, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

const userColumns = `id, name, credential, guest, gold, exp, games, wins, created_at`

func (s *PostgresStore) UserByCredential(ctx context.Context, credential string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE credential = $1`, credential))
}

func (s *PostgresStore) UserByID(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) SaveGold(ctx context.Context, uid int64, gold int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET gold = $2 WHERE id = $1`, uid, gold)
	if err != nil {
		return fmt.Errorf("save gold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) SaveStats(ctx context.Context, uid int64, expGain int64, games, wins int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET exp = exp + $2, games = games + $3, wins = wins + $4
		WHERE id = $1`,
		uid, expGain, games, wins)
	if err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
