package database

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS contacts (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		email       TEXT NOT NULL,
		message     TEXT NOT NULL,
		filename    TEXT,
		timestamp   TEXT,
		stored_name TEXT,
		file_hash   TEXT,
		file_size   BIGINT
	)
`

// PostgresStore wraps a pgxpool connection pool.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgres creates a new connection pool and verifies it with a ping.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, storageError("parse database URL", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, storageError("create connection pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageError("ping", err)
	}

	slog.Info("connected to database", "driver", "postgres")
	return &PostgresStore{Pool: pool}, nil
}

func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.Pool.Exec(ctx, postgresSchema); err != nil {
		return storageError("create contacts table", err)
	}
	return nil
}

func (p *PostgresStore) Insert(ctx context.Context, sub *NewSubmission) (int64, error) {
	var id int64
	err := p.Pool.QueryRow(ctx, `
		INSERT INTO contacts (
			name, email, message, filename, timestamp,
			stored_name, file_hash, file_size
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		sub.Name,
		sub.Email,
		sub.Message,
		sub.Filename,
		sub.Timestamp,
		sub.StoredName,
		sub.FileHash,
		sub.FileSize,
	).Scan(&id)
	if err != nil {
		return 0, storageError("insert submission", err)
	}
	return id, nil
}

func (p *PostgresStore) ListAll(ctx context.Context) ([]*Submission, error) {
	rows, err := p.Pool.Query(ctx, "SELECT "+selectColumns+" FROM contacts ORDER BY id ASC")
	if err != nil {
		return nil, storageError("list submissions", err)
	}
	defer rows.Close()

	subs := []*Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, storageError("scan submission", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list submissions", err)
	}
	return subs, nil
}

func (p *PostgresStore) GetByID(ctx context.Context, id int64) (*Submission, error) {
	row := p.Pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM contacts WHERE id = $1", id)
	return p.one(row, "get submission")
}

func (p *PostgresStore) LatestByFilename(ctx context.Context, filename string) (*Submission, error) {
	row := p.Pool.QueryRow(ctx,
		"SELECT "+selectColumns+" FROM contacts WHERE filename = $1 ORDER BY id DESC LIMIT 1",
		filename,
	)
	return p.one(row, "get submission by filename")
}

func (p *PostgresStore) one(row pgx.Row, op string) (*Submission, error) {
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, storageError(op, err)
	}
	return sub, nil
}

// HealthCheck verifies the database connection is alive.
func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() error {
	p.Pool.Close()
	return nil
}
