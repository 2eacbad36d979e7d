package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStorage marks any failure to open, read or write the contact store.
	ErrStorage            = errors.New("contact store unavailable")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Store is the append-only contact store. There is deliberately no update or
// delete operation.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, sub *NewSubmission) (int64, error)
	ListAll(ctx context.Context) ([]*Submission, error)
	GetByID(ctx context.Context, id int64) (*Submission, error)
	LatestByFilename(ctx context.Context, filename string) (*Submission, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Open connects to the store named by url. postgres:// and postgresql://
// URLs use PostgreSQL; anything else is treated as a SQLite file path
// (optionally prefixed with sqlite://).
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgres(ctx, url)
	default:
		return NewSQLite(ctx, strings.TrimPrefix(url, "sqlite://"))
	}
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// scanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectColumns = `id, name, email, message, filename, timestamp, stored_name, file_hash, file_size`

func scanSubmission(row scanner) (*Submission, error) {
	sub := &Submission{}
	var ts *string
	if err := row.Scan(
		&sub.ID,
		&sub.Name,
		&sub.Email,
		&sub.Message,
		&sub.Filename,
		&ts,
		&sub.StoredName,
		&sub.FileHash,
		&sub.FileSize,
	); err != nil {
		return nil, err
	}
	if ts != nil {
		sub.Timestamp = *ts
	}
	return sub, nil
}
