package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS contacts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		email       TEXT NOT NULL,
		message     TEXT NOT NULL,
		filename    TEXT,
		timestamp   TEXT,
		stored_name TEXT,
		file_hash   TEXT,
		file_size   INTEGER
	)
`

// SQLiteStore keeps the contact table in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (creating if needed) the SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, storageError("open", errors.New("empty database path"))
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, storageError("create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, storageError("open", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageError("ping", err)
	}

	slog.Info("connected to database", "driver", "sqlite", "path", path)
	return &SQLiteStore{db: db, path: path}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return storageError("create contacts table", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, sub *NewSubmission) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (
			name, email, message, filename, timestamp,
			stored_name, file_hash, file_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.Name,
		sub.Email,
		sub.Message,
		sub.Filename,
		sub.Timestamp,
		sub.StoredName,
		sub.FileHash,
		sub.FileSize,
	)
	if err != nil {
		return 0, storageError("insert submission", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageError("read inserted id", err)
	}
	return id, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM contacts ORDER BY id ASC")
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

func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM contacts WHERE id = ?", id)
	return s.one(row, "get submission")
}

func (s *SQLiteStore) LatestByFilename(ctx context.Context, filename string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM contacts WHERE filename = ? ORDER BY id DESC LIMIT 1",
		filename,
	)
	return s.one(row, "get submission by filename")
}

func (s *SQLiteStore) one(row *sql.Row, op string) (*Submission, error) {
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, storageError(op, err)
	}
	return sub, nil
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
