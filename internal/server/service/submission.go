package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"contactbox/internal/server/database"
	"contactbox/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Sentinel errors for the service layer.
var (
	ErrMissingField = errors.New("missing required field")
	ErrFileSave     = errors.New("failed to save attachment")
	ErrNotFound     = errors.New("not found")
)

// TimestampLayout is the textual form of Submission.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Form carries the text fields of a submission. A nil field was absent from
// the request; an empty string was present but blank.
type Form struct {
	Name    *string
	Email   *string
	Message *string
}

// Attachment is an uploaded file as declared by the client.
type Attachment struct {
	Filename string
	Content  io.Reader
}

// Recorder turns one form post into a persisted submission.
type Recorder struct {
	store database.Store
	files storage.Store
	now   func() time.Time
}

// NewRecorder creates a recorder writing rows to store and attachments to files.
func NewRecorder(store database.Store, files storage.Store) *Recorder {
	return &Recorder{
		store: store,
		files: files,
		now:   time.Now,
	}
}

// Record validates field presence, saves the optional attachment under a
// unique stored name and inserts the row. The attachment is saved before the
// row is written; if the insert fails the saved file is removed again.
func (r *Recorder) Record(ctx context.Context, form Form, att *Attachment) (*database.Submission, error) {
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"name", form.Name},
		{"email", form.Email},
		{"message", form.Message},
	} {
		if f.value == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	row := &database.NewSubmission{
		Name:      form.Name,
		Email:     form.Email,
		Message:   form.Message,
		Timestamp: r.now().Format(TimestampLayout),
	}

	if att != nil && att.Filename != "" {
		if err := r.saveAttachment(row, att); err != nil {
			return nil, err
		}
	}

	id, err := r.store.Insert(ctx, row)
	if err != nil {
		if row.StoredName != nil {
			if delErr := r.files.Delete(*row.StoredName); delErr != nil {
				slog.Error("failed to remove attachment after insert failure",
					"stored_name", *row.StoredName,
					"error", delErr,
				)
			}
		}
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	sub := &database.Submission{
		ID:         id,
		Name:       *row.Name,
		Email:      *row.Email,
		Message:    *row.Message,
		Filename:   row.Filename,
		Timestamp:  row.Timestamp,
		StoredName: row.StoredName,
		FileHash:   row.FileHash,
		FileSize:   row.FileSize,
	}

	attrs := []any{"id", id}
	if sub.Filename != nil {
		attrs = append(attrs,
			"filename", *sub.Filename,
			"stored_name", *sub.StoredName,
			"size", *sub.FileSize,
			"blake2b", *sub.FileHash,
		)
	}
	slog.Info("submission recorded", attrs...)

	return sub, nil
}

func (r *Recorder) saveAttachment(row *database.NewSubmission, att *Attachment) error {
	filename := SanitizeFilename(att.Filename)
	if filename == "" {
		slog.Info("ignoring attachment with unusable name", "declared", att.Filename)
		return nil
	}
	prefix := uuid.NewString() + "_"
	storedName := prefix + truncateFilename(filename, maxFilenameLen-len(prefix))

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileSave, err)
	}

	n, err := r.files.Save(storedName, io.TeeReader(att.Content, hasher))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileSave, err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	row.Filename = &filename
	row.StoredName = &storedName
	row.FileHash = &hash
	row.FileSize = &n
	return nil
}
