package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"contactbox/internal/server/database"
)

// CSVHeader is the first record of every CSV export.
var CSVHeader = []string{"ID", "Name", "Email", "Message", "Filename", "Timestamp"}

// SubmissionView is the exported shape of a submission.
type SubmissionView struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Message   string  `json:"message"`
	Filename  *string `json:"filename"`
	Timestamp string  `json:"timestamp"`
}

func newSubmissionView(sub *database.Submission) SubmissionView {
	return SubmissionView{
		ID:        sub.ID,
		Name:      sub.Name,
		Email:     sub.Email,
		Message:   sub.Message,
		Filename:  sub.Filename,
		Timestamp: sub.Timestamp,
	}
}

// SubmissionDetail is the single-submission view. It extends SubmissionView
// with the attachment's digest and size, which the bulk exports leave out.
type SubmissionDetail struct {
	SubmissionView
	FileHash *string `json:"file_hash"`
	FileSize *int64  `json:"file_size"`
}

// Exporter provides read-only views over the contact store.
type Exporter struct {
	store database.Store
}

// NewExporter creates an exporter reading from store.
func NewExporter(store database.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportJSON returns every submission in insertion order. An empty store
// yields an empty, non-nil slice.
func (e *Exporter) ExportJSON(ctx context.Context) ([]SubmissionView, error) {
	subs, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]SubmissionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, newSubmissionView(sub))
	}
	return views, nil
}

// WriteCSV writes the header and one record per submission to w. Rows are
// read before anything is written, so a storage failure leaves w untouched.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer) error {
	subs, err := e.store.ListAll(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, sub := range subs {
		filename := ""
		if sub.Filename != nil {
			filename = *sub.Filename
		}
		record := []string{
			strconv.FormatInt(sub.ID, 10),
			sub.Name,
			sub.Email,
			sub.Message,
			filename,
			sub.Timestamp,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record %d: %w", sub.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// Get returns a single submission by id.
func (e *Exporter) Get(ctx context.Context, id int64) (*SubmissionDetail, error) {
	sub, err := e.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrSubmissionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &SubmissionDetail{
		SubmissionView: newSubmissionView(sub),
		FileHash:       sub.FileHash,
		FileSize:       sub.FileSize,
	}, nil
}
