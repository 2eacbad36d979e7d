package service

import (
	"context"
	"errors"
	"fmt"

	"contactbox/internal/server/database"
	"contactbox/internal/server/storage"
)

// ResolvedFile is an attachment located on disk.
type ResolvedFile struct {
	Path     string
	Filename string
	// Hash is the hex BLAKE2b-256 digest recorded at upload time. Empty when
	// the file was matched by stored name alone.
	Hash string
}

// ETag returns the strong entity tag for the file, or "" without a digest.
func (f *ResolvedFile) ETag() string {
	if f.Hash == "" {
		return ""
	}
	return `"` + f.Hash + `"`
}

// AttachmentService resolves stored attachments for download.
type AttachmentService struct {
	store database.Store
	files storage.Store
}

// NewAttachmentService creates a new attachment resolver.
func NewAttachmentService(store database.Store, files storage.Store) *AttachmentService {
	return &AttachmentService{store: store, files: files}
}

// Resolve maps an /uploads/<name> segment to a file on disk. name is first
// taken as a display filename and the attachment of the newest submission
// carrying it is returned; failing that it is tried as a stored name.
func (s *AttachmentService) Resolve(ctx context.Context, name string) (*ResolvedFile, error) {
	sub, err := s.store.LatestByFilename(ctx, name)
	switch {
	case err == nil:
		return s.fileFor(sub)
	case !errors.Is(err, database.ErrSubmissionNotFound):
		return nil, err
	}

	path, err := s.files.GetPath(name)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ResolvedFile{Path: path, Filename: name}, nil
}

// ForSubmission returns the attachment saved with submission id.
func (s *AttachmentService) ForSubmission(ctx context.Context, id int64) (*ResolvedFile, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrSubmissionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.fileFor(sub)
}

func (s *AttachmentService) fileFor(sub *database.Submission) (*ResolvedFile, error) {
	if !sub.HasAttachment() {
		return nil, ErrNotFound
	}

	path, err := s.files.GetPath(*sub.StoredName)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: attachment of submission %d is missing on disk", ErrNotFound, sub.ID)
		}
		return nil, err
	}

	file := &ResolvedFile{Path: path, Filename: *sub.Filename}
	if sub.FileHash != nil {
		file.Hash = *sub.FileHash
	}
	return file, nil
}
