package database

// Submission represents one stored contact form submission.
type Submission struct {
	ID        int64
	Name      string
	Email     string
	Message   string
	Filename  *string // nil when no file was attached
	Timestamp string

	StoredName *string
	FileHash   *string
	FileSize   *int64
}

// NewSubmission holds the values written by Store.Insert. Required fields are
// pointers so an absent value reaches the NOT NULL constraint unchanged.
type NewSubmission struct {
	Name      *string
	Email     *string
	Message   *string
	Filename  *string
	Timestamp string

	StoredName *string
	FileHash   *string
	FileSize   *int64
}

// HasAttachment reports whether the submission references a saved file.
func (s *Submission) HasAttachment() bool {
	return s.Filename != nil && s.StoredName != nil
}
