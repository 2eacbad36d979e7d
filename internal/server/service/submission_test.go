package service

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"contactbox/internal/server/database"
	"contactbox/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

type testEnv struct {
	store    *database.SQLiteStore
	files    *storage.FileSystemStore
	dir      string
	recorder *Recorder
	exporter *Exporter
	attach   *AttachmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	store, err := database.NewSQLite(context.Background(), filepath.Join(root, "contact.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	dir := filepath.Join(root, "uploads")
	files := storage.NewFileSystemStore(dir)
	if err := files.EnsureDir(); err != nil {
		t.Fatalf("failed to create upload dir: %v", err)
	}

	return &testEnv{
		store:    store,
		files:    files,
		dir:      dir,
		recorder: NewRecorder(store, files),
		exporter: NewExporter(store),
		attach:   NewAttachmentService(store, files),
	}
}

func strPtr(s string) *string { return &s }

func form(name, email, message string) Form {
	return Form{Name: strPtr(name), Email: strPtr(email), Message: strPtr(message)}
}

// brokenStore fails every operation the way an unreachable database would.
type brokenStore struct{ database.Store }

func (brokenStore) Insert(context.Context, *database.NewSubmission) (int64, error) {
	return 0, errors.Join(database.ErrStorage, errors.New("disk I/O error"))
}

func (brokenStore) ListAll(context.Context) ([]*database.Submission, error) {
	return nil, errors.Join(database.ErrStorage, errors.New("disk I/O error"))
}

type brokenFiles struct{ storage.Store }

func (brokenFiles) Save(string, io.Reader) (int64, error) {
	return 0, errors.New("no space left on device")
}

var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("submission without file", func(t *testing.T) {
		env := newTestEnv(t)

		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.ID == 0 {
			t.Error("expected generated id")
		}
		if sub.Filename != nil || sub.StoredName != nil {
			t.Errorf("expected no attachment, got %v / %v", sub.Filename, sub.StoredName)
		}
		if !timestampPattern.MatchString(sub.Timestamp) {
			t.Errorf("timestamp %q does not match YYYY-MM-DD HH:MM:SS", sub.Timestamp)
		}

		entries, _ := os.ReadDir(env.dir)
		if len(entries) != 0 {
			t.Errorf("expected empty upload dir, got %d entries", len(entries))
		}
	})

	t.Run("uses the local clock", func(t *testing.T) {
		env := newTestEnv(t)
		env.recorder.now = func() time.Time {
			return time.Date(2026, 10, 18, 7, 5, 9, 0, time.Local)
		}

		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.Timestamp != "2026-10-18 07:05:09" {
			t.Errorf("expected 2026-10-18 07:05:09, got %s", sub.Timestamp)
		}
	})

	t.Run("empty strings are accepted", func(t *testing.T) {
		env := newTestEnv(t)

		if _, err := env.recorder.Record(ctx, form("", "", ""), nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("absent field is rejected", func(t *testing.T) {
		env := newTestEnv(t)

		f := form("Ann", "ann@x.com", "hi")
		f.Email = nil
		_, err := env.recorder.Record(ctx, f, nil)
		if !errors.Is(err, ErrMissingField) {
			t.Fatalf("expected ErrMissingField, got %v", err)
		}
		if !strings.Contains(err.Error(), "email") {
			t.Errorf("expected error to name the field, got %v", err)
		}

		views, _ := env.exporter.ExportJSON(ctx)
		if len(views) != 0 {
			t.Errorf("expected no rows, got %d", len(views))
		}
	})

	t.Run("saves attachment under a unique stored name", func(t *testing.T) {
		env := newTestEnv(t)

		att := &Attachment{Filename: "a/../../etc/passwd", Content: strings.NewReader("root:x:0:0")}
		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"), att)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.Filename == nil || *sub.Filename != "passwd" {
			t.Fatalf("expected filename passwd, got %v", sub.Filename)
		}
		if !strings.HasSuffix(*sub.StoredName, "_passwd") || strings.ContainsAny(*sub.StoredName, `/\`) {
			t.Errorf("unexpected stored name %q", *sub.StoredName)
		}
		if *sub.FileSize != int64(len("root:x:0:0")) {
			t.Errorf("expected size %d, got %d", len("root:x:0:0"), *sub.FileSize)
		}
		sum := blake2b.Sum256([]byte("root:x:0:0"))
		if *sub.FileHash != hex.EncodeToString(sum[:]) {
			t.Errorf("expected blake2b-256 of the content, got %q", *sub.FileHash)
		}

		content, err := os.ReadFile(filepath.Join(env.dir, *sub.StoredName))
		if err != nil {
			t.Fatalf("attachment not on disk: %v", err)
		}
		if string(content) != "root:x:0:0" {
			t.Errorf("unexpected content %q", content)
		}
	})

	t.Run("unusable file name means no file", func(t *testing.T) {
		env := newTestEnv(t)

		att := &Attachment{Filename: "..", Content: strings.NewReader("x")}
		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"), att)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.Filename != nil {
			t.Errorf("expected no filename, got %q", *sub.Filename)
		}
	})

	t.Run("same file name twice keeps both files", func(t *testing.T) {
		env := newTestEnv(t)

		first, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "one"),
			&Attachment{Filename: "photo.png", Content: strings.NewReader("first")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := env.recorder.Record(ctx, form("Bob", "bob@x.com", "two"),
			&Attachment{Filename: "photo.png", Content: strings.NewReader("second")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if *first.Filename != "photo.png" || *second.Filename != "photo.png" {
			t.Errorf("expected both rows to reference photo.png")
		}
		if *first.StoredName == *second.StoredName {
			t.Fatal("expected distinct stored names")
		}

		file, err := env.attach.Resolve(ctx, "photo.png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if file.Filename != "photo.png" {
			t.Errorf("expected photo.png, got %s", file.Filename)
		}
		content, _ := os.ReadFile(file.Path)
		if string(content) != "second" {
			t.Errorf("expected latest bytes 'second', got %q", content)
		}

		file, err = env.attach.ForSubmission(ctx, first.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content, _ = os.ReadFile(file.Path)
		if string(content) != "first" {
			t.Errorf("expected first attachment preserved, got %q", content)
		}
	})

	t.Run("long extension never truncates the unique prefix", func(t *testing.T) {
		env := newTestEnv(t)
		name := "x." + strings.Repeat("y", 252)

		seen := make(map[string]string)
		for i := 0; i < 20; i++ {
			content := fmt.Sprintf("upload %d", i)
			sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"),
				&Attachment{Filename: name, Content: strings.NewReader(content)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(*sub.StoredName) > maxFilenameLen {
				t.Errorf("stored name is %d bytes, limit %d", len(*sub.StoredName), maxFilenameLen)
			}
			if _, err := uuid.Parse((*sub.StoredName)[:36]); err != nil {
				t.Errorf("stored name %q lost its uuid prefix: %v", *sub.StoredName, err)
			}
			if _, ok := seen[*sub.StoredName]; ok {
				t.Fatalf("stored name %q reused by submission %d", *sub.StoredName, sub.ID)
			}
			seen[*sub.StoredName] = content
		}

		for stored, want := range seen {
			content, err := os.ReadFile(filepath.Join(env.dir, stored))
			if err != nil {
				t.Fatalf("attachment %q missing: %v", stored, err)
			}
			if string(content) != want {
				t.Errorf("%s: expected %q, got %q", stored, want, content)
			}
		}
	})

	t.Run("file save failure aborts the submission", func(t *testing.T) {
		env := newTestEnv(t)
		rec := NewRecorder(env.store, brokenFiles{env.files})

		_, err := rec.Record(ctx, form("Ann", "ann@x.com", "hi"),
			&Attachment{Filename: "photo.png", Content: strings.NewReader("x")})
		if !errors.Is(err, ErrFileSave) {
			t.Fatalf("expected ErrFileSave, got %v", err)
		}

		views, _ := env.exporter.ExportJSON(ctx)
		if len(views) != 0 {
			t.Errorf("expected no row after failed save, got %d", len(views))
		}
	})

	t.Run("insert failure removes the saved attachment", func(t *testing.T) {
		env := newTestEnv(t)
		rec := NewRecorder(brokenStore{env.store}, env.files)

		_, err := rec.Record(ctx, form("Ann", "ann@x.com", "hi"),
			&Attachment{Filename: "photo.png", Content: strings.NewReader("x")})
		if !errors.Is(err, database.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}

		entries, _ := os.ReadDir(env.dir)
		if len(entries) != 0 {
			t.Errorf("expected orphaned attachment to be removed, found %d files", len(entries))
		}
	})
}

func TestExporter(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store exports header only", func(t *testing.T) {
		env := newTestEnv(t)

		var buf strings.Builder
		if err := env.exporter.WriteCSV(ctx, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.String() != "ID,Name,Email,Message,Filename,Timestamp\n" {
			t.Errorf("unexpected csv %q", buf.String())
		}

		views, err := env.exporter.ExportJSON(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if views == nil || len(views) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", views)
		}
	})

	t.Run("json and csv agree with inserted rows", func(t *testing.T) {
		env := newTestEnv(t)

		inputs := []Form{
			form("Ann", "ann@x.com", "hi"),
			form("Bob", "bob@x.com", "line one\nline two"),
			form("Cat", "cat@x.com", `she said "hello", then left`),
		}
		for i, f := range inputs {
			var att *Attachment
			if i == 1 {
				att = &Attachment{Filename: "notes.txt", Content: strings.NewReader("n")}
			}
			if _, err := env.recorder.Record(ctx, f, att); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		views, err := env.exporter.ExportJSON(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var buf strings.Builder
		if err := env.exporter.WriteCSV(ctx, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
		if err != nil {
			t.Fatalf("export is not valid csv: %v", err)
		}

		if len(views) != len(inputs) || len(records) != len(inputs)+1 {
			t.Fatalf("expected %d rows, got %d json / %d csv", len(inputs), len(views), len(records)-1)
		}

		for i, view := range views {
			rec := records[i+1]
			if view.Name != *inputs[i].Name || rec[1] != view.Name {
				t.Errorf("row %d: name mismatch %q / %q", i, view.Name, rec[1])
			}
			if view.Message != *inputs[i].Message || rec[3] != view.Message {
				t.Errorf("row %d: message mismatch %q / %q", i, view.Message, rec[3])
			}
			if rec[5] != view.Timestamp {
				t.Errorf("row %d: timestamp mismatch", i)
			}
		}

		if views[0].Filename != nil {
			t.Errorf("expected nil filename for row without file")
		}
		if views[1].Filename == nil || *views[1].Filename != "notes.txt" || records[2][4] != "notes.txt" {
			t.Errorf("expected notes.txt in both exports")
		}
		if records[1][4] != "" {
			t.Errorf("expected empty csv filename, got %q", records[1][4])
		}
	})

	t.Run("storage failure is returned", func(t *testing.T) {
		exp := NewExporter(brokenStore{})

		if _, err := exp.ExportJSON(ctx); !errors.Is(err, database.ErrStorage) {
			t.Errorf("expected ErrStorage, got %v", err)
		}

		var buf strings.Builder
		if err := exp.WriteCSV(ctx, &buf); !errors.Is(err, database.ErrStorage) {
			t.Errorf("expected ErrStorage, got %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("expected no partial output, got %q", buf.String())
		}
	})

	t.Run("Get", func(t *testing.T) {
		env := newTestEnv(t)

		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		view, err := env.exporter.Get(ctx, sub.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if view.Email != "ann@x.com" {
			t.Errorf("unexpected view %+v", view)
		}
		if view.FileHash != nil || view.FileSize != nil {
			t.Errorf("expected no digest without a file, got %v / %v", view.FileHash, view.FileSize)
		}

		withFile, err := env.recorder.Record(ctx, form("Bob", "bob@x.com", "cv"),
			&Attachment{Filename: "cv.pdf", Content: strings.NewReader("pdf bytes")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		view, err = env.exporter.Get(ctx, withFile.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sum := blake2b.Sum256([]byte("pdf bytes"))
		if view.FileHash == nil || *view.FileHash != hex.EncodeToString(sum[:]) {
			t.Errorf("expected blake2b digest in detail view, got %v", view.FileHash)
		}
		if view.FileSize == nil || *view.FileSize != int64(len("pdf bytes")) {
			t.Errorf("expected size %d, got %v", len("pdf bytes"), view.FileSize)
		}

		if _, err := env.exporter.Get(ctx, sub.ID+1); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAttachmentService(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves stored name directly", func(t *testing.T) {
		env := newTestEnv(t)

		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"),
			&Attachment{Filename: "cv.pdf", Content: strings.NewReader("pdf")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		file, err := env.attach.Resolve(ctx, *sub.StoredName)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Base(file.Path) != *sub.StoredName || file.Filename != *sub.StoredName {
			t.Errorf("unexpected resolution %s / %s", file.Path, file.Filename)
		}
		if file.ETag() != "" {
			t.Errorf("expected no etag for a stored-name match, got %s", file.ETag())
		}
	})

	t.Run("display name wins over a flat file of the same name", func(t *testing.T) {
		env := newTestEnv(t)

		if err := os.WriteFile(filepath.Join(env.dir, "photo.png"), []byte("legacy"), 0644); err != nil {
			t.Fatalf("failed to write legacy file: %v", err)
		}
		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"),
			&Attachment{Filename: "photo.png", Content: strings.NewReader("fresh")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		file, err := env.attach.Resolve(ctx, "photo.png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content, _ := os.ReadFile(file.Path)
		if string(content) != "fresh" {
			t.Errorf("expected the submission's bytes, got %q", content)
		}
		if file.ETag() != `"`+*sub.FileHash+`"` {
			t.Errorf("expected etag of the recorded digest, got %s", file.ETag())
		}
	})

	t.Run("flat file is served when no submission matches", func(t *testing.T) {
		env := newTestEnv(t)

		if err := os.WriteFile(filepath.Join(env.dir, "old.txt"), []byte("legacy"), 0644); err != nil {
			t.Fatalf("failed to write legacy file: %v", err)
		}

		file, err := env.attach.Resolve(ctx, "old.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Base(file.Path) != "old.txt" {
			t.Errorf("unexpected path %s", file.Path)
		}
	})

	t.Run("unknown name is not found", func(t *testing.T) {
		env := newTestEnv(t)

		if _, err := env.attach.Resolve(ctx, "nope.png"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := env.attach.Resolve(ctx, "../contact.db"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for traversal, got %v", err)
		}
	})

	t.Run("submission without file has no attachment", func(t *testing.T) {
		env := newTestEnv(t)

		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := env.attach.ForSubmission(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := env.attach.ForSubmission(ctx, sub.ID+10); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("file removed from disk is not found", func(t *testing.T) {
		env := newTestEnv(t)

		sub, err := env.recorder.Record(ctx, form("Ann", "ann@x.com", "hi"),
			&Attachment{Filename: "gone.txt", Content: strings.NewReader("x")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		os.Remove(filepath.Join(env.dir, *sub.StoredName))

		if _, err := env.attach.Resolve(ctx, "gone.txt"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
