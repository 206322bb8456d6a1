package docstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Options{
		BaseDir:           t.TempDir(),
		MaxBytes:          1024,
		AllowedExtensions: []string{".tex"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCreate_WritesOriginalAndWorkingCopy(t *testing.T) {
	s := newTestStore(t)
	src := []byte(`\section{Intro} hello`)

	doc, err := s.Create("hw1.tex", src)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID == "" || doc.FileName != "hw1.tex" || doc.FileSize != int64(len(src)) {
		t.Errorf("unexpected document %+v", doc)
	}
	if !s.Exists(doc.ID) {
		t.Fatal("expected document to exist")
	}

	names, err := s.ListArtifacts(doc.ID)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(names) != 2 || names[0] != WorkingCopyName || names[1] != "hw1.tex" {
		t.Errorf("expected [%s hw1.tex], got %v", WorkingCopyName, names)
	}

	got, err := s.ReadWorkingCopy(doc.ID)
	if err != nil {
		t.Fatalf("ReadWorkingCopy: %v", err)
	}
	if string(got) != string(src) {
		t.Errorf("working copy mismatch: %q", got)
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Create("a.tex", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Create("a.tex", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Error("expected distinct IDs for identical uploads")
	}
}

func TestCreate_RejectsExtension(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("notes.md", []byte("# hi"))
	if !errors.Is(err, ErrExtension) {
		t.Errorf("expected ErrExtension, got %v", err)
	}
}

func TestCreate_RejectsOversize(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("big.tex", []byte(strings.Repeat("a", 2048)))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if !strings.Contains(err.Error(), "kB") {
		t.Errorf("expected human-readable size in %q", err.Error())
	}
}

func TestCreate_RejectsEmpty(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("empty.tex", nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestCreate_OriginalNamedLikeWorkingCopy(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create(WorkingCopyName, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.FileName != "original-"+WorkingCopyName {
		t.Errorf("expected prefixed original, got %q", doc.FileName)
	}
}

func TestWriteWorkingCopy_KeepsOriginal(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("hw.tex", []byte("v1"))
	if err != nil {
		t.Fatal(err)
	}
	before, err := s.Metadata(doc.ID, WorkingCopyName)
	if err != nil {
		t.Fatal(err)
	}

	after, err := s.WriteWorkingCopy(doc.ID, []byte("version two"))
	if err != nil {
		t.Fatalf("WriteWorkingCopy: %v", err)
	}
	if after.Marker() == before.Marker() {
		t.Error("expected freshness marker to change after write")
	}

	orig, err := s.ReadArtifact(doc.ID, "hw.tex")
	if err != nil {
		t.Fatal(err)
	}
	if string(orig) != "v1" {
		t.Errorf("original was modified: %q", orig)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestStore(t)
	const missing = "0b4f6c3e-9a53-4c2e-8d0c-3b1f5a9e7d21"

	if s.Exists(missing) {
		t.Error("expected missing document")
	}
	if _, err := s.ReadWorkingCopy(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.ListArtifacts(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.WriteWorkingCopy(missing, []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWorkingCopyAbsenceMeansNotFound(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("hw.tex", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(s.baseDir, doc.ID, WorkingCopyName)); err != nil {
		t.Fatal(err)
	}
	if s.Exists(doc.ID) {
		t.Error("expected document without working copy to be absent")
	}
}

func TestRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("hw.tex", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"../hw.tex", "a/b.tex", ".created", ""} {
		if _, err := s.ReadArtifact(doc.ID, name); !errors.Is(err, ErrBadName) {
			t.Errorf("ReadArtifact(%q): expected ErrBadName, got %v", name, err)
		}
	}
	if s.Exists("../" + doc.ID) {
		t.Error("expected non-canonical id to be rejected")
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("hw.tex", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	meta, err := s.Metadata(doc.ID, "hw.tex")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Size != 5 {
		t.Errorf("expected size 5, got %d", meta.Size)
	}
	if !meta.CreatedAt.Equal(doc.UploadedAt) {
		t.Errorf("expected createdAt %v, got %v", doc.UploadedAt, meta.CreatedAt)
	}
	if meta.ModifiedAt.IsZero() {
		t.Error("expected modification time")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"hw1.tex", "hw1.tex"},
		{"../../etc/passwd.tex", "passwd.tex"},
		{`C:\Users\me\My Homework.tex`, "My_Homework.tex"},
		{".hidden.tex", "hidden.tex"},
		{"", "upload"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
