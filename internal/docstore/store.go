// Package docstore keeps uploaded documents on the local filesystem.
//
// Each document lives in its own directory under the base dir, named by an
// opaque ID. The directory holds the immutable original upload and the
// working copy that preview and compilation read.
package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// WorkingCopyName is the fixed filename of every document's working copy.
const WorkingCopyName = "file_clone.tex"

// createdStamp records the upload time; hidden from ListArtifacts.
const createdStamp = ".created"

var (
	ErrNotFound  = errors.New("docstore: not found")
	ErrExtension = errors.New("docstore: file type not allowed")
	ErrTooLarge  = errors.New("docstore: file too large")
	ErrEmpty     = errors.New("docstore: empty file")
	ErrBadName   = errors.New("docstore: invalid artifact name")
)

// Options are injected at construction.
type Options struct {
	BaseDir           string
	MaxBytes          int64
	AllowedExtensions []string
}

// Store is a Document Store rooted at a base directory.
// It is safe for concurrent use; the filesystem is the only shared state.
type Store struct {
	baseDir  string
	maxBytes int64
	allowed  map[string]bool
	now      func() time.Time
}

// Document describes a freshly uploaded document.
type Document struct {
	ID         string    `json:"fileId"`
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Metadata describes one stored artifact.
type Metadata struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	SizeHuman  string    `json:"sizeHuman"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Marker is the freshness marker of the artifact, derived from its
// modification time and size.
func (m Metadata) Marker() string {
	return fmt.Sprintf("%d-%d", m.ModifiedAt.UnixNano(), m.Size)
}

// New creates the base directory if needed.
func New(opts Options) (*Store, error) {
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("docstore: base dir is required")
	}
	if err := os.MkdirAll(opts.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Store{
		baseDir:  opts.BaseDir,
		maxBytes: opts.MaxBytes,
		allowed:  allowed,
		now:      time.Now,
	}, nil
}

// MaxBytes returns the configured upload ceiling.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Validate checks a candidate upload against the extension allow-list and
// size ceiling without touching disk.
func (s *Store) Validate(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowed[ext] {
		return fmt.Errorf("%w: %q (allowed: %s)", ErrExtension, ext, strings.Join(s.allowedList(), ", "))
	}
	if size == 0 {
		return ErrEmpty
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(s.maxBytes)))
	}
	return nil
}

// Create stores an upload under a new ID, writing the original and the
// working copy. On failure nothing is left behind.
func (s *Store) Create(filename string, data []byte) (Document, error) {
	name := SanitizeFilename(filename)
	if err := s.Validate(name, int64(len(data))); err != nil {
		return Document{}, err
	}

	id := uuid.NewString()
	dir := filepath.Join(s.baseDir, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return Document{}, fmt.Errorf("create document dir: %w", err)
	}

	uploadedAt := s.now().UTC()
	if err := os.WriteFile(filepath.Join(dir, createdStamp), []byte(uploadedAt.Format(time.RFC3339Nano)), 0o644); err != nil {
		os.RemoveAll(dir)
		return Document{}, fmt.Errorf("write created stamp: %w", err)
	}

	originalName := name
	if originalName == WorkingCopyName {
		originalName = "original-" + originalName
	}
	if err := os.WriteFile(filepath.Join(dir, originalName), data, 0o644); err != nil {
		os.RemoveAll(dir)
		return Document{}, fmt.Errorf("write original: %w", err)
	}
	if err := writeAtomic(dir, WorkingCopyName, data); err != nil {
		os.RemoveAll(dir)
		return Document{}, fmt.Errorf("write working copy: %w", err)
	}

	return Document{
		ID:         id,
		FileName:   originalName,
		FileSize:   int64(len(data)),
		UploadedAt: uploadedAt,
	}, nil
}

// Exists reports whether the document's working copy exists.
func (s *Store) Exists(id string) bool {
	dir, ok := s.docDir(id)
	if !ok {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, WorkingCopyName))
	return err == nil && info.Mode().IsRegular()
}

// ReadWorkingCopy returns the working copy contents.
func (s *Store) ReadWorkingCopy(id string) ([]byte, error) {
	return s.ReadArtifact(id, WorkingCopyName)
}

// ReadArtifact returns the contents of one named artifact.
func (s *Store) ReadArtifact(id, name string) ([]byte, error) {
	path, err := s.artifactPath(id, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// WriteWorkingCopy replaces the working copy. The original is never touched.
func (s *Store) WriteWorkingCopy(id string, data []byte) (Metadata, error) {
	if !s.Exists(id) {
		return Metadata{}, ErrNotFound
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return Metadata{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(s.maxBytes)))
	}
	dir, _ := s.docDir(id)
	if err := writeAtomic(dir, WorkingCopyName, data); err != nil {
		return Metadata{}, fmt.Errorf("write working copy: %w", err)
	}
	return s.Metadata(id, WorkingCopyName)
}

// ListArtifacts returns the artifact names of a document, sorted.
func (s *Store) ListArtifacts(id string) ([]string, error) {
	if !s.Exists(id) {
		return nil, ErrNotFound
	}
	dir, _ := s.docDir(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Metadata returns size and timestamps for one artifact.
func (s *Store) Metadata(id, name string) (Metadata, error) {
	path, err := s.artifactPath(id, name)
	if err != nil {
		return Metadata{}, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return Metadata{
		Name:       name,
		Size:       info.Size(),
		SizeHuman:  humanize.Bytes(uint64(info.Size())),
		CreatedAt:  s.createdAt(id, info),
		ModifiedAt: info.ModTime().UTC(),
	}, nil
}

func (s *Store) docDir(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return "", false
	}
	return filepath.Join(s.baseDir, id), true
}

func (s *Store) artifactPath(id, name string) (string, error) {
	dir, ok := s.docDir(id)
	if !ok {
		return "", ErrNotFound
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrBadName
	}
	return filepath.Join(dir, name), nil
}

func (s *Store) allowedList() []string {
	out := make([]string, 0, len(s.allowed))
	for ext := range s.allowed {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// writeAtomic writes via a temp file and rename so readers never observe a
// half-written working copy.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename strips directories and anything outside a conservative
// character set.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		return "upload"
	}
	return name
}

// createdAt is the document's upload time. Artifacts without a readable
// stamp fall back to their modification time.
func (s *Store) createdAt(id string, info fs.FileInfo) time.Time {
	dir, _ := s.docDir(id)
	raw, err := os.ReadFile(filepath.Join(dir, createdStamp))
	if err == nil {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw))); err == nil {
			return t
		}
	}
	return info.ModTime().UTC()
}
