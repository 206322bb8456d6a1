package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/texdesk/internal/docstore"
	"github.com/dgallion1/texdesk/internal/export"
)

type uploadResponse struct {
	docstore.Document
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.store.MaxBytes()
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, "File size must be less than "+humanize.Bytes(uint64(maxBytes)), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Reject on the declared size before reading anything.
	if err := s.store.Validate(docstore.SanitizeFilename(header.Filename), max(header.Size, 1)); err != nil {
		s.uploadError(w, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		jsonError(w, "Failed to upload file", http.StatusInternalServerError)
		return
	}

	doc, err := s.store.Create(header.Filename, data)
	if err != nil {
		s.uploadError(w, err)
		return
	}
	s.log.Info("document uploaded", "doc_id", doc.ID, "file_name", doc.FileName, "size", doc.FileSize)
	writeJSON(w, http.StatusOK, uploadResponse{Document: doc, ID: doc.ID, Success: true})
}

func (s *Server) uploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, docstore.ErrExtension):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, docstore.ErrEmpty):
		jsonError(w, "Uploaded file is empty", http.StatusBadRequest)
	case errors.Is(err, docstore.ErrTooLarge):
		jsonError(w, "File size must be less than "+humanize.Bytes(uint64(s.store.MaxBytes())), http.StatusRequestEntityTooLarge)
	default:
		s.log.Error("upload failed", "error", err)
		jsonError(w, "Failed to upload file", http.StatusInternalServerError)
	}
}

// handleGetFiles lists a document's artifacts, or returns one of them when
// ?filename= is given.
func (s *Server) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	if !s.store.Exists(id) {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	name := r.URL.Query().Get("filename")
	if name == "" {
		s.listArtifacts(w, id)
		return
	}

	meta, err := s.store.Metadata(id, name)
	if err != nil {
		s.artifactError(w, id, err)
		return
	}
	etag := etagFor(meta)
	setFreshness(w, meta, etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data, err := s.store.ReadArtifact(id, name)
	if err != nil {
		s.artifactError(w, id, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(name))
	w.Write(data)
}

func (s *Server) listArtifacts(w http.ResponseWriter, id string) {
	names, err := s.store.ListArtifacts(id)
	if err != nil {
		s.artifactError(w, id, err)
		return
	}
	files := make([]docstore.Metadata, 0, len(names))
	for _, name := range names {
		meta, err := s.store.Metadata(id, name)
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		files = append(files, meta)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"files":   files,
		"success": true,
	})
}

func (s *Server) artifactError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		jsonError(w, "File not found", http.StatusNotFound)
	case errors.Is(err, docstore.ErrBadName):
		jsonError(w, "invalid filename", http.StatusBadRequest)
	default:
		s.log.Error("read artifact", "doc_id", id, "error", err)
		jsonError(w, "Failed to process request", http.StatusInternalServerError)
	}
}

// handlePutWorkingCopy replaces the working copy with the request body.
func (s *Server) handlePutWorkingCopy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	maxBytes := s.store.MaxBytes()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, "File size must be less than "+humanize.Bytes(uint64(maxBytes)), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	meta, err := s.store.WriteWorkingCopy(id, data)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		jsonError(w, "File not found", http.StatusNotFound)
		return
	case errors.Is(err, docstore.ErrTooLarge):
		jsonError(w, "File size must be less than "+humanize.Bytes(uint64(maxBytes)), http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		s.log.Error("write working copy", "doc_id", id, "error", err)
		jsonError(w, "Failed to save file", http.StatusInternalServerError)
		return
	}
	s.log.Info("working copy updated", "doc_id", id, "size", meta.Size)
	setFreshness(w, meta, etagFor(meta))
	writeJSON(w, http.StatusOK, meta)
}

// handleTeXExport downloads the working copy under the original name.
func (s *Server) handleTeXExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	data, err := s.store.ReadWorkingCopy(id)
	if err != nil {
		s.artifactError(w, id, err)
		return
	}
	w.Header().Set("Content-Type", export.TeXContentType)
	w.Header().Set("Content-Disposition", attachment(export.Filename(s.originalName(id), ".tex")))
	w.Write(data)
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	data, err := s.store.ReadWorkingCopy(id)
	if err != nil {
		s.artifactError(w, id, err)
		return
	}
	tree := s.renderer.OutlineLaTeX(string(data), export.Filename(s.originalName(id), ""))
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleDOCXExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	data, err := s.store.ReadWorkingCopy(id)
	if err != nil {
		s.artifactError(w, id, err)
		return
	}
	name := s.originalName(id)
	tree := s.renderer.OutlineLaTeX(string(data), export.Filename(name, ""))

	var buf bytes.Buffer
	if err := export.DOCX(&buf, tree); err != nil {
		s.log.Error("docx export", "doc_id", id, "error", err)
		jsonError(w, "Failed to generate DOCX", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", export.DOCXContentType)
	w.Header().Set("Content-Disposition", attachment(export.Filename(name, ".docx")))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.Write(buf.Bytes())
}

// originalName is the uploaded file's name, or the working copy name when
// the original cannot be identified.
func (s *Server) originalName(id string) string {
	names, err := s.store.ListArtifacts(id)
	if err == nil {
		for _, n := range names {
			if n != docstore.WorkingCopyName {
				return n
			}
		}
	}
	return docstore.WorkingCopyName
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func etagFor(meta docstore.Metadata) string {
	return `"` + meta.Marker() + `"`
}

func setFreshness(w http.ResponseWriter, meta docstore.Metadata, etag string) {
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", meta.ModifiedAt.UTC().Format(http.TimeFormat))
}

// etagMatches reports whether an If-None-Match header names etag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
