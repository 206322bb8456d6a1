package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/texdesk/internal/docstore"
	"github.com/dgallion1/texdesk/internal/export"
	"github.com/dgallion1/texdesk/internal/preview"
	"github.com/dgallion1/texdesk/internal/render"
)

type previewResponse struct {
	HTML        string `json:"html"`
	Fingerprint string `json:"fingerprint"`
	Degraded    bool   `json:"degraded"`
}

// handlePreview renders the working copy. Identical concurrent requests for
// the same version share one render. ?page=1 returns a standalone HTML page
// instead of JSON.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	src, err := preview.StoreFetcher{Store: s.store, ID: id}.Fetch(r.Context())
	if errors.Is(err, docstore.ErrNotFound) {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("preview fetch", "doc_id", id, "error", err)
		jsonError(w, "Failed to process request", http.StatusInternalServerError)
		return
	}

	etag := `"` + src.Marker + `"`
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	// The shared render must not die with whichever request started it.
	ctx := context.WithoutCancel(r.Context())
	v, _, shared := s.previews.Do(id+"/"+src.Marker, func() (any, error) {
		return s.renderer.LaTeX(ctx, src.Text), nil
	})
	res := v.(render.Result)
	if res.Degraded {
		s.log.Warn("preview degraded", "doc_id", id, "fingerprint", src.Marker)
	}
	s.log.Debug("preview rendered", "doc_id", id, "shared", shared)

	if r.URL.Query().Get("page") != "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(render.Page(export.Filename(s.originalName(id), ""), res.HTML)))
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		HTML:        res.HTML,
		Fingerprint: src.Marker,
		Degraded:    res.Degraded,
	})
}
