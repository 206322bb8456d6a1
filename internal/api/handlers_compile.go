package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/texdesk/internal/compile"
)

const installHint = "PDF generation requires LaTeX to be installed on the server. " +
	"Please install a LaTeX distribution (e.g., TeX Live, MiKTeX) to enable PDF generation."

// handlePDFExport compiles the working copy and sends the PDF as a download.
func (s *Server) handlePDFExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	if !s.store.Exists(id) {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	out := s.compiler.Compile(r.Context(), id)
	w.Header().Set("X-Compile-Job", out.JobID)

	switch out.Status {
	case compile.StatusSuccess:
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", attachment(s.cfg.PDFFilename))
		w.Header().Set("Content-Length", strconv.Itoa(len(out.PDF)))
		if out.Pages > 0 {
			w.Header().Set("X-Page-Count", strconv.Itoa(out.Pages))
		}
		w.Write(out.PDF)

	case compile.StatusUnavailable:
		resp := map[string]any{"error": installHint}
		// Hand back the source so the client can offer the .tex instead.
		if data, err := s.store.ReadWorkingCopy(id); err == nil {
			resp["texContent"] = string(data)
		}
		writeJSON(w, http.StatusNotImplemented, resp)

	case compile.StatusFailed:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "PDF generation failed. Make sure the LaTeX file is valid.",
			"details": out.LogTail,
		})

	case compile.StatusNotFound:
		jsonError(w, "File not found", http.StatusNotFound)

	default:
		// Details were logged by the orchestrator.
		jsonError(w, "Failed to generate PDF", http.StatusInternalServerError)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.compiler.Jobs().Get(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	if !s.store.Exists(id) {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.compiler.Jobs().List(id)})
}
