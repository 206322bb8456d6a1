package api

import (
	"net/http"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"compile_pass": s.deps.CompileStats.Snapshot(),
		"render":       s.deps.RenderStats.Snapshot(),
		"compile_jobs": s.compiler.Jobs().Len(),
	}
	if s.assistant != nil {
		resp["assistant"] = map[string]any{
			"model": s.assistant.Model(),
			"stats": s.deps.AssistantStats.Snapshot(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
