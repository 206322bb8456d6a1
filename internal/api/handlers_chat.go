package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/texdesk/internal/assistant"
)

type chatRequest struct {
	Messages []assistant.Message `json:"messages"`
	FileID   string              `json:"fileId,omitempty"`
}

// handleChat answers one conversation turn, with the document as context
// when fileId is given.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	system, err := assistant.SystemPrompt(s.store, req.FileID, s.cfg.AssistantMaxContextTokens)
	if err != nil {
		s.log.Warn("assistant file context unavailable", "doc_id", req.FileID, "error", err)
	}

	reply, err := s.assistant.Reply(r.Context(), system, req.Messages)
	if errors.Is(err, assistant.ErrNoMessages) {
		jsonError(w, "messages must include a user message", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("assistant reply", "doc_id", req.FileID, "error", err)
		jsonError(w, "assistant request failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reply": reply,
		"model": s.assistant.Model(),
	})
}
