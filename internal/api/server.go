package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/texdesk/internal/assistant"
	"github.com/dgallion1/texdesk/internal/compile"
	"github.com/dgallion1/texdesk/internal/config"
	"github.com/dgallion1/texdesk/internal/docstore"
	"github.com/dgallion1/texdesk/internal/render"
	"github.com/dgallion1/texdesk/internal/stats"
)

// Deps are the components the HTTP layer serves.
type Deps struct {
	Store     *docstore.Store
	Renderer  *render.Renderer
	Compiler  *compile.Orchestrator
	Assistant *assistant.Client // nil leaves /api/chat unmounted

	CompileStats   *stats.Window
	RenderStats    *stats.Window
	AssistantStats *stats.Window
}

// Server is the HTTP API server for texdesk.
type Server struct {
	router    chi.Router
	store     *docstore.Store
	renderer  *render.Renderer
	compiler  *compile.Orchestrator
	assistant *assistant.Client
	deps      Deps
	previews  singleflight.Group
	log       *slog.Logger
	cfg       config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		store:     deps.Store,
		renderer:  deps.Renderer,
		compiler:  deps.Compiler,
		assistant: deps.Assistant,
		deps:      deps,
		log:       log,
		cfg:       cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.TexdeskAPIKey, s.log))

		r.Post("/api/upload", s.handleUpload)

		r.Route("/api/files/{fileID}", func(r chi.Router) {
			r.Get("/", s.handleGetFiles)
			r.Put("/", s.handlePutWorkingCopy)
			r.Get("/tex", s.handleTeXExport)
			r.Get("/preview", s.handlePreview)
			r.Get("/outline", s.handleOutline)
			r.Get("/docx", s.handleDOCXExport)
			r.Post("/pdf", s.handlePDFExport)
			r.Get("/jobs", s.handleListJobs)
		})

		r.Get("/api/compile/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats", s.handleStats)

		if s.assistant != nil {
			r.Post("/api/chat", s.handleChat)
		}
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"compiler_available": s.compiler.Available(),
	})
}
