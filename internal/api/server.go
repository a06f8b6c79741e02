package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/reflex-iq/internal/perfects"
	"github.com/MJE43/reflex-iq/internal/store"
	"github.com/MJE43/reflex-iq/internal/zkvm"
)

const requestTimeout = 60 * time.Second

// Server handles HTTP requests
type Server struct {
	db           store.DB
	prover       *zkvm.Prover
	verifier     *zkvm.Verifier
	classifier   *perfects.Classifier
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time
}

// NewServer creates a new API server. classifier may be nil, in which case
// requests carrying targets_ms are rejected and total_perfects is taken as
// reported.
func NewServer(db store.DB, prover *zkvm.Prover, classifier *perfects.Classifier) *Server {
	logger := log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)

	s := &Server{
		db:           db,
		prover:       prover,
		verifier:     prover.Verifier(),
		classifier:   classifier,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		startTime:    time.Now(),
	}

	logger.Printf("server_init engine_version=%s image_id=%s classifier=%t database=%t",
		EngineVersion, prover.ImageID(), classifier != nil, db != nil)
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/prove-score", s.handleProveScore)
		r.Post("/verify", s.handleVerify)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/spawns", s.handleSpawns)
		r.Get("/version", s.handleVersion)
	})

	// The game client posts here directly.
	r.Post("/prove-score", s.handleProveScore)

	return r
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed error=%v", err)
	}
}

// writeError writes a structured error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string, context map[string]any) {
	eb := NewError(errType, message)
	for k, v := range context {
		eb.WithContext(k, v)
	}
	s.errorHandler.Handle(w, r, status, eb.Build())
}
