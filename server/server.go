package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/poiesic/ragchat/answer"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/memory"
	"github.com/poiesic/ragchat/search"
	"github.com/poiesic/ragchat/storage"
)

// PipelineFactory creates the pipeline of a session around its memory.
type PipelineFactory func(session string, mem *memory.Memory) (*answer.Pipeline, error)

// StatsFunc lists the published indexes.
type StatsFunc func(ctx context.Context) ([]core.IndexManifest, error)

// Server holds the sessions and serves the HTTP API.
type Server struct {
	retriever      answer.Retriever
	factory        PipelineFactory
	stats          StatsFunc
	params         search.Params
	transcripts    storage.TranscriptRepository
	allowedOrigins []string
	logger         *slog.Logger

	mu       sync.Mutex
	sessions map[string]*answer.Pipeline
	deleting map[string]bool
}

// Option configures a Server.
type Option func(*Server) error

// WithStats sets the source of GET /stats.
func WithStats(stats StatsFunc) Option {
	return func(s *Server) error {
		s.stats = stats
		return nil
	}
}

// WithParams sets the default parameters of POST /search.
func WithParams(params search.Params) Option {
	return func(s *Server) error {
		s.params = params
		return nil
	}
}

// WithTranscripts lets sessions unknown to this process be resumed from
// their saved turns.
func WithTranscripts(repo storage.TranscriptRepository) Option {
	return func(s *Server) error {
		s.transcripts = repo
		return nil
	}
}

// WithAllowedOrigins sets the CORS origins. Default allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) error {
		s.allowedOrigins = origins
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a server.
func New(retriever answer.Retriever, factory PipelineFactory, opts ...Option) (*Server, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if factory == nil {
		return nil, ErrFactoryRequired
	}
	s := &Server{
		retriever: retriever,
		factory:   factory,
		params:    search.DefaultParams(),
		sessions:  make(map[string]*answer.Pipeline),
		deleting:  make(map[string]bool),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")
	return s, nil
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.HandleFunc("/sessions", s.handleCreateSession).Methods("POST", "OPTIONS")
	r.HandleFunc("/sessions/{id}/ask", s.handleAsk).Methods("POST", "OPTIONS")
	r.HandleFunc("/sessions/{id}/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/search", s.handleSearch).Methods("POST", "OPTIONS")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/stats", s.handleStats).Methods("GET")

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// session returns the pipeline of id, resuming it from the transcript
// repository when this process has not seen it. The repository is read
// without holding the session lock.
func (s *Server) session(ctx context.Context, id string) (*answer.Pipeline, error) {
	s.mu.Lock()
	p, ok := s.sessions[id]
	deleting := s.deleting[id]
	s.mu.Unlock()

	if ok {
		return p, nil
	}
	if deleting || s.transcripts == nil {
		return nil, ErrSessionNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	turns, err := s.transcripts.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, ErrSessionNotFound
	}
	resumed, err := s.factory(id, memory.Restore(turns))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleting[id] {
		resumed.Close()
		return nil, ErrSessionNotFound
	}
	if p, ok := s.sessions[id]; ok {
		// Another request resumed it first.
		resumed.Close()
		return p, nil
	}
	s.sessions[id] = resumed
	s.logger.Info("resumed session", "session", id, "turns", len(turns))
	return resumed, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	p, err := s.factory(id, memory.New())
	if err != nil {
		s.logger.Error("error creating pipeline", "err", err)
		sendError(w, http.StatusInternalServerError, err)
		return
	}

	s.mu.Lock()
	s.sessions[id] = p
	s.mu.Unlock()

	sendJSON(w, http.StatusCreated, SessionResponse{SessionID: id})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON: " + err.Error()})
		return
	}

	p, err := s.session(r.Context(), id)
	if err != nil {
		sendError(w, statusFor(err), err)
		return
	}

	result, err := p.Ask(r.Context(), req.Question)
	if err != nil {
		sendError(w, statusFor(err), err)
		return
	}

	resp := AskResponse{Answer: result.Answer, Sources: make([]Source, len(result.SourceDocuments))}
	for i, chunk := range result.SourceDocuments {
		resp.Sources[i] = toSource(chunk)
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.session(r.Context(), id)
	if err != nil {
		sendError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, HistoryResponse{SessionID: id, Turns: toTurns(p.Turns())})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	p, known := s.sessions[id]
	delete(s.sessions, id)
	s.deleting[id] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.deleting, id)
		s.mu.Unlock()
	}()

	// Close waits for an Ask in flight, so its turn is saved before the
	// transcript is deleted and cannot bring the session back.
	if known {
		p.Close()
	}

	if s.transcripts != nil {
		if _, err := uuid.Parse(id); err == nil {
			if err := s.transcripts.DeleteSession(r.Context(), id); err != nil {
				sendError(w, http.StatusInternalServerError, err)
				return
			}
			known = true
		}
	}
	if !known {
		sendError(w, http.StatusNotFound, ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON: " + err.Error()})
		return
	}
	if req.Query == "" {
		sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: "query is required"})
		return
	}

	params := s.params
	if req.K > 0 {
		params = params.WithK(req.K)
	}
	if req.Mode != "" {
		mode, err := search.ParseMode(req.Mode)
		if err != nil {
			sendError(w, http.StatusBadRequest, err)
			return
		}
		params = params.WithMode(mode)
	}

	hits, err := s.retriever.RetrieveWithMonitor(r.Context(), req.Query, params, nil)
	if err != nil {
		s.logger.Error("error searching", "err", err)
		sendError(w, http.StatusBadGateway, err)
		return
	}

	resp := SearchResponse{Hits: make([]SearchHit, len(hits))}
	for i, hit := range hits {
		resp.Hits[i] = SearchHit{
			Source:   toSource(hit.Chunk),
			Distance: hit.Distance,
			Verbatim: search.ContainsAllTerms(hit.Chunk.Text, req.Query),
		}
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Indexes: []IndexStats{}}

	s.mu.Lock()
	resp.Sessions = len(s.sessions)
	s.mu.Unlock()

	if s.stats != nil {
		manifests, err := s.stats(r.Context())
		if err != nil {
			sendError(w, http.StatusInternalServerError, err)
			return
		}
		for _, m := range manifests {
			resp.Indexes = append(resp.Indexes, IndexStats{
				Namespace:   m.Namespace,
				Fingerprint: m.Fingerprint.String(),
				Count:       m.Count,
				Version:     m.Version,
				UpdatedAt:   m.UpdatedAt,
			})
		}
	}
	sendJSON(w, http.StatusOK, resp)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, answer.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, answer.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, answer.ErrRetrieval), errors.Is(err, answer.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func sendError(w http.ResponseWriter, status int, err error) {
	sendJSON(w, status, ErrorResponse{Error: err.Error()})
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
