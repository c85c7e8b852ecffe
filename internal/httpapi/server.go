// Package httpapi is the thin HTTP boundary over the ingestion and retrieval
// core. Authentication lives in front of this server; the user id arrives in
// the X-User-ID header set by that layer.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bull/voicekb/internal/catalog"
	"github.com/bull/voicekb/internal/ingest"
	"github.com/bull/voicekb/internal/realtime"
	"github.com/bull/voicekb/internal/retrieval"
	"github.com/bull/voicekb/internal/session"
	"github.com/bull/voicekb/internal/store"
)

const userHeader = "X-User-ID"

// Server wires the HTTP boundary to the core components.
type Server struct {
	pipeline  *ingest.Pipeline
	retrieval *retrieval.Service
	catalog   *catalog.Catalog
	store     store.Store
	sessions  *session.Manager
	realtime  *realtime.Client
	rtConfig  realtime.SessionConfig
	logger    *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Pipeline       *ingest.Pipeline
	Retrieval      *retrieval.Service
	Catalog        *catalog.Catalog
	Store          store.Store
	Sessions       *session.Manager
	Realtime       *realtime.Client
	RealtimeConfig realtime.SessionConfig
	Logger         *slog.Logger
}

// NewServer creates the HTTP boundary server.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline:  cfg.Pipeline,
		retrieval: cfg.Retrieval,
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		sessions:  cfg.Sessions,
		realtime:  cfg.Realtime,
		rtConfig:  cfg.RealtimeConfig,
		logger:    logger,
	}
}

// Routes returns the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.requireUser(s.handleUpload))
	mux.HandleFunc("POST /query", s.requireUser(s.handleQuery))
	mux.HandleFunc("GET /files", s.requireUser(s.handleFiles))
	mux.HandleFunc("DELETE /reset-knowledge-base", s.requireUser(s.handleReset))
	mux.HandleFunc("GET /session", s.requireUser(s.handleRealtimeSession))
	mux.HandleFunc("POST /sessions", s.requireUser(s.handleOpenSession))
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("GET /health", NewHealthHandler(s.store))
	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		next(w, r, userID)
	}
}

type uploadResponse struct {
	Message   string           `json:"message"`
	Indexed   int              `json:"indexed"`
	Skipped   int              `json:"skipped"`
	Warnings  []string         `json:"warnings,omitempty"`
	Documents []uploadDocument `json:"documents"`
}

type uploadDocument struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Chunks   int    `json:"chunks"`
	Reason   string `json:"reason,omitempty"`
}

// handleUpload ingests each file of a multipart form independently: one bad
// file never blocks the rest.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, userID string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files in request")
		return
	}

	resp := uploadResponse{}
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			resp.Warnings = append(resp.Warnings, header.Filename+": unreadable upload")
			resp.Skipped++
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			resp.Warnings = append(resp.Warnings, header.Filename+": unreadable upload")
			resp.Skipped++
			continue
		}

		doc, err := s.pipeline.Ingest(r.Context(), userID, header.Filename,
			data, header.Header.Get("Content-Type"))
		if err != nil {
			resp.Warnings = append(resp.Warnings, header.Filename+": "+err.Error())
			resp.Skipped++
			if doc != nil {
				resp.Documents = append(resp.Documents, toUploadDocument(doc))
			}
			continue
		}
		resp.Indexed++
		resp.Documents = append(resp.Documents, toUploadDocument(doc))
	}

	resp.Message = "upload processed"
	writeJSON(w, http.StatusOK, resp)
}

func toUploadDocument(doc *catalog.Document) uploadDocument {
	return uploadDocument{
		ID:       doc.ID,
		Filename: doc.Filename,
		Status:   string(doc.Status),
		Chunks:   doc.ChunkCount,
		Reason:   doc.Reason,
	}
}

type queryRequest struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, userID string) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.retrieval.Search(r.Context(), userID, req.Query, req.NResults)
	if err != nil {
		if errors.Is(err, retrieval.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request, userID string) {
	docs, err := s.catalog.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list files")
		return
	}
	filenames := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Status == catalog.StatusIndexed {
			filenames = append(filenames, doc.Filename)
		}
	}
	writeJSON(w, http.StatusOK, filenames)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.store.Drop(r.Context(), userID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "could not reset knowledge base")
		return
	}
	if err := s.catalog.DeleteByUser(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "could not reset document records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "knowledge base reset"})
}

func (s *Server) handleRealtimeSession(w http.ResponseWriter, r *http.Request, userID string) {
	secret, err := s.realtime.CreateSession(r.Context(), s.rtConfig)
	if err != nil {
		s.logger.Warn("realtime session mint failed", "user", userID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create realtime session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_secret": secret.Value,
		"expires_at":    secret.ExpiresAt,
	})
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request, userID string) {
	sess := s.sessions.Open(userID)
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"state":      sess.State().String(),
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Close(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"message": "session closed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
