package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/store"
	"github.com/joescharf/reviewd/internal/supervisor"
)

// Server provides the REST API handlers.
type Server struct {
	store store.Store
	sup   *supervisor.Supervisor
}

// NewServer creates a new API server.
func NewServer(s store.Store, sup *supervisor.Supervisor) *Server {
	return &Server{store: s, sup: sup}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/reviews", s.createReview)
	mux.HandleFunc("GET /api/v1/reviews", s.listReviews)
	mux.HandleFunc("GET /api/v1/reviews/{id}", s.getReview)

	mux.HandleFunc("GET /api/v1/standards", s.listStandards)
	mux.HandleFunc("POST /api/v1/standards", s.createStandard)
	mux.HandleFunc("GET /api/v1/standards/{id}", s.getStandard)

	mux.HandleFunc("GET /api/v1/healthz", s.healthz)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Reviews ---

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RepositoryURL == "" {
		writeError(w, http.StatusBadRequest, "repository_url is required")
		return
	}

	rev, err := s.sup.Submit(r.Context(), req)
	if err != nil {
		if rev == nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Launch failure: the record exists and is terminal failed.
		writeJSON(w, http.StatusInternalServerError, rev)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	filter := store.ReviewListFilter{
		Status: models.ReviewStatus(r.URL.Query().Get("status")),
	}
	reviews, err := s.store.ListReviews(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reviews == nil {
		reviews = []*models.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rev, err := s.store.GetReview(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// --- Standards ---

func (s *Server) listStandards(w http.ResponseWriter, r *http.Request) {
	standards, err := s.store.ListStandards(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if standards == nil {
		standards = []*models.Standard{}
	}
	writeJSON(w, http.StatusOK, standards)
}

func (s *Server) createStandard(w http.ResponseWriter, r *http.Request) {
	var std models.Standard
	if err := json.NewDecoder(r.Body).Decode(&std); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if std.Name == "" || std.Text == "" {
		writeError(w, http.StatusBadRequest, "name and text are required")
		return
	}
	if err := s.store.CreateStandard(r.Context(), &std); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, std)
}

func (s *Server) getStandard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	std, err := s.store.GetStandard(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, std)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
