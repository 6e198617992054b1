// Package api exposes the read side over plain HTTP: derived exam state
// for catch-up refetches and a health endpoint. No business logic lives
// here; handlers delegate to the state machine and serialize.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"examhub/internal/exam"
	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

// Server handles the HTTP read API.
type Server struct {
	machine *exam.Machine
	store   interfaces.SessionStore
	rooms   roomStats
	router  *http.ServeMux
}

// roomStats is what the server actually consumes from the room manager.
type roomStats interface {
	Stats() map[string]int
	ConnectionCount(examID string) int
}

// NewServer wires routes over the state machine and store.
func NewServer(machine *exam.Machine, store interfaces.SessionStore, rooms roomStats) *Server {
	s := &Server{
		machine: machine,
		store:   store,
		rooms:   rooms,
		router:  http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/exams/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleExamByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ExamStateResponse is the full-state payload clients refetch when the
// changes snapshot tells them they are behind.
type ExamStateResponse struct {
	ExamID          string           `json:"exam_id"`
	Status          types.ExamStatus `json:"status"`
	RemainingMs     int64            `json:"remaining_ms"`
	Generation      uint64           `json:"generation"`
	ConnectionCount int              `json:"connection_count"`
	StudentMark     string           `json:"student_mark,omitempty"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Store       string         `json:"store"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleExamByID serves GET /api/exams/{id}. An optional user_id query
// parameter includes that student's per-exam marker.
func (s *Server) handleExamByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/exams/")
	examID := strings.Split(path, "/")[0]
	if !types.IsValidID(examID) {
		s.sendError(w, "Invalid exam ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getExamState(w, r, examID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getExamState(w http.ResponseWriter, r *http.Request, examID string) {
	ds, err := s.machine.DerivedState(r.Context(), examID)
	if err != nil {
		if errors.Is(err, types.ErrStoreUnavailable) {
			s.sendError(w, "Session store unavailable", http.StatusServiceUnavailable)
		} else {
			s.sendError(w, "Failed to read exam state", http.StatusInternalServerError)
		}
		return
	}

	resp := ExamStateResponse{
		ExamID:          ds.ExamID,
		Status:          ds.Status,
		RemainingMs:     ds.RemainingMs,
		Generation:      ds.Generation,
		ConnectionCount: s.rooms.ConnectionCount(examID),
	}

	if userID := r.URL.Query().Get("user_id"); userID != "" && types.IsValidID(userID) {
		mark, err := s.machine.StudentMark(r.Context(), examID, userID)
		if err != nil {
			log.WithFields(log.Fields{"exam": examID, "user": userID}).
				Warnf("failed to read student mark: %v", err)
		} else {
			resp.StudentMark = mark
		}
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warnf("failed to encode exam state response: %v", err)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, storeStatus := "healthy", "healthy"
	if err := s.store.Ping(ctx); err != nil {
		status = "unhealthy"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	resp := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Store:       storeStatus,
		Connections: s.rooms.Stats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
