package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/shotlist/shotlist/analysis"
	"github.com/shotlist/shotlist/pkg/slogx"
	"github.com/shotlist/shotlist/store"
)

type streamRequest struct {
	VideoURL       string `json:"video_url"`
	ModelID        string `json:"model_id"`
	Prompt         string `json:"prompt,omitempty"`
	EnableThinking bool   `json:"enable_thinking,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var body streamRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "malformed request body")
		return
	}
	if body.VideoURL == "" || body.ModelID == "" {
		respondError(w, http.StatusUnprocessableEntity, "video_url and model_id are required")
		return
	}

	stream, err := s.analyzer.Analyze(r.Context(), analysis.AnalyzeRequest{
		OwnerID:  owner(r),
		ModelID:  body.ModelID,
		VideoURL: body.VideoURL,
		Prompt:   body.Prompt,
		Thinking: body.EnableThinking,
	})
	if err != nil {
		s.respondAnalyzeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame := range stream.Events {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) respondAnalyzeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analysis.ErrInsufficientCredits):
		respondError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, analysis.ErrModelNotFound), errors.Is(err, analysis.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, analysis.ErrMissingCredential):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.ErrorContext(r.Context(), "analysis request failed", slogx.Error(err))
		respondError(w, http.StatusInternalServerError, "analysis failed to start")
	}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tasks, err := s.analyzer.Tasks(r.Context(), owner(r), limit, offset)
	if err != nil {
		s.log.ErrorContext(r.Context(), "list tasks failed", slogx.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, newTaskView(task))
	}
	respond(w, http.StatusOK, map[string]any{"tasks": views})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	task, err := s.analyzer.Task(r.Context(), owner(r), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "task not found")
			return
		}
		s.log.ErrorContext(r.Context(), "get task failed", slogx.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	respond(w, http.StatusOK, newTaskView(*task))
}

func (s *Server) handleReap(w http.ResponseWriter, r *http.Request) {
	report, err := s.reaper.Run(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "reap failed", slogx.Error(err))
		respondError(w, http.StatusInternalServerError, "reap failed")
		return
	}
	respond(w, http.StatusOK, report)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")
	if modelID == "" {
		respondError(w, http.StatusUnprocessableEntity, "model id is required")
		return
	}
	s.analyzer.InvalidateModel(modelID)
	respond(w, http.StatusOK, map[string]string{"invalidated": modelID})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type taskView struct {
	ID              uuid.UUID       `json:"id"`
	VideoURL        string          `json:"video_url"`
	ModelID         string          `json:"model_id"`
	ThinkingEnabled bool            `json:"thinking_enabled"`
	Status          string          `json:"status"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	CreditsCharged  int             `json:"credits_charged"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

func newTaskView(task store.AnalysisTask) taskView {
	return taskView{
		ID:              task.ID,
		VideoURL:        task.VideoURL,
		ModelID:         task.ModelID,
		ThinkingEnabled: task.ThinkingEnabled,
		Status:          string(task.Status),
		Result:          task.Result,
		ErrorMessage:    task.ErrorMessage,
		CreditsCharged:  task.CreditsCharged,
		CreatedAt:       task.CreatedAt,
		StartedAt:       task.StartedAt,
		CompletedAt:     task.CompletedAt,
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}
