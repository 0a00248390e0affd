package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	z "github.com/Oudwins/zog"
	"github.com/go-chi/chi/v5"

	"github.com/hatchery-io/hatchery/internals/schemas"
	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/taskservice"
)

func (s *Server) HandlerCreateTask(w http.ResponseWriter, r *http.Request) {
	var request schemas.TaskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidJson, "Invalid JSON", nil), Render.Status(http.StatusBadRequest))
		return
	}

	if issues := schemas.TaskCreateSchema.Validate(&request); len(issues) > 0 {
		payload := JsonResponseError(JsonResponseErrorCodeValidationFailed, "Schema validation failed", z.Issues.Flatten(issues))
		RenderJSON(w, r, payload, Render.Status(http.StatusBadRequest))
		return
	}

	steps := make([]task.Step, len(request.Steps))
	for i, step := range request.Steps {
		steps[i] = task.Step{
			Name:         step.Name,
			AgentType:    step.AgentType,
			Inputs:       step.Inputs,
			Dependencies: step.Dependencies,
		}
	}

	created, err := s.Base.Tasks.Create(r.Context(), taskservice.NewTaskInput{
		UserID:         request.UserID,
		OrganizationID: request.OrganizationID,
		Goal:           request.Goal,
		Steps:          steps,
		ParentTaskID:   request.ParentTaskID,
		TreeID:         request.TreeID,
		Metadata:       request.Metadata,
	})
	if err != nil {
		var vErr *task.ValidationError
		if errors.As(err, &vErr) {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, vErr.Error(), nil), Render.Status(http.StatusBadRequest))
			return
		}
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to create task", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, schemas.TaskResponse{Task: created}, Render.Status(http.StatusCreated))
}

func (s *Server) HandlerGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "task id is required", nil), Render.Status(http.StatusBadRequest))
		return
	}

	found, err := s.Base.Tasks.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, "task not found", nil), Render.Status(http.StatusNotFound))
			return
		}
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to read task", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, schemas.TaskResponse{Task: found})
}

func (s *Server) HandlerListTasks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	rawStatus := r.URL.Query().Get("status")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "limit must be a positive integer", nil), Render.Status(http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	var status *task.Status
	if rawStatus != "" {
		parsed, err := task.ParseStatus(rawStatus)
		if err != nil {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "unknown status", nil), Render.Status(http.StatusBadRequest))
			return
		}
		status = &parsed
	}

	var tasks []*task.Task
	var err error
	switch {
	case userID != "":
		tasks, err = s.Base.Tasks.ListByUser(r.Context(), userID, status, limit)
	case status != nil:
		tasks, err = s.Base.Tasks.ListByStatus(r.Context(), *status, limit)
	default:
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "user_id or status is required", nil), Render.Status(http.StatusBadRequest))
		return
	}
	if err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to list tasks", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, schemas.TaskListResponse{Tasks: tasks})
}

func (s *Server) HandlerTaskHistory(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	chain, err := s.Base.Tasks.History(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, "task not found", nil), Render.Status(http.StatusNotFound))
			return
		}
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to read task history", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, schemas.TaskHistoryResponse{Tasks: chain})
}

func (s *Server) HandlerCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	cancelled, err := s.Base.Tasks.Cancel(r.Context(), taskID)
	if err != nil {
		var transitionErr *task.InvalidTransitionError
		switch {
		case errors.Is(err, task.ErrTaskNotFound):
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, "task not found", nil), Render.Status(http.StatusNotFound))
		case errors.As(err, &transitionErr):
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeConflict, transitionErr.Error(), nil), Render.Status(http.StatusConflict))
		default:
			RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to cancel task", nil), Render.Status(http.StatusInternalServerError))
		}
		return
	}

	RenderJSON(w, r, schemas.TaskResponse{Task: cancelled})
}

func (s *Server) HandlerDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	if err := s.Base.Tasks.Delete(r.Context(), taskID); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, "task not found", nil), Render.Status(http.StatusNotFound))
			return
		}
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to delete task", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, map[string]any{"status": JsonResponseStatusSuccess})
}
