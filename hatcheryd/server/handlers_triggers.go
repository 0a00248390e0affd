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
	"github.com/hatchery-io/hatchery/internals/triggers"
)

func (s *Server) HandlerRegisterTrigger(w http.ResponseWriter, r *http.Request) {
	var request schemas.TriggerRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidJson, "Invalid JSON", nil), Render.Status(http.StatusBadRequest))
		return
	}

	if issues := schemas.TriggerRegisterSchema.Validate(&request); len(issues) > 0 {
		payload := JsonResponseError(JsonResponseErrorCodeValidationFailed, "Schema validation failed", z.Issues.Flatten(issues))
		RenderJSON(w, r, payload, Render.Status(http.StatusBadRequest))
		return
	}

	enabled := true
	if request.Enabled != nil {
		enabled = *request.Enabled
	}

	cfg := triggers.Config{
		TaskID:         request.TaskID,
		OrganizationID: request.OrganizationID,
		UserID:         request.UserID,
		EventPattern:   request.EventPattern,
		SourceFilter:   request.SourceFilter,
		Enabled:        enabled,
	}

	registered, err := s.Base.Registry.Register(r.Context(), cfg)
	if err != nil {
		var vErr *task.ValidationError
		if errors.As(err, &vErr) {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, vErr.Error(), nil), Render.Status(http.StatusBadRequest))
			return
		}
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to register trigger", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	status := http.StatusOK
	if registered {
		status = http.StatusCreated
	}
	RenderJSON(w, r, schemas.TriggerResponse{Registered: registered, Config: &cfg}, Render.Status(status))
}

func (s *Server) HandlerUnregisterTrigger(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")

	removed, err := s.Base.Registry.Unregister(r.Context(), taskID)
	if err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to unregister trigger", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, schemas.TriggerDeleteResponse{Removed: removed})
}

func (s *Server) HandlerUpdateTrigger(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")

	var request schemas.TriggerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidJson, "Invalid JSON", nil), Render.Status(http.StatusBadRequest))
		return
	}

	if issues := schemas.TriggerUpdateSchema.Validate(&request); len(issues) > 0 {
		payload := JsonResponseError(JsonResponseErrorCodeValidationFailed, "Schema validation failed", z.Issues.Flatten(issues))
		RenderJSON(w, r, payload, Render.Status(http.StatusBadRequest))
		return
	}

	updated, err := s.Base.Registry.Update(r.Context(), taskID, triggers.Updates{
		EventPattern: request.EventPattern,
		SourceFilter: request.SourceFilter,
		Enabled:      request.Enabled,
	})
	if err != nil {
		var vErr *task.ValidationError
		switch {
		case errors.Is(err, task.ErrTriggerNotFound):
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, "trigger not found", nil), Render.Status(http.StatusNotFound))
		case errors.As(err, &vErr):
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, vErr.Error(), nil), Render.Status(http.StatusBadRequest))
		default:
			RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to update trigger", nil), Render.Status(http.StatusInternalServerError))
		}
		return
	}
	if !updated {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, "trigger not found", nil), Render.Status(http.StatusNotFound))
		return
	}

	cfg, err := s.Base.Registry.Get(r.Context(), taskID)
	if err != nil {
		RenderJSON(w, r, schemas.TriggerResponse{Registered: true})
		return
	}
	RenderJSON(w, r, schemas.TriggerResponse{Registered: true, Config: &cfg})
}

func (s *Server) HandlerListTriggers(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "organization_id is required", nil), Render.Status(http.StatusBadRequest))
		return
	}

	configs, err := s.Base.Registry.List(r.Context(), orgID)
	if err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to list triggers", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, schemas.TriggerListResponse{Triggers: configs})
}

func (s *Server) HandlerTriggerHistory(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "limit must be a positive integer", nil), Render.Status(http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	executions, err := s.Base.Registry.History(r.Context(), taskID, limit)
	if err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to read trigger history", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, schemas.TriggerHistoryResponse{Executions: executions})
}
