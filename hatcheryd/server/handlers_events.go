package server

import (
	"encoding/json"
	"net/http"

	z "github.com/Oudwins/zog"

	"github.com/hatchery-io/hatchery/internals/events"
	"github.com/hatchery-io/hatchery/internals/schemas"
)

func (s *Server) HandlerIngestEvent(w http.ResponseWriter, r *http.Request) {
	var request schemas.EventIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidJson, "Invalid JSON", nil), Render.Status(http.StatusBadRequest))
		return
	}

	if issues := schemas.EventIngestSchema.Validate(&request); len(issues) > 0 {
		payload := JsonResponseError(JsonResponseErrorCodeValidationFailed, "Schema validation failed", z.Issues.Flatten(issues))
		RenderJSON(w, r, payload, Render.Status(http.StatusBadRequest))
		return
	}

	ev := events.New(request.Source, request.EventType, request.Data)
	if len(request.Metadata) > 0 {
		ev.Metadata = request.Metadata
	}
	if request.OrganizationID != "" {
		if ev.Metadata == nil {
			ev.Metadata = map[string]any{}
		}
		ev.Metadata["organization_id"] = request.OrganizationID
	}

	fired, err := s.Base.Dispatcher.HandleEvent(r.Context(), ev)
	if err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, "Failed to dispatch event", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	RenderJSON(w, r, schemas.EventIngestResponse{EventID: ev.ID, TasksFired: fired}, Render.Status(http.StatusAccepted))
}
