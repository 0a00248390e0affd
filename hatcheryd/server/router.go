package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.MiddlewareLogger)
	r.Get("/version", s.HandlerVersion)
	r.Get("/health", s.HandlerHealth)
	r.Post("/shutdown", s.HandlerShutdown)

	r.Post("/tasks", s.HandlerCreateTask)
	r.Get("/tasks/{id}", s.HandlerGetTask)
	r.Get("/tasks", s.HandlerListTasks)
	r.Get("/tasks/{id}/history", s.HandlerTaskHistory)
	r.Post("/tasks/{id}/cancel", s.HandlerCancelTask)
	r.Delete("/tasks/{id}", s.HandlerDeleteTask)

	r.Post("/triggers", s.HandlerRegisterTrigger)
	r.Delete("/triggers/{taskId}", s.HandlerUnregisterTrigger)
	r.Patch("/triggers/{taskId}", s.HandlerUpdateTrigger)
	r.Get("/triggers", s.HandlerListTriggers)
	r.Get("/triggers/{taskId}/history", s.HandlerTriggerHistory)

	r.Post("/events", s.HandlerIngestEvent)
	return r
}
