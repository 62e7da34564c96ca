package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/match-control-backend/internal/hub"
	"github.com/DoyleJ11/match-control-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Hub    *hub.Hub
	States HistoryReader // nil without a database
	WS     ws.Config
	Log    *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.WS, d.Log))
	r.Get("/events", ListEvents(d.Hub))
	r.Post("/events", CreateEvent(d.Hub, d.Log))
	r.Get("/events/{id}", EventInfo(d.Hub))
	r.Delete("/events/{id}", EndEvent(d.Hub, d.Log))
	r.Get("/events/{id}/state", EventState(d.States, d.Log))
	r.Get("/events/{id}/history", EventHistory(d.States, d.Log))
	return r
}
