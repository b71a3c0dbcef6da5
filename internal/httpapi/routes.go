package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/cs-chat-backend/internal/hub"
	"github.com/DoyleJ11/cs-chat-backend/internal/store"
	"github.com/DoyleJ11/cs-chat-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Hub          *hub.Hub
	Store        store.Store
	Log          *zap.Logger
	WS           ws.Options
	HistoryLimit int
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/rooms", CreateRoom(d))
	r.Get("/rooms", ListRooms(d))
	r.Delete("/rooms/{id}", DeleteRoom(d))
	r.Get("/rooms/{id}/messages", History(d))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.WS))
	return r
}
