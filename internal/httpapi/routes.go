package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/battle"
	"github.com/avelius/pokebattle-backend/internal/room"
	"github.com/avelius/pokebattle-backend/internal/ws"
)

func SetupRoutes(registry *battle.Registry, rooms *room.Manager, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(rooms, log))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(registry, rooms, log))
	return r
}
