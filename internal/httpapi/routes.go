package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/therebelliongame/backend/internal/config"
	"github.com/therebelliongame/backend/internal/game"
	"github.com/therebelliongame/backend/internal/hub"
	"github.com/therebelliongame/backend/internal/store"
	"github.com/therebelliongame/backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, cfg config.Config, players store.Players, log *zap.Logger) http.Handler {
	defaults := game.Options{
		Capacity:      cfg.DefaultCapacity,
		SelectionSecs: cfg.DefaultSelectionSecs,
	}

	r := chi.NewRouter()
	r.Post("/rooms", CreateRoom(h, defaults, log))
	r.Get("/rooms/random", RandomJoin(h))
	r.Get("/rooms/{code}/qr", RoomQR(h, cfg.PublicURL))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, players, log, ws.Options{OriginPatterns: cfg.AllowedOrigins}))
	return r
}
