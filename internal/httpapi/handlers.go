package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/room"
	"github.com/avelius/pokebattle-backend/internal/types"
)

// CreateRoom allocates a pairing room and returns its 6-character id.
func CreateRoom(rooms *room.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := rooms.CreateRoom()
		if err != nil {
			log.Error("creating room failed", zap.Error(err))
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(types.RoomCreatedPayload{RoomID: id})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
