package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/therebelliongame/backend/internal/game"
	"github.com/therebelliongame/backend/internal/hub"
	"github.com/therebelliongame/backend/internal/room"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createRoomRequest struct {
	Capacity      int  `json:"capacity"`
	SelectionSecs int  `json:"selection_secs"`
	Public        bool `json:"public"`
}

// CreateRoom allocates an unused code and registers a fresh room under it.
// The creator then connects over the websocket like everyone else; the
// first seat becomes admin.
func CreateRoom(h *hub.Hub, defaults game.Options, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := defaults
		var req createRoomRequest
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				if req.Capacity != 0 {
					opts.Capacity = req.Capacity
				}
				if req.SelectionSecs != 0 {
					opts.SelectionSecs = req.SelectionSecs
				}
				opts.Public = req.Public
			}
		}
		if opts.Capacity != 0 && (opts.Capacity < game.MinCapacity || opts.Capacity > game.MaxCapacity) {
			http.Error(w, "capacity out of range", http.StatusBadRequest)
			return
		}

		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan *room.Room, 1)
			h.Inbox() <- hub.GetRoom{Code: c, Reply: reply}
			if <-reply == nil {
				code = c
				break
			}
			log.Debug("room code collision, regenerating", zap.String("code", c))
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.CreateRoom{Code: code, Opts: opts, Reply: reply}
		if <-reply == nil {
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

// RandomJoin picks a public room still gathering players, the "join any
// game" flow. Each candidate is asked over its inbox; a room mid-teardown
// simply fails the deadline and is skipped.
func RandomJoin(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []*room.Room, 1)
		h.Inbox() <- hub.ListRooms{Reply: reply}
		rooms := <-reply

		for _, rm := range rooms {
			ok := make(chan bool, 1)
			select {
			case rm.Inbox() <- room.Joinable{Reply: ok}:
			case <-time.After(100 * time.Millisecond):
				continue
			}
			select {
			case joinable := <-ok:
				if joinable {
					w.Header().Set("Content-Type", "application/json")
					_ = json.NewEncoder(w).Encode(struct {
						Code string `json:"code"`
					}{Code: rm.Code()})
					return
				}
			case <-time.After(100 * time.Millisecond):
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(struct {
			Message string `json:"message"`
		}{Message: "All games are currently full, please try again later"})
	}
}

// RoomQR renders the join link for a room as a PNG QR code.
func RoomQR(h *hub.Hub, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
		if <-reply == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(publicURL+"/join/"+code, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to render qr", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
