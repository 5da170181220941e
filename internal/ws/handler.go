package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/therebelliongame/backend/internal/hub"
	"github.com/therebelliongame/backend/internal/room"
	"github.com/therebelliongame/backend/internal/store"
)

// ClientMessage is the single inbound wire format. Type selects the
// interaction; the other fields are validated per type before anything
// reaches the room.
type ClientMessage struct {
	Type     string   `json:"type"`
	Members  []string `json:"members,omitempty"`
	Approve  *bool    `json:"approve,omitempty"`
	Pass     *bool    `json:"pass,omitempty"`
	Text     string   `json:"text,omitempty"`
	Capacity int      `json:"capacity,omitempty"`
	Secs     int      `json:"secs,omitempty"`
	Public   *bool    `json:"public,omitempty"`
}

// Options tunes the handler; zero values are fine for production.
type Options struct {
	OriginPatterns []string
}

// Handler upgrades a connection, binds it to a player identity, and bridges
// the socket to the room inbox. The connection is the identity: the player
// ID minted here is what every later message is attributed to.
func Handler(h *hub.Hub, players store.Players, log *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		name := r.URL.Query().Get("name")
		if code == "" || name == "" {
			http.Error(w, "missing code or name", http.StatusBadRequest)
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		playerID := uuid.NewString()
		out := make(chan room.OutMsg, 16)

		joinReply := make(chan room.JoinResult, 1)
		rm.Inbox() <- room.Join{PlayerID: playerID, Name: name, Outbox: out, Reply: joinReply}
		var joined room.JoinResult
		select {
		case joined = <-joinReply:
		case <-time.After(5 * time.Second):
			return
		}
		if joined.Err != nil {
			writeEvent(r.Context(), conn, room.OutMsg{
				Event:   room.EvtError,
				Payload: room.ErrorPayload{Message: joined.Err.Error()},
			})
			return
		}
		defer func() {
			select {
			case rm.Inbox() <- room.Leave{PlayerID: playerID}:
			case <-time.After(2 * time.Second):
			}
		}()

		if err := players.Save(r.Context(), joined.Name); err != nil {
			log.Warn("saving player name", zap.String("name", joined.Name), zap.Error(err))
		}

		// Writer goroutine: drains the outbox until the room closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				writeEvent(writeCtx, conn, msg)
			}
			// outbox closed: the room dropped us or shut down
			writeCancel()
			conn.Close(websocket.StatusGoingAway, "room closed")
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return // Leave fires via defer
			}

			var cm ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeEvent(r.Context(), conn, errorMsg("bad json"))
				continue
			}

			msg, err := toRoomMsg(playerID, cm)
			if err != nil {
				writeEvent(r.Context(), conn, errorMsg(err.Error()))
				continue
			}
			if _, leaving := msg.(room.Leave); leaving {
				return
			}
			rm.Inbox() <- msg
		}
	}
}

func toRoomMsg(playerID string, cm ClientMessage) (room.Msg, error) {
	switch cm.Type {
	case "start_game":
		return room.StartMatch{PlayerID: playerID}, nil
	case "propose_team":
		if len(cm.Members) == 0 {
			return nil, errors.New("propose_team requires members")
		}
		return room.Propose{PlayerID: playerID, Members: cm.Members}, nil
	case "cast_vote":
		if cm.Approve == nil {
			return nil, errors.New("cast_vote requires approve")
		}
		return room.Vote{PlayerID: playerID, Approve: *cm.Approve}, nil
	case "mission_action":
		if cm.Pass == nil {
			return nil, errors.New("mission_action requires pass")
		}
		return room.MissionAction{PlayerID: playerID, Pass: *cm.Pass}, nil
	case "chat":
		return room.Chat{PlayerID: playerID, Text: cm.Text}, nil
	case "end_match":
		return room.EndMatch{PlayerID: playerID}, nil
	case "set_capacity":
		return room.SetCapacity{PlayerID: playerID, Capacity: cm.Capacity}, nil
	case "set_selection_secs":
		return room.SetSelectionSecs{PlayerID: playerID, Secs: cm.Secs}, nil
	case "set_public":
		if cm.Public == nil {
			return nil, errors.New("set_public requires public")
		}
		return room.SetPublic{PlayerID: playerID, Public: *cm.Public}, nil
	case "leave":
		return room.Leave{PlayerID: playerID}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", cm.Type)
	}
}

func errorMsg(text string) room.OutMsg {
	return room.OutMsg{Event: room.EvtError, Payload: room.ErrorPayload{Message: text}}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, msg room.OutMsg) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
