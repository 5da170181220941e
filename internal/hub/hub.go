package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/therebelliongame/backend/internal/game"
	"github.com/therebelliongame/backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom registers a room under a fresh code. An existing room under
// the same code is returned instead, so creation is idempotent per code.
type CreateRoom struct {
	Code  string
	Opts  game.Options
	Reply chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// RemoveRoom evicts a code. Safe to post twice; rooms post it themselves
// once their roster empties.
type RemoveRoom struct {
	Code string
}

// ListRooms snapshots the current rooms for the discovery endpoints.
type ListRooms struct {
	Reply chan []*room.Room
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// Hub is the registry actor: the only state shared across rooms is the
// code-to-room map, and only this loop touches it.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := room.New(h.ctx, msg.Code, msg.Opts, h.log, h.evict)
				h.rooms[msg.Code] = rm
				h.log.Info("room created", zap.String("room", msg.Code))
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case RemoveRoom:
				if _, ok := h.rooms[msg.Code]; ok {
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code))
				}

			case ListRooms:
				list := make([]*room.Room, 0, len(h.rooms))
				for _, rm := range h.rooms {
					list = append(list, rm)
				}
				msg.Reply <- list

			case ShutdownHub:
				for _, rm := range h.rooms {
					rm.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

// evict is handed to each room as its onEmpty callback. It runs on the
// room's goroutine, so it only posts; the map mutation stays in the loop.
func (h *Hub) evict(code string) {
	select {
	case h.inbox <- RemoveRoom{Code: code}:
	case <-h.ctx.Done():
	}
}
