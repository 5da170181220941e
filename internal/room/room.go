package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/therebelliongame/backend/internal/game"
)

// Event types produced by the room itself rather than the session.
const (
	EvtChat  game.EventType = "chat"
	EvtError game.EventType = "error"
)

const chatLogLimit = 100

// OutMsg is what a connected client receives on its outbox.
type OutMsg struct {
	Event   game.EventType `json:"event"`
	Payload any            `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type ChatPayload struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Time   string `json:"time"`
}

// Room is the single owner of one game session. All mutation happens inside
// its loop goroutine; everything else talks to it through the inbox.
type Room struct {
	code    string
	inbox   chan Msg
	session *game.Session
	clients map[string]chan OutMsg
	chatLog []ChatPayload

	// selection timer; gen invalidates fires from superseded arms
	timer      *time.Timer
	timerGen   uint64
	timerArmed bool

	onEmpty func(code string)
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
}

// New starts the room's loop. onEmpty is called (from the loop goroutine)
// once the roster empties so the registry can evict the code; it must not
// block.
func New(parent context.Context, code string, opts game.Options, log *zap.Logger, onEmpty func(code string)) *Room {
	ctx, cancel := context.WithCancel(parent)
	if onEmpty == nil {
		onEmpty = func(string) {}
	}
	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64),
		session: game.New(code, opts),
		clients: make(map[string]chan OutMsg),
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With(zap.String("room", code)),
	}
	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Inbox is where the transport layer and tests post messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			before := r.session.Phase()
			if done := r.handle(m); done {
				r.shutdown()
				return
			}
			if r.session.Phase() != before {
				r.stopTimer()
			}
			r.syncTimer()
		}
	}
}

// handle processes one message; a true return tears the room down.
func (r *Room) handle(m Msg) bool {
	switch msg := m.(type) {
	case Join:
		r.handleJoin(msg)

	case Leave:
		if ch, ok := r.clients[msg.PlayerID]; ok {
			close(ch)
			delete(r.clients, msg.PlayerID)
		}
		events, empty := r.session.HandleDisconnect(msg.PlayerID)
		r.dispatch(events)
		if empty {
			r.log.Info("roster empty, tearing down")
			r.onEmpty(r.code)
			return true
		}

	case StartMatch:
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.StartMatch(msg.PlayerID) })

	case Propose:
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.ProposeTeam(msg.PlayerID, msg.Members) })

	case Vote:
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.CastVote(msg.PlayerID, msg.Approve) })

	case MissionAction:
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.SubmitMissionAction(msg.PlayerID, msg.Pass) })

	case EndMatch:
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.EndMatch(msg.PlayerID) })

	case SetCapacity:
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.SetCapacity(msg.PlayerID, msg.Capacity) })

	case SetSelectionSecs:
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.SetSelectionSecs(msg.PlayerID, msg.Secs) })

	case SetPublic:
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.SetPublic(msg.PlayerID, msg.Public) })

	case Chat:
		r.handleChat(msg)

	case Joinable:
		msg.Reply <- r.session.Phase() == game.PhaseLobby &&
			r.session.Roster().Len() < r.session.Capacity() &&
			r.session.Public()

	case GetState:
		msg.Reply <- View{
			Phase:       r.session.Phase(),
			Mission:     r.session.Mission(),
			Rejections:  r.session.Rejections(),
			MatchNumber: r.session.MatchNumber(),
			NumClients:  len(r.clients),
			Names:       r.session.Roster().Names(),
		}

	case timerFired:
		if msg.gen != r.timerGen || !r.timerArmed {
			break // superseded arm; drop
		}
		r.timerArmed = false
		r.log.Info("selection timer elapsed, forcing proposal", zap.Int("mission", r.session.Mission()))
		events, err := r.session.ForceProposal()
		if err == nil {
			r.dispatch(events)
		}

	case Shutdown:
		return true
	}
	return false
}

// apply runs one session operation, reporting a failure only to the caller.
func (r *Room) apply(playerID string, op func() ([]game.Event, error)) {
	events, err := op()
	if err != nil {
		r.log.Debug("rejected", zap.String("player", playerID), zap.Error(err))
		r.send(playerID, OutMsg{Event: EvtError, Payload: ErrorPayload{Message: err.Error()}})
		return
	}
	r.dispatch(events)
}

func (r *Room) handleJoin(msg Join) {
	name := r.uniqueName(msg.Name)
	events, err := r.session.Join(msg.PlayerID, name)
	if err != nil {
		msg.Reply <- JoinResult{Err: err}
		return
	}
	r.clients[msg.PlayerID] = msg.Outbox
	msg.Reply <- JoinResult{Name: name}
	for _, entry := range r.chatLog {
		r.send(msg.PlayerID, OutMsg{Event: EvtChat, Payload: entry})
	}
	r.log.Info("player joined", zap.String("player", msg.PlayerID), zap.String("name", name))
	r.dispatch(events)
}

func (r *Room) handleChat(msg Chat) {
	sender, err := r.session.Roster().ByID(msg.PlayerID)
	if err != nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// admin commands typed into the chat box
	if target, ok := strings.CutPrefix(text, "/kick "); ok {
		r.apply(msg.PlayerID, func() ([]game.Event, error) { return r.session.Kick(msg.PlayerID, strings.TrimSpace(target)) })
		return
	}
	if target, ok := strings.CutPrefix(text, "/admin "); ok {
		r.apply(msg.PlayerID, func() ([]game.Event, error) {
			return r.session.TransferAdmin(msg.PlayerID, strings.TrimSpace(target))
		})
		return
	}

	entry := ChatPayload{Sender: sender.Name, Text: text, Time: time.Now().Format("15:04")}
	r.chatLog = append(r.chatLog, entry)
	if len(r.chatLog) > chatLogLimit {
		r.chatLog = r.chatLog[len(r.chatLog)-chatLogLimit:]
	}
	r.broadcast(OutMsg{Event: EvtChat, Payload: entry})
}

// uniqueName suffixes a requested name until it no longer collides with a
// seated player, trimming long names so the suffix fits.
func (r *Room) uniqueName(name string) string {
	if !r.session.Roster().HasName(name) {
		return name
	}
	base := name
	if len(base) > 9 {
		base = base[:9]
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s%d", base, n)
		if !r.session.Roster().HasName(candidate) {
			return candidate
		}
	}
}

/* ----- fan-out ----- */

func (r *Room) dispatch(events []game.Event) {
	for _, ev := range events {
		out := OutMsg{Event: ev.Type, Payload: ev.Payload}
		if ev.To == "" {
			r.broadcast(out)
		} else {
			r.send(ev.To, out)
		}
	}
}

func (r *Room) broadcast(out OutMsg) {
	for id, ch := range r.clients {
		select {
		case ch <- out:
		default:
			// slow or stuck client: drop it rather than stall the room
			r.log.Warn("dropping slow client", zap.String("player", id))
			close(ch)
			delete(r.clients, id)
		}
	}
}

func (r *Room) send(playerID string, out OutMsg) {
	ch, ok := r.clients[playerID]
	if !ok {
		return
	}
	select {
	case ch <- out:
	default:
		r.log.Warn("dropping slow client", zap.String("player", playerID))
		close(ch)
		delete(r.clients, playerID)
	}
}

/* ----- selection timer ----- */

// syncTimer arms the selection countdown whenever the session sits in
// TeamSelect without a live timer. Arms are generation-numbered; stopTimer
// bumps the generation so a fire from a cancelled arm is discarded in the
// loop, and ForceProposal re-checks the phase as the second line of defense.
func (r *Room) syncTimer() {
	inSelect := r.session.Phase() == game.PhaseTeamSelect
	switch {
	case inSelect && !r.timerArmed:
		r.timerGen++
		gen := r.timerGen
		r.timerArmed = true
		d := time.Duration(r.session.SelectionSecs()) * time.Second
		r.timer = time.AfterFunc(d, func() {
			select {
			case r.inbox <- timerFired{gen: gen}:
			case <-r.ctx.Done():
			}
		})
	case !inSelect && r.timerArmed:
		r.stopTimer()
	}
}

func (r *Room) stopTimer() {
	if !r.timerArmed {
		return
	}
	r.timerArmed = false
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *Room) shutdown() {
	r.stopTimer()
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
	r.log.Info("room shut down")
}
