package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/ai"
	"github.com/avelius/pokebattle-backend/internal/engine"
	"github.com/avelius/pokebattle-backend/internal/protocol"
	"github.com/avelius/pokebattle-backend/internal/types"
)

// State is the session lifecycle. Transitions are strictly forward.
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateEnded        State = "ended"
)

// SessionEventKind tags lifecycle notifications.
type SessionEventKind string

const (
	SessionStarted SessionEventKind = "started"
	SessionEnded   SessionEventKind = "ended"
)

// SessionEvent is handed to every registered observer, in registration
// order, synchronously on the session loop. Observer failures are
// logged and never interrupt the remaining observers.
type SessionEvent struct {
	Kind      SessionEventKind
	SessionID string
	RoomID    string
	Winner    string
}

type Observer func(SessionEvent) error

var ErrNoHumanSide = errors.New("battle: at least one side must be human")

// SlotSpec configures one side at session creation.
type SlotSpec struct {
	Name       string
	Human      bool
	Difficulty int         // AI sides only
	Outbox     chan []byte // optional initial transport
}

// SessionOptions parameterizes NewSession.
type SessionOptions struct {
	ID             string
	RoomID         string
	Format         string
	Engine         engine.Engine
	P1, P2         SlotSpec
	PreviewTimeout time.Duration
	AIDeps         ai.Deps
	Observers      []Observer
	Log            *zap.Logger
}

type slot struct {
	side      protocol.Side
	handler   ChoiceHandler
	aiHandler *AIHandler
	profile   *AIProfile
	outbox    chan []byte
}

// Session owns one battle: the engine handle, two choice handlers and
// the router. All state is mutated from a single loop goroutine fed by
// the inbox; public methods post messages and wait on reply channels.
type Session struct {
	id     string
	roomID string
	format string

	state     State
	eng       engine.Engine
	slots     map[protocol.Side]*slot
	router    *Router
	opponents map[protocol.Side]ai.CombatantSummary
	observers []Observer

	inbox chan sessionMsg
	done  chan struct{}
	log   *zap.Logger
}

type sessionMsg interface{ isSessionMsg() }

type engineEventMsg struct{ ev protocol.Event }
type engineClosedMsg struct{}
type sendChoiceMsg struct {
	side  protocol.Side
	raw   string
	reply chan bool
}
type addConnMsg struct {
	side   protocol.Side
	outbox chan []byte
	reply  chan bool
}
type dropConnMsg struct{ side protocol.Side }
type previewExpiredMsg struct{ side protocol.Side }
type aiDecidedMsg struct {
	side   protocol.Side
	rqid   int
	choice string
}
type cleanupMsg struct{ reply chan struct{} }
type stateQueryMsg struct{ reply chan SessionView }

func (engineEventMsg) isSessionMsg()    {}
func (engineClosedMsg) isSessionMsg()   {}
func (sendChoiceMsg) isSessionMsg()     {}
func (addConnMsg) isSessionMsg()        {}
func (dropConnMsg) isSessionMsg()       {}
func (previewExpiredMsg) isSessionMsg() {}
func (aiDecidedMsg) isSessionMsg()      {}
func (cleanupMsg) isSessionMsg()        {}
func (stateQueryMsg) isSessionMsg()     {}

// SessionView reflects internal state without data races, for tests.
type SessionView struct {
	State       State
	Outstanding map[protocol.Side]bool
}

// NewSession wires handlers and the router around an already-started
// engine handle and begins consuming its stream. Exactly two sides; a
// session with no human side is refused.
func NewSession(opts SessionOptions) (*Session, error) {
	if !opts.P1.Human && !opts.P2.Human {
		return nil, ErrNoHumanSide
	}

	s := &Session{
		id:        opts.ID,
		roomID:    opts.RoomID,
		format:    opts.Format,
		state:     StateInitializing,
		eng:       opts.Engine,
		slots:     make(map[protocol.Side]*slot, 2),
		opponents: make(map[protocol.Side]ai.CombatantSummary, 2),
		observers: opts.Observers,
		inbox:     make(chan sessionMsg, 64),
		done:      make(chan struct{}),
		log:       opts.Log.With(zap.String("session", opts.ID)),
	}

	s.slots[protocol.SideP1] = s.newSlot(protocol.SideP1, opts.P1, opts)
	s.slots[protocol.SideP2] = s.newSlot(protocol.SideP2, opts.P2, opts)
	s.router = NewRouter(s.deliver, s.dispatchRequest, s.log)

	s.state = StateActive
	s.notify(SessionEvent{Kind: SessionStarted, SessionID: s.id, RoomID: s.roomID})

	events := opts.Engine.Events()
	go s.loop()
	go func() {
		for ev := range events {
			s.post(engineEventMsg{ev})
		}
		s.post(engineClosedMsg{})
	}()
	return s, nil
}

func (s *Session) newSlot(side protocol.Side, spec SlotSpec, opts SessionOptions) *slot {
	sl := &slot{side: side, outbox: spec.Outbox}
	if spec.Human {
		sl.handler = NewHumanHandler(side, opts.PreviewTimeout,
			func(choice string) { s.forward(side, choice) },
			func() { s.post(previewExpiredMsg{side}) },
			s.log)
		return sl
	}

	tier := ai.ForDifficulty(spec.Difficulty, opts.AIDeps)
	sl.profile = &AIProfile{Difficulty: spec.Difficulty, Tier: tier}
	aih := NewAIHandler(side, func(req *protocol.Request) {
		// Reading the opponent summary here is safe: launch only runs
		// on the session loop. The tier itself runs off it.
		opp := s.opponents[side.Opponent()]
		go func() {
			choice := tier.Choose(context.Background(), req, opp)
			s.post(aiDecidedMsg{side: side, rqid: req.RQID, choice: choice})
		}()
	})
	sl.aiHandler = aih
	sl.handler = aih
	return sl
}

func (s *Session) ID() string     { return s.id }
func (s *Session) RoomID() string { return s.roomID }

// SendChoice is the only path by which a choice reaches the engine.
// False when the side is unknown, the choice is invalid for the
// outstanding request, or the session has ended.
func (s *Session) SendChoice(side protocol.Side, raw string) bool {
	reply := make(chan bool, 1)
	if !s.post(sendChoiceMsg{side: side, raw: raw, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-s.done:
		return false
	}
}

// AddConnection binds a transport to a side, re-delivering the
// outstanding request so a reconnecting client can resume deciding.
func (s *Session) AddConnection(side protocol.Side, outbox chan []byte) bool {
	reply := make(chan bool, 1)
	if !s.post(addConnMsg{side: side, outbox: outbox, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-s.done:
		return false
	}
}

// DropConnection detaches a side's transport, closing its outbox.
func (s *Session) DropConnection(side protocol.Side) {
	s.post(dropConnMsg{side: side})
}

// Cleanup releases the engine handle and detaches all timers and
// transports. Safe to call multiple times.
func (s *Session) Cleanup() {
	reply := make(chan struct{})
	if s.post(cleanupMsg{reply: reply}) {
		select {
		case <-reply:
		case <-s.done:
		}
	}
}

// View snapshots loop-owned state for tests.
func (s *Session) View() SessionView {
	reply := make(chan SessionView, 1)
	if !s.post(stateQueryMsg{reply: reply}) {
		return SessionView{State: StateEnded}
	}
	select {
	case v := <-reply:
		return v
	case <-s.done:
		return SessionView{State: StateEnded}
	}
}

// post delivers a message unless the loop is gone.
func (s *Session) post(m sessionMsg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

// loop runs until the battle ends, the engine stream closes, or cleanup
// is requested. Every exit path closes done first, so pending and future
// callers degrade to their ended-session answers instead of blocking.
func (s *Session) loop() {
	for m := range s.inbox {
		switch msg := m.(type) {
		case engineEventMsg:
			s.observe(msg.ev)
			s.router.Route(msg.ev)
			if msg.ev.Terminal() {
				winner := ""
				if msg.ev.Verb == protocol.VerbWin && len(msg.ev.Args) > 0 {
					winner = msg.ev.Args[0]
				}
				s.end(winner)
				close(s.done)
				return
			}

		case engineClosedMsg:
			if s.state != StateEnded {
				s.log.Warn("engine stream closed before terminal event")
				s.end("")
			}
			close(s.done)
			return

		case sendChoiceMsg:
			msg.reply <- s.receiveChoice(msg.side, msg.raw)

		case addConnMsg:
			msg.reply <- s.addConnection(msg.side, msg.outbox)

		case dropConnMsg:
			if sl, ok := s.slots[msg.side]; ok && sl.outbox != nil {
				close(sl.outbox)
				sl.outbox = nil
			}

		case previewExpiredMsg:
			if sl, ok := s.slots[msg.side]; ok {
				if h, ok := sl.handler.(*HumanHandler); ok {
					h.ExpirePreview()
				}
			}

		case aiDecidedMsg:
			if sl, ok := s.slots[msg.side]; ok && sl.aiHandler != nil {
				if sl.aiHandler.Decided(msg.rqid) {
					s.forward(msg.side, msg.choice)
				}
			}

		case cleanupMsg:
			s.teardown()
			close(msg.reply)
			close(s.done)
			return

		case stateQueryMsg:
			outstanding := make(map[protocol.Side]bool, 2)
			for side, sl := range s.slots {
				outstanding[side] = sl.handler.Outstanding() != nil
			}
			msg.reply <- SessionView{State: s.state, Outstanding: outstanding}
		}
	}
}

func (s *Session) receiveChoice(side protocol.Side, raw string) bool {
	if s.state != StateActive || s.eng == nil {
		return false
	}
	sl, ok := s.slots[side]
	if !ok {
		return false
	}
	return sl.handler.ReceiveChoice(raw)
}

func (s *Session) addConnection(side protocol.Side, outbox chan []byte) bool {
	if s.state == StateEnded {
		return false
	}
	sl, ok := s.slots[side]
	if !ok {
		return false
	}
	if sl.outbox != nil {
		close(sl.outbox)
	}
	sl.outbox = outbox

	if req := sl.handler.Outstanding(); req != nil {
		if line, err := requestLine(req); err == nil {
			s.send(sl, types.Protocol(line))
		}
	}
	return true
}

// forward writes an accepted choice to the engine.
func (s *Session) forward(side protocol.Side, choice string) {
	if s.state != StateActive || s.eng == nil {
		return
	}
	if err := s.eng.Write(fmt.Sprintf(">%s %s", side, choice)); err != nil {
		s.log.Error("forwarding choice failed",
			zap.String("side", string(side)), zap.Error(err))
	}
}

// deliver pushes one projected event to a side's transport.
func (s *Session) deliver(side protocol.Side, ev protocol.Event) {
	sl := s.slots[side]
	if sl == nil || sl.outbox == nil {
		return
	}
	s.send(sl, types.Protocol(ev.Line()))
}

func (s *Session) send(sl *slot, payload []byte) {
	select {
	case sl.outbox <- payload:
	default:
		// Slow consumer: drop it rather than stall the session.
		s.log.Warn("transport backlogged, detaching", zap.String("side", string(sl.side)))
		close(sl.outbox)
		sl.outbox = nil
	}
}

func (s *Session) dispatchRequest(side protocol.Side, req *protocol.Request) {
	if sl, ok := s.slots[side]; ok {
		sl.handler.HandleRequest(req)
	}
}

// observe keeps a per-side summary of the active combatant so AI tiers
// can reason about the opponent they can legitimately see.
func (s *Session) observe(ev protocol.Event) {
	owner, ok := ev.Subject()
	if !ok {
		return
	}
	switch ev.Verb {
	case protocol.VerbSwitch, protocol.VerbDrag:
		if len(ev.Args) >= 3 {
			frac, _, _ := ai.ParseCondition(ev.Args[2])
			s.opponents[owner] = ai.CombatantSummary{HPFraction: frac}
		}
	case protocol.VerbDamage, protocol.VerbHeal:
		if len(ev.Args) >= 2 {
			sum := s.opponents[owner]
			sum.HPFraction, _, _ = ai.ParseCondition(ev.Args[1])
			s.opponents[owner] = sum
		}
	case protocol.VerbFaint:
		sum := s.opponents[owner]
		sum.HPFraction = 0
		s.opponents[owner] = sum
	}
}

func (s *Session) end(winner string) {
	if s.state == StateEnded {
		return
	}
	s.state = StateEnded
	s.notify(SessionEvent{Kind: SessionEnded, SessionID: s.id, RoomID: s.roomID, Winner: winner})
	s.teardown()
}

// teardown is idempotent: engine handle, timers and transports all go.
func (s *Session) teardown() {
	s.state = StateEnded
	if s.eng != nil {
		if err := s.eng.Close(); err != nil {
			s.log.Warn("closing engine", zap.Error(err))
		}
		s.eng = nil
	}
	for _, sl := range s.slots {
		sl.handler.Stop()
		if sl.outbox != nil {
			close(sl.outbox)
			sl.outbox = nil
		}
	}
}

func (s *Session) notify(ev SessionEvent) {
	for _, obs := range s.observers {
		if err := obs(ev); err != nil {
			s.log.Warn("session observer failed", zap.Error(err))
		}
	}
}

func requestLine(req *protocol.Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return "|request|" + string(body), nil
}
