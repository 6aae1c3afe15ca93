package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/battle"
	"github.com/avelius/pokebattle-backend/internal/protocol"
	"github.com/avelius/pokebattle-backend/internal/types"
)

// ManagerConfig tunes room lifecycle timing.
type ManagerConfig struct {
	// UnclaimedTimeout tears a room down if nobody ever joins it.
	UnclaimedTimeout time.Duration
	// WaitingTTL is how long a room may sit in waiting before the
	// sweep evicts it.
	WaitingTTL time.Duration
	// SweepInterval is the eviction sweep period.
	SweepInterval time.Duration
}

// DefaultManagerConfig matches the documented lifecycle: a 10-minute
// unclaimed timer, 30-minute waiting eviction, 60-second sweep.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		UnclaimedTimeout: 10 * time.Minute,
		WaitingTTL:       30 * time.Minute,
		SweepInterval:    time.Minute,
	}
}

// JoinResult reports a successful join.
type JoinResult struct {
	RoomID string
	Side   protocol.Side
}

type managerMsg interface{ isManagerMsg() }

type createMsg struct{ reply chan createResult }

type createResult struct {
	id  string
	err error
}
type joinMsg struct {
	id     string
	outbox chan []byte
	reply  chan *JoinResult
}
type setTeamMsg struct {
	id     string
	side   protocol.Side
	format string
	team   json.RawMessage
	reply  chan bool
}
type leaveMsg struct {
	id   string
	side protocol.Side
}
type unclaimedMsg struct{ id string }
type sessionEndedMsg struct{ roomID string }
type shutdownMsg struct{ reply chan struct{} }

func (createMsg) isManagerMsg()       {}
func (joinMsg) isManagerMsg()         {}
func (setTeamMsg) isManagerMsg()      {}
func (leaveMsg) isManagerMsg()        {}
func (unclaimedMsg) isManagerMsg()    {}
func (sessionEndedMsg) isManagerMsg() {}
func (shutdownMsg) isManagerMsg()     {}

// Manager owns the set of live rooms. All room mutation happens on its
// loop; public methods post messages and wait on reply channels.
type Manager struct {
	inbox    chan managerMsg
	rooms    map[string]*Room
	registry *battle.Registry
	cfg      ManagerConfig
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewManager(parent context.Context, registry *battle.Registry, cfg ManagerConfig, log *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		inbox:    make(chan managerMsg, 64),
		rooms:    make(map[string]*Room),
		registry: registry,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go m.loop()
	return m
}

// CreateRoom allocates a room with a fresh 6-character code.
func (m *Manager) CreateRoom() (string, error) {
	reply := make(chan createResult, 1)
	select {
	case m.inbox <- createMsg{reply: reply}:
	case <-m.ctx.Done():
		return "", m.ctx.Err()
	}
	select {
	case res := <-reply:
		return res.id, res.err
	case <-m.ctx.Done():
		return "", m.ctx.Err()
	}
}

// Join binds a connection to the open side of a room. Nil when the
// room does not exist, is not waiting, or is full.
func (m *Manager) Join(id string, outbox chan []byte) *JoinResult {
	reply := make(chan *JoinResult, 1)
	m.inbox <- joinMsg{id: id, outbox: outbox, reply: reply}
	return <-reply
}

// SetTeam submits a side's team; a completed pairing starts the battle.
func (m *Manager) SetTeam(id string, side protocol.Side, format string, team json.RawMessage) bool {
	reply := make(chan bool, 1)
	m.inbox <- setTeamMsg{id: id, side: side, format: format, team: team, reply: reply}
	return <-reply
}

// Leave detaches a side from a still-waiting room.
func (m *Manager) Leave(id string, side protocol.Side) {
	m.inbox <- leaveMsg{id: id, side: side}
}

// SessionEnded is posted by the session observer once a battle ends.
func (m *Manager) SessionEnded(roomID string) {
	select {
	case m.inbox <- sessionEndedMsg{roomID: roomID}:
	case <-m.ctx.Done():
	}
}

// Shutdown stops the loop and closes every room.
func (m *Manager) Shutdown() {
	reply := make(chan struct{})
	m.inbox <- shutdownMsg{reply: reply}
	<-reply
}

func (m *Manager) loop() {
	sweep := time.NewTicker(m.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.closeAll("shutdown")
			return

		case <-sweep.C:
			m.sweep()

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case createMsg:
				id, err := m.create()
				msg.reply <- createResult{id: id, err: err}

			case joinMsg:
				msg.reply <- m.join(msg.id, msg.outbox)

			case setTeamMsg:
				msg.reply <- m.setTeam(msg)

			case leaveMsg:
				if r, ok := m.rooms[msg.id]; ok && r.Status() == StatusWaiting {
					r.RemovePlayer(msg.side)
				}

			case unclaimedMsg:
				if r, ok := m.rooms[msg.id]; ok && r.Status() == StatusWaiting {
					m.close(r, "timeout")
				}

			case sessionEndedMsg:
				if r, ok := m.rooms[msg.roomID]; ok {
					r.Advance(StatusEnded)
					delete(m.rooms, msg.roomID)
				}

			case shutdownMsg:
				m.closeAll("shutdown")
				m.cancel()
				close(msg.reply)
				return
			}
		}
	}
}

func (m *Manager) create() (string, error) {
	var id string
	for {
		code, err := GenerateCode()
		if err != nil {
			return "", fmt.Errorf("generating room code: %w", err)
		}
		if _, taken := m.rooms[code]; !taken {
			id = code
			break
		}
		m.log.Debug("room code collision, regenerating")
	}

	r := New(id, m.log)
	r.ArmUnclaimed(m.cfg.UnclaimedTimeout, func() {
		select {
		case m.inbox <- unclaimedMsg{id: id}:
		case <-m.ctx.Done():
		}
	})
	m.rooms[id] = r
	m.log.Info("room created", zap.String("room", id))
	return id, nil
}

func (m *Manager) join(id string, outbox chan []byte) *JoinResult {
	r, ok := m.rooms[id]
	if !ok || r.Status() != StatusWaiting {
		return nil
	}
	side, open := r.OpenSide()
	if !open {
		return nil
	}
	if !r.AddPlayer(side, outbox) {
		return nil
	}
	if _, stillOpen := r.OpenSide(); !stillOpen {
		// Second side arrived; the room is claimed.
		r.DisarmUnclaimed()
	}

	r.Broadcast(types.Notice("room-joined", types.RoomJoinedPayload{
		RoomID: id,
		Side:   string(side),
	}))
	return &JoinResult{RoomID: id, Side: side}
}

func (m *Manager) setTeam(msg setTeamMsg) bool {
	r, ok := m.rooms[msg.id]
	if !ok {
		return false
	}
	if !r.SetTeam(msg.side, msg.team) {
		return false
	}
	if msg.format != "" {
		r.Format = msg.format
	}
	if r.IsReady() {
		r.Advance(StatusReady)
		m.startBattle(r)
	}
	return true
}

// startBattle hands the paired room to the session registry. A session
// that cannot be created fails this room only.
func (m *Manager) startBattle(r *Room) {
	teamA, teamB := r.Team(protocol.SideP1), r.Team(protocol.SideP2)
	p1Out, p2Out := r.ReleaseConnections()

	roomID := r.ID
	observer := func(ev battle.SessionEvent) error {
		if ev.Kind == battle.SessionEnded {
			m.SessionEnded(roomID)
		}
		return nil
	}

	_, err := m.registry.StartPVP(m.ctx, roomID, r.Format, teamA, teamB, p1Out, p2Out, observer)
	if err != nil {
		m.log.Error("starting battle failed", zap.String("room", roomID), zap.Error(err))
		// The session never owned the transports; tell both sides.
		for _, out := range []chan []byte{p1Out, p2Out} {
			if out != nil {
				select {
				case out <- types.ErrorMessage("battle could not be started"):
				default:
				}
				close(out)
			}
		}
		delete(m.rooms, roomID)
		return
	}
	r.Advance(StatusBattling)
}

// sweep evicts rooms still waiting past the TTL, with a closure notice.
func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.cfg.WaitingTTL)
	for _, r := range m.rooms {
		if r.Status() == StatusWaiting && r.CreatedAt.Before(cutoff) {
			m.close(r, "timeout")
		}
	}
}

func (m *Manager) close(r *Room, reason string) {
	r.Broadcast(types.Notice("room-closed", types.RoomClosedPayload{
		RoomID: r.ID,
		Reason: reason,
	}))
	r.DisarmUnclaimed()
	r.Advance(StatusEnded)
	for _, side := range []protocol.Side{protocol.SideP1, protocol.SideP2} {
		r.RemovePlayer(side)
	}
	delete(m.rooms, r.ID)
	m.log.Info("room closed", zap.String("room", r.ID), zap.String("reason", reason))
}

func (m *Manager) closeAll(reason string) {
	for _, r := range m.rooms {
		m.close(r, reason)
	}
}
