// Package room pairs two human participants before a battle session
// exists. A room walks waiting → ready → battling → ended, forward
// only, and is owned exclusively by the manager loop.
package room

import (
	"crypto/rand"
	"encoding/json"
	"io"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusBattling Status = "battling"
	StatusEnded    Status = "ended"
)

var statusOrder = map[Status]int{
	StatusWaiting:  0,
	StatusReady:    1,
	StatusBattling: 2,
	StatusEnded:    3,
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeSource is swapped out in tests to exercise generation failures.
var codeSource io.Reader = rand.Reader

// GenerateCode returns a 6-character room id over [A-Z0-9].
func GenerateCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(codeSource, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

// Room holds up to two connections and their submitted teams.
type Room struct {
	ID        string
	Format    string
	CreatedAt time.Time

	status    Status
	conns     map[protocol.Side]chan []byte
	teams     map[protocol.Side]json.RawMessage
	unclaimed *time.Timer
	log       *zap.Logger
}

func New(id string, log *zap.Logger) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		status:    StatusWaiting,
		conns:     make(map[protocol.Side]chan []byte, 2),
		teams:     make(map[protocol.Side]json.RawMessage, 2),
		log:       log.With(zap.String("room", id)),
	}
}

func (r *Room) Status() Status { return r.status }

// Advance moves the status forward. Backward transitions are refused.
func (r *Room) Advance(to Status) bool {
	if statusOrder[to] <= statusOrder[r.status] {
		return false
	}
	r.status = to
	return true
}

// OpenSide returns the side a new participant should take: p1 if
// empty, else p2. False when the room is full.
func (r *Room) OpenSide() (protocol.Side, bool) {
	if r.conns[protocol.SideP1] == nil {
		return protocol.SideP1, true
	}
	if r.conns[protocol.SideP2] == nil {
		return protocol.SideP2, true
	}
	return "", false
}

// AddPlayer binds a connection to side. An occupied side keeps its
// original connection and the call reports false.
func (r *Room) AddPlayer(side protocol.Side, outbox chan []byte) bool {
	if !side.Valid() || r.conns[side] != nil {
		return false
	}
	r.conns[side] = outbox
	return true
}

// RemovePlayer detaches a side, closing its outbox.
func (r *Room) RemovePlayer(side protocol.Side) {
	if out := r.conns[side]; out != nil {
		close(out)
		delete(r.conns, side)
	}
	delete(r.teams, side)
}

// SetTeam records a submitted team for a connected side.
func (r *Room) SetTeam(side protocol.Side, team json.RawMessage) bool {
	if r.conns[side] == nil {
		return false
	}
	r.teams[side] = team
	return true
}

func (r *Room) Team(side protocol.Side) json.RawMessage { return r.teams[side] }

// Connection returns the outbox bound to side, if any.
func (r *Room) Connection(side protocol.Side) chan []byte { return r.conns[side] }

// ReleaseConnections hands both outboxes over to the caller (the
// session about to own them) and forgets them, so the room never
// writes to a channel it no longer owns.
func (r *Room) ReleaseConnections() (p1, p2 chan []byte) {
	p1, p2 = r.conns[protocol.SideP1], r.conns[protocol.SideP2]
	r.conns = make(map[protocol.Side]chan []byte, 2)
	return p1, p2
}

// IsReady reports whether the pairing is complete: both sides
// connected, both teams submitted, and the battle not yet started.
func (r *Room) IsReady() bool {
	if r.status != StatusWaiting && r.status != StatusReady {
		return false
	}
	return r.conns[protocol.SideP1] != nil && r.conns[protocol.SideP2] != nil &&
		r.teams[protocol.SideP1] != nil && r.teams[protocol.SideP2] != nil
}

// Broadcast sends to every connected transport, silently skipping ones
// that cannot take the message. Failures never surface to the caller.
func (r *Room) Broadcast(payload []byte) {
	for side, out := range r.conns {
		select {
		case out <- payload:
		default:
			r.log.Warn("broadcast skipped backlogged connection",
				zap.String("side", string(side)))
		}
	}
}

// ArmUnclaimed starts the unclaimed-room timer; expire must only post
// back onto the manager loop.
func (r *Room) ArmUnclaimed(d time.Duration, expire func()) {
	if d > 0 {
		r.unclaimed = time.AfterFunc(d, expire)
	}
}

// DisarmUnclaimed cancels the unclaimed timer, if armed.
func (r *Room) DisarmUnclaimed() {
	if r.unclaimed != nil {
		r.unclaimed.Stop()
		r.unclaimed = nil
	}
}
