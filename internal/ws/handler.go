// Package ws is the websocket boundary: it decodes the JSON envelope,
// drives room pairing and session creation, and pumps projected battle
// events back to the client.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/battle"
	"github.com/avelius/pokebattle-backend/internal/protocol"
	"github.com/avelius/pokebattle-backend/internal/room"
	"github.com/avelius/pokebattle-backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

// client tracks what this connection is bound to.
type client struct {
	conn     *websocket.Conn
	outbox   chan []byte
	session  *battle.Session
	side     protocol.Side
	roomID   string
	inRoom   bool
	registry *battle.Registry
	rooms    *room.Manager
	log      *zap.Logger
}

func Handler(registry *battle.Registry, rooms *room.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			conn:     conn,
			outbox:   make(chan []byte, outboxSize),
			registry: registry,
			rooms:    rooms,
			log:      log,
		}

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go c.writer(writeCtx)

		c.read(r.Context())
		c.detach()
	}
}

// writer drains the outbox until it is closed by whichever component
// owns it (room, session, or detach).
func (c *client) writer(ctx context.Context) {
	for payload := range c.outbox {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		_ = c.conn.Write(wctx, websocket.MessageText, payload)
		cancel()
	}
}

func (c *client) read(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.reply(types.ErrorMessage("bad json"))
			continue
		}

		switch cm.Type {
		case "start":
			c.handleStart(ctx, cm.Payload)
		case "choose":
			c.handleChoose(cm.Command)
		default:
			c.reply(types.ErrorMessage("unknown type"))
		}
	}
}

func (c *client) handleStart(ctx context.Context, p types.StartPayload) {
	if c.session != nil || c.inRoom {
		c.reply(types.ErrorMessage("already in a battle or room"))
		return
	}

	switch p.Mode {
	case "ai":
		s, err := c.registry.StartAI(ctx, p.FormatID, p.Team, p.Difficulty, c.outbox)
		if err != nil {
			c.log.Error("starting ai session failed", zap.Error(err))
			c.reply(types.ErrorMessage("could not start battle"))
			return
		}
		c.session = s
		c.side = protocol.SideP1

	case "pvp":
		if p.RoomID == "" {
			c.reply(types.ErrorMessage("missing roomId"))
			return
		}
		// A named side means resuming an existing battle.
		if side, ok := protocol.ParseSide(p.Side); ok {
			if s, rebound := c.registry.Reattach(p.RoomID, side, c.outbox); rebound {
				c.session = s
				c.side = side
				c.reply(types.Notice("battle-reconnected", types.ReconnectedPayload{
					Side:    string(side),
					Message: "reconnected to your battle",
				}))
				return
			}
		}

		result := c.rooms.Join(p.RoomID, c.outbox)
		if result == nil {
			c.reply(types.ErrorMessage("room unavailable"))
			return
		}
		c.inRoom = true
		c.roomID = result.RoomID
		c.side = result.Side
		if len(p.Team) > 0 {
			c.rooms.SetTeam(result.RoomID, result.Side, p.FormatID, p.Team)
		}

	default:
		c.reply(types.ErrorMessage("unknown mode"))
	}
}

func (c *client) handleChoose(command string) {
	s := c.session
	if s == nil && c.roomID != "" {
		// The room may have promoted to a battle since we joined.
		if live, ok := c.registry.ByRoom(c.roomID); ok {
			c.session, c.inRoom = live, false
			s = live
		}
	}
	if s == nil {
		c.reply(types.ErrorMessage("no active battle"))
		return
	}
	if !s.SendChoice(c.side, command) {
		c.reply(types.ErrorMessage("choice rejected"))
	}
}

// reply writes straight to the connection: the outbox may already be
// owned (and closed) by a room or session, so it is never reused here.
func (c *client) reply(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_ = c.conn.Write(ctx, websocket.MessageText, payload)
}

// detach returns the outbox to whoever owns it for closing; if nobody
// does, close it here so the writer exits.
func (c *client) detach() {
	switch {
	case c.session != nil:
		c.session.DropConnection(c.side)
	case c.inRoom:
		c.rooms.Leave(c.roomID, c.side)
	default:
		close(c.outbox)
	}
}
