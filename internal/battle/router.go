package battle

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// Router demultiplexes the engine's canonical event stream into two
// per-side projections and dispatches decision requests to the owning
// side's handler. Both projections carry every event in canonical
// order; redaction only blanks or rescales fields, never drops or
// reorders events for one side.
type Router struct {
	deliver func(side protocol.Side, ev protocol.Event)
	handle  func(side protocol.Side, req *protocol.Request)
	log     *zap.Logger
}

func NewRouter(deliver func(protocol.Side, protocol.Event), handle func(protocol.Side, *protocol.Request), log *zap.Logger) *Router {
	return &Router{deliver: deliver, handle: handle, log: log}
}

// Route processes one canonical event.
func (r *Router) Route(ev protocol.Event) {
	for _, side := range []protocol.Side{protocol.SideP1, protocol.SideP2} {
		r.deliver(side, Project(ev, side))
	}

	if ev.Verb == protocol.VerbRequest && ev.Side.Valid() {
		req, err := protocol.DecodeRequest(strings.Join(ev.Args, "|"))
		if err != nil {
			r.log.Warn("malformed decision request",
				zap.String("side", string(ev.Side)), zap.Error(err))
			return
		}
		r.handle(ev.Side, req)
	}
}

// Project returns ev as the given side is allowed to see it.
func Project(ev protocol.Event, viewer protocol.Side) protocol.Event {
	switch ev.Verb {
	case protocol.VerbRequest, protocol.VerbError:
		// Side-tagged events: the other side sees the verb, not the body.
		if ev.Side.Valid() && ev.Side != viewer {
			return blankArgs(ev)
		}
	case protocol.VerbPoke:
		// Roster reveals belong to their own side until team preview
		// resolves them.
		if len(ev.Args) > 0 {
			if owner, ok := protocol.ParseSide(ev.Args[0]); ok && owner != viewer {
				return obscurePoke(ev)
			}
		}
	case protocol.VerbSwitch, protocol.VerbDrag:
		if owner, ok := ev.Subject(); ok && owner != viewer && len(ev.Args) >= 3 {
			return rescaleHP(ev, 2)
		}
	case protocol.VerbDamage, protocol.VerbHeal:
		if owner, ok := ev.Subject(); ok && owner != viewer && len(ev.Args) >= 2 {
			return rescaleHP(ev, 1)
		}
	}
	return ev
}

func blankArgs(ev protocol.Event) protocol.Event {
	out := ev
	out.Args = make([]string, len(ev.Args))
	return out
}

func obscurePoke(ev protocol.Event) protocol.Event {
	out := ev
	out.Args = append([]string(nil), ev.Args...)
	for i := 1; i < len(out.Args); i++ {
		out.Args[i] = "???"
	}
	return out
}

// rescaleHP rewrites the exact HP token at arg index i to a percentage,
// keeping any trailing status tokens. Fainted and unparsable tokens
// pass through unchanged.
func rescaleHP(ev protocol.Event, i int) protocol.Event {
	out := ev
	out.Args = append([]string(nil), ev.Args...)
	out.Args[i] = percentToken(out.Args[i])
	return out
}

func percentToken(token string) string {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return token
	}
	parts := strings.SplitN(fields[0], "/", 2)
	if len(parts) != 2 {
		return token
	}
	cur, err1 := strconv.Atoi(parts[0])
	max, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || max <= 0 {
		return token
	}

	pct := (cur*100 + max - 1) / max // round up so 1 HP never reads as 0
	fields[0] = fmt.Sprintf("%d/100", pct)
	return strings.Join(fields, " ")
}
