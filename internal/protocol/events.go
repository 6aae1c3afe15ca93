package protocol

import "strings"

// Side identifies one of the two participants in a battle.
type Side string

const (
	SideP1 Side = "p1"
	SideP2 Side = "p2"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideP1 {
		return SideP2
	}
	return SideP1
}

// Valid reports whether s is one of the two canonical sides.
func (s Side) Valid() bool { return s == SideP1 || s == SideP2 }

// ParseSide maps a side token to a Side.
func ParseSide(raw string) (Side, bool) {
	switch raw {
	case "p1":
		return SideP1, true
	case "p2":
		return SideP2, true
	default:
		return "", false
	}
}

// Verb is the closed set of protocol verbs this layer understands.
// Anything else parses to VerbUnrecognized and is passed through untouched.
type Verb string

const (
	VerbRequest     Verb = "request"
	VerbSwitch      Verb = "switch"
	VerbDrag        Verb = "drag"
	VerbPoke        Verb = "poke"
	VerbDamage      Verb = "damage"
	VerbHeal        Verb = "heal"
	VerbTeamPreview Verb = "teampreview"
	VerbStart       Verb = "start"
	VerbMove        Verb = "move"
	VerbFaint       Verb = "faint"
	VerbTurn        Verb = "turn"
	VerbStatus      Verb = "status"
	VerbWin         Verb = "win"
	VerbTie         Verb = "tie"
	VerbError       Verb = "error"

	VerbUnrecognized Verb = "unrecognized"
)

// knownVerbs maps wire tokens to verbs. Minor-action tokens carry a
// leading dash on the wire ("-damage"); both spellings are accepted.
var knownVerbs = map[string]Verb{
	"request":     VerbRequest,
	"switch":      VerbSwitch,
	"drag":        VerbDrag,
	"poke":        VerbPoke,
	"damage":      VerbDamage,
	"heal":        VerbHeal,
	"teampreview": VerbTeamPreview,
	"start":       VerbStart,
	"move":        VerbMove,
	"faint":       VerbFaint,
	"turn":        VerbTurn,
	"status":      VerbStatus,
	"win":         VerbWin,
	"tie":         VerbTie,
	"error":       VerbError,
}

// Event is one line of the engine's stream, parsed once at the boundary.
// Side is set only for side-tagged events (decision requests, errors);
// it is empty for events on the omniscient stream.
type Event struct {
	Verb Verb
	Args []string
	Side Side
	Raw  string
}

// Parse splits a pipe-delimited, verb-first protocol line into an Event.
// Lines that do not start with "|" or whose verb is unknown become
// VerbUnrecognized with Raw preserved verbatim.
func Parse(raw string) Event {
	if !strings.HasPrefix(raw, "|") {
		return Event{Verb: VerbUnrecognized, Raw: raw}
	}
	parts := strings.Split(raw[1:], "|")
	verb, ok := knownVerbs[strings.TrimPrefix(parts[0], "-")]
	if !ok {
		return Event{Verb: VerbUnrecognized, Args: parts[1:], Raw: raw}
	}
	return Event{Verb: verb, Args: parts[1:], Raw: raw}
}

// Line renders the event back to its wire form. Redacted copies are
// re-rendered from Args; untouched events keep their original bytes.
func (e Event) Line() string {
	if e.Verb == VerbUnrecognized {
		return e.Raw
	}
	token := e.Raw
	if i := strings.Index(e.Raw[1:], "|"); i >= 0 {
		token = e.Raw[1 : i+1]
	} else {
		token = e.Raw[1:]
	}
	if len(e.Args) == 0 {
		return "|" + token
	}
	return "|" + token + "|" + strings.Join(e.Args, "|")
}

// Terminal reports whether the event ends the session.
func (e Event) Terminal() bool { return e.Verb == VerbWin || e.Verb == VerbTie }

// Subject returns the side owning the combatant position in the event's
// first argument ("p2a: Garchomp" → p2). False when there is no position.
func (e Event) Subject() (Side, bool) {
	if len(e.Args) == 0 || len(e.Args[0]) < 2 {
		return "", false
	}
	return ParseSide(e.Args[0][:2])
}
