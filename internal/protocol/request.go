package protocol

import "encoding/json"

// Request is the engine's structured description of the decisions
// currently legal for one side. A side holds at most one outstanding
// Request; a newer one supersedes it.
type Request struct {
	TeamPreview bool            `json:"teamPreview,omitempty"`
	Wait        bool            `json:"wait,omitempty"`
	ForceSwitch []bool          `json:"forceSwitch,omitempty"`
	Active      []ActiveOptions `json:"active,omitempty"`
	Side        RequestSide     `json:"side"`
	RQID        int             `json:"rqid,omitempty"`
}

// ForcedSwitch reports whether the request demands a switch for the
// lead position rather than offering moves.
func (r *Request) ForcedSwitch() bool {
	return len(r.ForceSwitch) > 0 && r.ForceSwitch[0]
}

// ActiveOptions lists the move options for one active position.
type ActiveOptions struct {
	Moves   []MoveOption `json:"moves"`
	Trapped bool         `json:"trapped,omitempty"`
}

// MoveOption is one selectable move. The simulator's raw request only
// carries identity and PP; the fields after Disabled are dex enrichment
// and default to neutral values when absent.
type MoveOption struct {
	Move     string `json:"move"`
	ID       string `json:"id"`
	PP       int    `json:"pp"`
	MaxPP    int    `json:"maxpp"`
	Target   string `json:"target,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`

	Type      string    `json:"type,omitempty"`
	Category  string    `json:"category,omitempty"`
	BasePower int       `json:"basePower,omitempty"`
	Accuracy  int       `json:"accuracy,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	Flags     MoveFlags `json:"flags,omitempty"`
}

// MoveFlags are coarse behavior markers consumed by move scoring.
type MoveFlags struct {
	Recoil       bool `json:"recoil,omitempty"`
	SelfDestruct bool `json:"selfdestruct,omitempty"`
	Heal         bool `json:"heal,omitempty"`
	MultiHit     bool `json:"multihit,omitempty"`
	Status       bool `json:"status,omitempty"`
	Boost        bool `json:"boost,omitempty"`
	Field        bool `json:"field,omitempty"`
}

// RequestSide is the requesting side's own view of its team.
type RequestSide struct {
	Name    string        `json:"name"`
	ID      string        `json:"id"`
	Pokemon []SidePokemon `json:"pokemon"`
}

// SidePokemon is one team member as seen by its own side.
type SidePokemon struct {
	Ident     string         `json:"ident"`
	Details   string         `json:"details"`
	Condition string         `json:"condition"`
	Active    bool           `json:"active"`
	Stats     map[string]int `json:"stats,omitempty"`
	Moves     []string       `json:"moves,omitempty"`
	Types     []string       `json:"types,omitempty"`
	Item      string         `json:"item,omitempty"`
	Ability   string         `json:"ability,omitempty"`
	Boosts    map[string]int `json:"boosts,omitempty"`
}

// DecodeRequest parses the JSON body of a |request| event.
func DecodeRequest(body string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return nil, err
	}
	return &req, nil
}
