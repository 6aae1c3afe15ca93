package ai

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// Ailment is a major status condition as it appears in condition tokens.
type Ailment string

const (
	AilmentNone      Ailment = ""
	AilmentBurn      Ailment = "brn"
	AilmentParalysis Ailment = "par"
	AilmentSleep     Ailment = "slp"
	AilmentPoison    Ailment = "psn"
	AilmentToxic     Ailment = "tox"
	AilmentFreeze    Ailment = "frz"
)

var ailments = map[string]Ailment{
	"brn": AilmentBurn,
	"par": AilmentParalysis,
	"slp": AilmentSleep,
	"psn": AilmentPoison,
	"tox": AilmentToxic,
	"frz": AilmentFreeze,
}

// Boosts are stat stages relative to neutral. Missing stages are 0.
type Boosts struct {
	Attack         int
	Defense        int
	SpecialAttack  int
	SpecialDefense int
	Speed          int
	Accuracy       int
	Evasion        int
}

// BattleStatus is the analyzer's structured read of one combatant.
type BattleStatus struct {
	HPFraction float64
	Fainted    bool
	Ailment    Ailment
	Boosts     Boosts
	Trapped    bool
	CanAct     bool
}

var (
	fractionHP = regexp.MustCompile(`^(\d+)/(\d+)`)
	percentHP  = regexp.MustCompile(`^(\d+(?:\.\d+)?)%`)
)

// Analyzer converts raw request fields into BattleStatus values. Every
// parse fails open: a malformed token yields a healthy, neutral default
// so one bad field never costs a turn.
type Analyzer struct{}

// Analyze reads one team member plus its active options, when present.
func (Analyzer) Analyze(p protocol.SidePokemon, active *protocol.ActiveOptions) BattleStatus {
	frac, fainted, ailment := ParseCondition(p.Condition)

	st := BattleStatus{
		HPFraction: frac,
		Fainted:    fainted,
		Ailment:    ailment,
		Boosts:     parseBoosts(p.Boosts),
	}
	if active != nil {
		st.Trapped = active.Trapped
	}
	// Sleep does not clear CanAct; the engine owns wake-up timing.
	st.CanAct = !st.Fainted && !st.Trapped
	return st
}

// ParseCondition splits an HP status token like "163/231 par", "0 fnt"
// or "45%" into a fraction, a fainted flag and an ailment. Unparsable
// tokens read as full health.
func ParseCondition(token string) (float64, bool, Ailment) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 1, false, AilmentNone
	}

	fields := strings.Fields(token)
	ailment := AilmentNone
	fainted := false
	for _, f := range fields[1:] {
		if f == "fnt" {
			fainted = true
		} else if a, ok := ailments[f]; ok {
			ailment = a
		}
	}
	if fainted || fields[0] == "0" {
		return 0, true, ailment
	}

	if m := fractionHP.FindStringSubmatch(fields[0]); m != nil {
		cur, _ := strconv.ParseFloat(m[1], 64)
		max, _ := strconv.ParseFloat(m[2], 64)
		if max > 0 {
			return clamp(cur/max, 0, 1), cur == 0, ailment
		}
	}
	if m := percentHP.FindStringSubmatch(fields[0]); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		return clamp(pct/100, 0, 1), pct == 0, ailment
	}

	return 1, false, ailment
}

func parseBoosts(raw map[string]int) Boosts {
	var b Boosts
	if raw == nil {
		return b
	}
	b.Attack = raw["atk"]
	b.Defense = raw["def"]
	b.SpecialAttack = raw["spa"]
	b.SpecialDefense = raw["spd"]
	b.Speed = raw["spe"]
	b.Accuracy = raw["accuracy"]
	b.Evasion = raw["evasion"]
	return b
}

const defaultSwitchThreshold = 0.3

// ShouldSwitch recommends leaving the field when fainted or below the
// HP threshold. A trapped combatant cannot switch regardless of need.
func ShouldSwitch(st BattleStatus, hpThreshold float64) bool {
	if st.Trapped {
		return false
	}
	if hpThreshold <= 0 {
		hpThreshold = defaultSwitchThreshold
	}
	return st.Fainted || st.HPFraction < hpThreshold
}
