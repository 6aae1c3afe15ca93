// Package ai turns a side's decision request into a choice. It layers a
// damage estimator, a snapshot analyzer, and a weighted scorer under
// four strategy tiers keyed by session difficulty.
package ai

import (
	"strings"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// CombatantSummary is the slice of a combatant's state the estimator and
// scorer consume. Zero values mean "unknown" and degrade to neutral.
type CombatantSummary struct {
	Types      []string
	Stats      map[string]int
	HPFraction float64
	Level      int
}

// Estimator predicts the damage of one move as a fraction of the
// defender's max HP. The formula is deliberately a replaceable strategy;
// only the [0,1] contract is relied upon elsewhere.
type Estimator interface {
	Estimate(move protocol.MoveOption, attacker, defender CombatantSummary, effectiveness float64) float64
}

const (
	defaultBasePower = 50
	powerScale       = 300.0
	stabBonus        = 1.5
)

// HeuristicEstimator is the default Estimator: base power scaled by the
// relevant stat ratio, same-type bonus, and the supplied effectiveness
// multiplier. Best effort, never legality grade.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Estimate(move protocol.MoveOption, attacker, defender CombatantSummary, effectiveness float64) float64 {
	if strings.EqualFold(move.Category, "Status") {
		return 0
	}

	power := float64(move.BasePower)
	if power <= 0 {
		power = defaultBasePower
	}
	if effectiveness < 0 {
		effectiveness = 1
	}

	frac := power / powerScale
	frac *= statRatio(move, attacker, defender)
	if hasType(attacker.Types, move.Type) {
		frac *= stabBonus
	}
	frac *= effectiveness

	return clamp(frac, 0, 1)
}

// statRatio compares the attacking stat to the matching defending stat,
// clamped so a missing or extreme spread cannot dominate the estimate.
func statRatio(move protocol.MoveOption, attacker, defender CombatantSummary) float64 {
	atkKey, defKey := "atk", "def"
	if strings.EqualFold(move.Category, "Special") {
		atkKey, defKey = "spa", "spd"
	}

	atk := attacker.Stats[atkKey]
	def := defender.Stats[defKey]
	if atk <= 0 || def <= 0 {
		return 1
	}
	return clamp(float64(atk)/float64(def), 0.5, 2)
}

func hasType(types []string, name string) bool {
	if name == "" {
		return false
	}
	for _, t := range types {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
