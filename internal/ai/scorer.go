package ai

import (
	"sort"

	"github.com/avelius/pokebattle-backend/internal/protocol"
	"github.com/avelius/pokebattle-backend/internal/typechart"
)

// InvalidScore marks a candidate that must never be chosen: disabled
// moves, switches to fainted or already-active targets.
const InvalidScore = -1000.0

// Move score weights. Each signal is normalized to 0..100 first.
const (
	weightDamage        = 0.40
	weightEffectiveness = 0.30
	weightRisk          = 0.15
	weightUtility       = 0.15
)

// Switch score weights.
const (
	weightSwitchHealth  = 0.40
	weightSwitchMatchup = 0.40
	weightSwitchUtility = 0.20
)

// Scorer combines effectiveness, damage estimate, risk and utility into
// one weighted score per candidate.
type Scorer struct {
	chart *typechart.Chart
	est   Estimator
}

func NewScorer(chart *typechart.Chart, est Estimator) *Scorer {
	return &Scorer{chart: chart, est: est}
}

// ScoreMove rates one selectable move against the current opponent.
func (s *Scorer) ScoreMove(move protocol.MoveOption, attacker, defender CombatantSummary) float64 {
	if move.Disabled {
		return InvalidScore
	}

	eff := s.chart.Effectiveness(move.Type, defender.Types)

	damage := float64(move.BasePower)
	if damage > 100 {
		damage = 100
	}
	if s.est != nil {
		damage = s.est.Estimate(move, attacker, defender, eff) * 100
	}

	score := weightDamage * damage
	score += weightEffectiveness * effectivenessSignal(eff)
	score += weightRisk * (1 - moveRisk(move, defender)) * 100
	score += weightUtility * moveUtility(move)
	return score
}

// effectivenessSignal buckets a multiplier onto the 0..100 scale.
func effectivenessSignal(mult float64) float64 {
	switch {
	case mult >= 2:
		return 100
	case mult >= 1.5:
		return 75
	case mult == 1:
		return 50
	case mult >= 0.5:
		return 25
	default:
		return 0
	}
}

// moveRisk accumulates additive risk, capped at 1.
func moveRisk(move protocol.MoveOption, defender CombatantSummary) float64 {
	risk := 0.0

	if move.Accuracy > 0 {
		if move.Accuracy < 70 {
			risk += 0.3
		} else if move.Accuracy < 90 {
			risk += 0.15
		}
	}
	if move.Flags.SelfDestruct {
		risk += 0.3
	} else if move.Flags.Recoil {
		risk += 0.2
	}

	// A weak hit against a healthy defender wastes the turn.
	power := move.BasePower
	if power == 0 {
		power = defaultBasePower
	}
	if defender.HPFraction > 0.7 && power < 60 {
		risk += 0.15
	}

	return clamp(risk, 0, 1)
}

// moveUtility starts neutral and adds fixed bonuses per capability.
func moveUtility(move protocol.MoveOption) float64 {
	utility := 50.0
	if move.Flags.Status {
		utility += 20
	}
	if move.Flags.Boost {
		utility += 15
	}
	if move.Flags.Heal {
		utility += 15
	}
	if move.Priority > 0 {
		utility += 10
	}
	if move.Flags.MultiHit {
		utility += 10
	}
	if move.Flags.Field {
		utility += 10
	}
	return clamp(utility, 0, 100)
}

// ScoreSwitch rates a bench target as a replacement for the current
// combatant against the known opponent.
func (s *Scorer) ScoreSwitch(target protocol.SidePokemon, targetTypes []string, current BattleStatus, opponent CombatantSummary) float64 {
	if target.Active {
		return InvalidScore
	}
	frac, fainted, _ := ParseCondition(target.Condition)
	if fainted {
		return InvalidScore
	}

	score := weightSwitchHealth * frac * 100
	score += weightSwitchMatchup * s.matchupSignal(targetTypes, opponent.Types)
	score += weightSwitchUtility * switchUrgency(current)
	return score
}

// matchupSignal estimates how the target trades with the opponent on
// typing alone. Unknown typing on either end reads as an even 50.
func (s *Scorer) matchupSignal(targetTypes, opponentTypes []string) float64 {
	if len(targetTypes) == 0 || len(opponentTypes) == 0 {
		return 50
	}

	offense := 0.0
	for _, t := range targetTypes {
		if sig := effectivenessSignal(s.chart.Effectiveness(t, opponentTypes)); sig > offense {
			offense = sig
		}
	}
	defense := 0.0
	for _, t := range opponentTypes {
		if sig := effectivenessSignal(s.chart.Effectiveness(t, targetTypes)); sig > defense {
			defense = sig
		}
	}
	return clamp((offense+(100-defense))/2, 0, 100)
}

// switchUrgency scales with how badly the current combatant needs out.
func switchUrgency(current BattleStatus) float64 {
	switch {
	case current.Fainted || current.HPFraction < 0.3:
		return 100
	case current.HPFraction < 0.5:
		return 70
	default:
		return 30
	}
}

// Candidate pairs a choice string with its score.
type Candidate struct {
	Choice string
	Score  float64
}

// Rank filters out invalid candidates and orders the rest by descending
// score. The sort is stable: ties keep their original candidate order.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score > InvalidScore {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
