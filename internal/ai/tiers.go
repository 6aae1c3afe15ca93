package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/protocol"
	"github.com/avelius/pokebattle-backend/internal/typechart"
)

// Tier is one decision-making strategy level. Choose must always return
// a choice string legal for the request; "default" is the safety net.
type Tier interface {
	Name() string
	Choose(ctx context.Context, req *protocol.Request, opponent CombatantSummary) string
}

// Deps carries the shared components tiers are built from.
type Deps struct {
	Chart     *typechart.Chart
	Estimator Estimator
	Advisor   Advisor
	Budget    time.Duration
	Log       *zap.Logger
}

const (
	DefaultDifficulty = 2
	defaultBudget     = 2 * time.Second
)

// tierBuilders is the static difficulty registry. Difficulties 1 and 2
// share the reactive tier, so five difficulties map onto four behaviors.
var tierBuilders = map[int]func(Deps) Tier{
	1: newReactiveTier,
	2: newReactiveTier,
	3: newBalancedTier,
	4: newScoringTier,
	5: newAugmentedTier,
}

// ForDifficulty resolves a difficulty to its tier. Out-of-range values
// are never fatal: they log a warning and behave like difficulty 2.
func ForDifficulty(difficulty int, deps Deps) Tier {
	build, ok := tierBuilders[difficulty]
	if !ok {
		deps.Log.Warn("unknown AI difficulty, falling back",
			zap.Int("difficulty", difficulty),
			zap.Int("fallback", DefaultDifficulty))
		build = tierBuilders[DefaultDifficulty]
	}
	return build(deps)
}

// activePokemon returns the requesting side's active team member and
// its 1-based team slot.
func activePokemon(req *protocol.Request) (protocol.SidePokemon, int) {
	for i, p := range req.Side.Pokemon {
		if p.Active {
			return p, i + 1
		}
	}
	return protocol.SidePokemon{}, 0
}

// benchSlots lists 1-based slots that are switch-legal right now.
func benchSlots(req *protocol.Request) []int {
	var slots []int
	for i, p := range req.Side.Pokemon {
		if p.Active {
			continue
		}
		if _, fainted, _ := ParseCondition(p.Condition); fainted {
			continue
		}
		slots = append(slots, i+1)
	}
	return slots
}

func firstEnabledMove(req *protocol.Request) (int, bool) {
	if len(req.Active) == 0 {
		return 0, false
	}
	for i, m := range req.Active[0].Moves {
		if !m.Disabled {
			return i + 1, true
		}
	}
	return 0, false
}

func summarize(p protocol.SidePokemon) CombatantSummary {
	frac, _, _ := ParseCondition(p.Condition)
	return CombatantSummary{Types: p.Types, Stats: p.Stats, HPFraction: frac}
}

// reactiveTier answers with the first legal option. It is the behavior
// behind difficulties 1 and 2 and the fallback for unknown values.
type reactiveTier struct{}

func newReactiveTier(Deps) Tier { return reactiveTier{} }

func (reactiveTier) Name() string { return "reactive" }

func (reactiveTier) Choose(_ context.Context, req *protocol.Request, _ CombatantSummary) string {
	if req.TeamPreview {
		return "default"
	}
	if req.ForcedSwitch() {
		if slots := benchSlots(req); len(slots) > 0 {
			return fmt.Sprintf("switch %d", slots[0])
		}
		return "default"
	}
	if slot, ok := firstEnabledMove(req); ok {
		return fmt.Sprintf("move %d", slot)
	}
	return "default"
}

// balancedTier reads the analyzer and picks by effectiveness and raw
// power, switching out when the active combatant is in trouble.
type balancedTier struct {
	chart    *typechart.Chart
	analyzer Analyzer
}

func newBalancedTier(d Deps) Tier { return &balancedTier{chart: d.Chart} }

func (t *balancedTier) Name() string { return "balanced" }

func (t *balancedTier) Choose(_ context.Context, req *protocol.Request, opponent CombatantSummary) string {
	if req.TeamPreview {
		return "team 1"
	}

	active, _ := activePokemon(req)
	var opts *protocol.ActiveOptions
	if len(req.Active) > 0 {
		opts = &req.Active[0]
	}
	status := t.analyzer.Analyze(active, opts)

	if req.ForcedSwitch() || ShouldSwitch(status, defaultSwitchThreshold) {
		if slot, ok := t.healthiestBench(req); ok {
			return fmt.Sprintf("switch %d", slot)
		}
		if req.ForcedSwitch() {
			return "default"
		}
	}

	if opts == nil {
		return "default"
	}
	bestSlot, bestScore := 0, -1.0
	for i, m := range opts.Moves {
		if m.Disabled {
			continue
		}
		power := float64(m.BasePower)
		if power <= 0 {
			power = defaultBasePower
		}
		score := power * t.chart.Effectiveness(m.Type, opponent.Types)
		if score > bestScore {
			bestSlot, bestScore = i+1, score
		}
	}
	if bestSlot == 0 {
		return "default"
	}
	return fmt.Sprintf("move %d", bestSlot)
}

func (t *balancedTier) healthiestBench(req *protocol.Request) (int, bool) {
	bestSlot, bestFrac := 0, -1.0
	for _, slot := range benchSlots(req) {
		frac, _, _ := ParseCondition(req.Side.Pokemon[slot-1].Condition)
		if frac > bestFrac {
			bestSlot, bestFrac = slot, frac
		}
	}
	return bestSlot, bestSlot != 0
}

// scoringTier runs the full scorer across every legal move and switch.
type scoringTier struct {
	scorer   *Scorer
	analyzer Analyzer
}

func newScoringTier(d Deps) Tier {
	return &scoringTier{scorer: NewScorer(d.Chart, d.Estimator)}
}

func (t *scoringTier) Name() string { return "scoring" }

func (t *scoringTier) Choose(_ context.Context, req *protocol.Request, opponent CombatantSummary) string {
	if req.TeamPreview {
		return "team 1"
	}

	active, _ := activePokemon(req)
	var opts *protocol.ActiveOptions
	if len(req.Active) > 0 {
		opts = &req.Active[0]
	}
	status := t.analyzer.Analyze(active, opts)
	attacker := summarize(active)

	var candidates []Candidate
	if !req.ForcedSwitch() && opts != nil {
		for i, m := range opts.Moves {
			candidates = append(candidates, Candidate{
				Choice: fmt.Sprintf("move %d", i+1),
				Score:  t.scorer.ScoreMove(m, attacker, opponent),
			})
		}
	}
	if req.ForcedSwitch() || !status.Trapped {
		for _, slot := range benchSlots(req) {
			target := req.Side.Pokemon[slot-1]
			candidates = append(candidates, Candidate{
				Choice: fmt.Sprintf("switch %d", slot),
				Score:  t.scorer.ScoreSwitch(target, target.Types, status, opponent),
			})
		}
	}

	ranked := Rank(candidates)
	if len(ranked) == 0 {
		return "default"
	}
	return ranked[0].Choice
}

// augmentedTier consults the external knowledge advisor under a strict
// budget and falls back to full scoring whenever the advisor is
// unavailable, late, or answers with an illegal choice.
type augmentedTier struct {
	scoring Tier
	advisor Advisor
	budget  time.Duration
	log     *zap.Logger
}

func newAugmentedTier(d Deps) Tier {
	budget := d.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	return &augmentedTier{
		scoring: newScoringTier(d),
		advisor: d.Advisor,
		budget:  budget,
		log:     d.Log,
	}
}

func (t *augmentedTier) Name() string { return "augmented" }

func (t *augmentedTier) Choose(ctx context.Context, req *protocol.Request, opponent CombatantSummary) string {
	if t.advisor == nil {
		return t.scoring.Choose(ctx, req, opponent)
	}

	ctx, cancel := context.WithTimeout(ctx, t.budget)
	defer cancel()

	choice, err := t.advisor.Suggest(ctx, Consultation{Request: req, Opponent: opponent})
	if err != nil {
		t.log.Warn("advisor unavailable, using local scoring", zap.Error(err))
		return t.scoring.Choose(ctx, req, opponent)
	}
	if !protocol.ValidChoice(req, choice) {
		t.log.Warn("advisor returned illegal choice, using local scoring",
			zap.String("choice", choice))
		return t.scoring.Choose(ctx, req, opponent)
	}
	return choice
}
