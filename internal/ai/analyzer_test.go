package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

func TestParseCondition(t *testing.T) {
	cases := []struct {
		name        string
		token       string
		wantFrac    float64
		wantFainted bool
		wantAilment Ailment
	}{
		{"full health", "231/231", 1, false, AilmentNone},
		{"fraction", "100/200", 0.5, false, AilmentNone},
		{"fainted marker", "0 fnt", 0, true, AilmentNone},
		{"zero current", "0/231", 0, true, AilmentNone},
		{"percent", "45%", 0.45, false, AilmentNone},
		{"burned", "163/231 brn", float64(163) / 231, false, AilmentBurn},
		{"toxic", "50/100 tox", 0.5, false, AilmentToxic},
		{"paralyzed", "80/100 par", 0.8, false, AilmentParalysis},
		{"unparsable fails open", "garbage", 1, false, AilmentNone},
		{"empty fails open", "", 1, false, AilmentNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frac, fainted, ailment := ParseCondition(tc.token)
			assert.InDelta(t, tc.wantFrac, frac, 1e-9)
			assert.Equal(t, tc.wantFainted, fainted)
			assert.Equal(t, tc.wantAilment, ailment)
		})
	}
}

func TestAnalyzeBoostsDefaultToZero(t *testing.T) {
	var an Analyzer

	st := an.Analyze(protocol.SidePokemon{Condition: "100/100"}, nil)
	assert.Equal(t, Boosts{}, st.Boosts)

	st = an.Analyze(protocol.SidePokemon{
		Condition: "100/100",
		Boosts:    map[string]int{"atk": 2, "spe": -1},
	}, nil)
	assert.Equal(t, 2, st.Boosts.Attack)
	assert.Equal(t, -1, st.Boosts.Speed)
	assert.Equal(t, 0, st.Boosts.Evasion)
}

func TestAnalyzeCanAct(t *testing.T) {
	var an Analyzer

	t.Run("healthy acts", func(t *testing.T) {
		st := an.Analyze(protocol.SidePokemon{Condition: "100/100"}, &protocol.ActiveOptions{})
		assert.True(t, st.CanAct)
	})
	t.Run("fainted cannot act", func(t *testing.T) {
		st := an.Analyze(protocol.SidePokemon{Condition: "0 fnt"}, nil)
		assert.False(t, st.CanAct)
	})
	t.Run("trapped cannot act", func(t *testing.T) {
		st := an.Analyze(protocol.SidePokemon{Condition: "100/100"}, &protocol.ActiveOptions{Trapped: true})
		assert.False(t, st.CanAct)
	})
	t.Run("sleep does not block acting", func(t *testing.T) {
		st := an.Analyze(protocol.SidePokemon{Condition: "100/100 slp"}, &protocol.ActiveOptions{})
		assert.Equal(t, AilmentSleep, st.Ailment)
		assert.True(t, st.CanAct)
	})
}

func TestShouldSwitch(t *testing.T) {
	assert.True(t, ShouldSwitch(BattleStatus{Fainted: true}, 0.3))
	assert.True(t, ShouldSwitch(BattleStatus{HPFraction: 0.2}, 0.3))
	assert.False(t, ShouldSwitch(BattleStatus{HPFraction: 0.9}, 0.3))
	// Trapped overrides need.
	assert.False(t, ShouldSwitch(BattleStatus{HPFraction: 0.1, Trapped: true}, 0.3))
	assert.False(t, ShouldSwitch(BattleStatus{Fainted: true, Trapped: true}, 0.3))
}
