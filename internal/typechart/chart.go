// Package typechart holds the 18×18 attack-type versus defense-type
// effectiveness matrix. Multipliers not present in the table are 1.
package typechart

import (
	"strings"

	"go.uber.org/zap"
)

const (
	Immune         = 0.0
	NotEffective   = 0.5
	Neutral        = 1.0
	SuperEffective = 2.0
)

// matchups stores only the non-neutral entries, attack type first.
var matchups = map[string]map[string]float64{
	"normal": {"rock": 0.5, "ghost": 0, "steel": 0.5},
	"fire": {
		"fire": 0.5, "water": 0.5, "grass": 2, "ice": 2,
		"bug": 2, "rock": 0.5, "dragon": 0.5, "steel": 2,
	},
	"water": {
		"fire": 2, "water": 0.5, "grass": 0.5,
		"ground": 2, "rock": 2, "dragon": 0.5,
	},
	"electric": {
		"water": 2, "electric": 0.5, "grass": 0.5,
		"ground": 0, "flying": 2, "dragon": 0.5,
	},
	"grass": {
		"fire": 0.5, "water": 2, "grass": 0.5, "poison": 0.5, "ground": 2,
		"flying": 0.5, "bug": 0.5, "rock": 2, "dragon": 0.5, "steel": 0.5,
	},
	"ice": {
		"fire": 0.5, "water": 0.5, "grass": 2, "ice": 0.5,
		"ground": 2, "flying": 2, "dragon": 2, "steel": 0.5,
	},
	"fighting": {
		"normal": 2, "ice": 2, "poison": 0.5, "flying": 0.5, "psychic": 0.5,
		"bug": 0.5, "rock": 2, "ghost": 0, "dark": 2, "steel": 2, "fairy": 0.5,
	},
	"poison": {
		"grass": 2, "poison": 0.5, "ground": 0.5,
		"rock": 0.5, "ghost": 0.5, "steel": 0, "fairy": 2,
	},
	"ground": {
		"fire": 2, "electric": 2, "grass": 0.5, "poison": 2,
		"flying": 0, "bug": 0.5, "rock": 2, "steel": 2,
	},
	"flying": {
		"electric": 0.5, "grass": 2, "fighting": 2,
		"bug": 2, "rock": 0.5, "steel": 0.5,
	},
	"psychic": {"fighting": 2, "poison": 2, "psychic": 0.5, "dark": 0, "steel": 0.5},
	"bug": {
		"fire": 0.5, "grass": 2, "fighting": 0.5, "poison": 0.5, "flying": 0.5,
		"psychic": 2, "ghost": 0.5, "dark": 2, "steel": 0.5, "fairy": 0.5,
	},
	"rock": {
		"fire": 2, "ice": 2, "fighting": 0.5, "ground": 0.5,
		"flying": 2, "bug": 2, "steel": 0.5,
	},
	"ghost": {"normal": 0, "psychic": 2, "ghost": 2, "dark": 0.5},
	"dragon": {"dragon": 2, "steel": 0.5, "fairy": 0},
	"dark":   {"fighting": 0.5, "psychic": 2, "ghost": 2, "dark": 0.5, "fairy": 0.5},
	"steel": {
		"fire": 0.5, "water": 0.5, "electric": 0.5,
		"ice": 2, "rock": 2, "steel": 0.5, "fairy": 2,
	},
	"fairy": {"fire": 0.5, "fighting": 2, "poison": 0.5, "dragon": 2, "dark": 2, "steel": 0.5},
}

// Chart answers effectiveness lookups. It is immutable and safe for
// concurrent use.
type Chart struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Chart {
	return &Chart{log: log}
}

// Effectiveness returns the combined multiplier of attackType against a
// target with the given defense types, multiplying the per-type entries.
// An unknown attack type is logged and treated as neutral. Unknown or
// absent defense types contribute ×1.
func (c *Chart) Effectiveness(attackType string, defenseTypes []string) float64 {
	row, ok := matchups[normalize(attackType)]
	if !ok {
		c.log.Warn("unknown attack type, treating as neutral", zap.String("type", attackType))
		return Neutral
	}

	mult := Neutral
	for _, def := range defenseTypes {
		if m, ok := row[normalize(def)]; ok {
			mult *= m
		}
	}
	return mult
}

// Types lists every known type name.
func Types() []string {
	names := make([]string, 0, len(matchups))
	for name := range matchups {
		names = append(names, name)
	}
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
