package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tiers holds the keyword phrases for each risk tier.
type Tiers struct {
	High              []string `yaml:"high"`
	Moderate          []string `yaml:"moderate"`
	ModerateThreshold int      `yaml:"moderate_threshold"`
}

// DefaultTiers returns the built-in phrase lists.
func DefaultTiers() Tiers {
	return Tiers{
		High: []string{
			"suicide", "suicidal", "kill myself", "end it all", "end my life", "want to die",
			"better off dead", "hurt myself", "self harm", "self-harm", "cut myself",
			"overdose", "jump off", "no point living", "no reason to live",
			"life is meaningless", "can't go on", "everyone would be better without me",
			"hopeless", "lost all hope", "worthless", "trapped", "give up", "burden",
		},
		Moderate: []string{
			"depressed", "anxious", "anxiety", "panic", "overwhelmed", "scared",
			"alone", "lonely", "isolated", "can't cope",
			"can't sleep", "feel empty", "numb inside", "stressed",
		},
		ModerateThreshold: 1,
	}
}

// LoadTiers reads tiers from a YAML file. Missing tiers fall back to the defaults.
func LoadTiers(path string) (Tiers, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tiers{}, fmt.Errorf("read risk tiers: %w", err)
	}
	var tiers Tiers
	if err := yaml.Unmarshal(raw, &tiers); err != nil {
		return Tiers{}, fmt.Errorf("parse risk tiers %s: %w", path, err)
	}
	def := DefaultTiers()
	if len(tiers.High) == 0 {
		tiers.High = def.High
	}
	if len(tiers.Moderate) == 0 {
		tiers.Moderate = def.Moderate
	}
	if tiers.ModerateThreshold <= 0 {
		tiers.ModerateThreshold = def.ModerateThreshold
	}
	return tiers, nil
}
