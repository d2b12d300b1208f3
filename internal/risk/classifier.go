// Package risk screens a single message for self-harm and distress phrases.
//
// Classification is a case-insensitive substring scan over two disjoint keyword
// tiers. The high tier always wins; the moderate tier yields MODERATE once the
// configured number of distinct phrases match and LOW below that.
package risk

import (
	"fmt"
	"strings"
)

// Level is an ordered risk level.
type Level int

const (
	None Level = iota
	Low
	Moderate
	High
)

func (l Level) String() string {
	switch l {
	case None:
		return "NONE"
	case Low:
		return "LOW"
	case Moderate:
		return "MODERATE"
	case High:
		return "HIGH"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel accepts the textual form produced by String, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE":
		return None, nil
	case "LOW":
		return Low, nil
	case "MODERATE":
		return Moderate, nil
	case "HIGH":
		return High, nil
	default:
		return None, fmt.Errorf("unknown risk level %q", s)
	}
}

// Assessment is the outcome of classifying one message.
type Assessment struct {
	Level       Level    `json:"level"`
	Indicators  []string `json:"indicators"`
	AlertNeeded bool     `json:"alert_needed"`
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	high              []string
	moderate          []string
	moderateThreshold int
}

func NewClassifier(tiers Tiers) (*Classifier, error) {
	high, err := normalizePhrases("high", tiers.High)
	if err != nil {
		return nil, err
	}
	moderate, err := normalizePhrases("moderate", tiers.Moderate)
	if err != nil {
		return nil, err
	}

	inHigh := make(map[string]struct{}, len(high))
	for _, p := range high {
		inHigh[p] = struct{}{}
	}
	for _, p := range moderate {
		if _, ok := inHigh[p]; ok {
			return nil, fmt.Errorf("risk tiers overlap on phrase %q", p)
		}
	}

	threshold := tiers.ModerateThreshold
	if threshold <= 0 {
		threshold = 1
	}
	return &Classifier{
		high:              high,
		moderate:          moderate,
		moderateThreshold: threshold,
	}, nil
}

// MustNewClassifier panics on invalid tiers. Intended for the built-in defaults.
func MustNewClassifier(tiers Tiers) *Classifier {
	c, err := NewClassifier(tiers)
	if err != nil {
		panic(err)
	}
	return c
}

// ModerateThreshold reports how many moderate phrases escalate LOW to MODERATE.
func (c *Classifier) ModerateThreshold() int {
	return c.moderateThreshold
}

// Classify is pure and total: the same text always yields the same assessment.
func (c *Classifier) Classify(text string) Assessment {
	in := strings.ToLower(strings.TrimSpace(text))
	if in == "" {
		return Assessment{Level: None, Indicators: []string{}}
	}

	if matched := matchPhrases(in, c.high); len(matched) > 0 {
		return Assessment{Level: High, Indicators: matched, AlertNeeded: true}
	}

	matched := matchPhrases(in, c.moderate)
	switch {
	case len(matched) == 0:
		return Assessment{Level: None, Indicators: []string{}}
	case len(matched) >= c.moderateThreshold:
		return Assessment{Level: Moderate, Indicators: matched}
	default:
		return Assessment{Level: Low, Indicators: matched}
	}
}

func matchPhrases(in string, phrases []string) []string {
	var out []string
	for _, p := range phrases {
		if strings.Contains(in, p) {
			out = append(out, p)
		}
	}
	return out
}

func normalizePhrases(tier string, phrases []string) ([]string, error) {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, raw := range phrases {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			return nil, fmt.Errorf("risk tier %s contains an empty phrase", tier)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
