// Package motion holds the small value types shared by every part of the
// transition core: how elaborate a transition may be, how aggressively it
// has been cut back, and how complex an easing curve is.
package motion

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Intensity is an ordered tier controlling how elaborate transitions may be.
// The zero value is Minimal, the most conservative tier.
type Intensity int

const (
	Minimal Intensity = iota
	Reduced
	Normal
	Enhanced
)

var intensityNames = [...]string{"minimal", "reduced", "normal", "enhanced"}

func (i Intensity) String() string {
	if i < Minimal || i > Enhanced {
		return fmt.Sprintf("intensity(%d)", int(i))
	}
	return intensityNames[i]
}

// Valid reports whether i is one of the four defined tiers.
func (i Intensity) Valid() bool { return i >= Minimal && i <= Enhanced }

// ParseIntensity accepts the lower-case tier name.
func ParseIntensity(s string) (Intensity, error) {
	for i, name := range intensityNames {
		if strings.EqualFold(s, name) {
			return Intensity(i), nil
		}
	}
	return Normal, fmt.Errorf("unknown intensity %q", s)
}

func (i Intensity) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("invalid intensity %d", int(i))
	}
	return []byte(i.String()), nil
}

func (i *Intensity) UnmarshalText(b []byte) error {
	v, err := ParseIntensity(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// MinIntensity returns the more conservative of a and b.
func MinIntensity(a, b Intensity) Intensity {
	if a < b {
		return a
	}
	return b
}

// Tier is how far a transition has been cut back from its descriptor.
type Tier int

const (
	TierNone Tier = iota
	TierReduce
	TierSimplify
	TierDisable
)

var tierNames = [...]string{"none", "reduce", "simplify", "disable"}

func (t Tier) String() string {
	if t < TierNone || t > TierDisable {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

func (t Tier) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// MaxTier returns the more severe of a and b.
func MaxTier(a, b Tier) Tier {
	if a > b {
		return a
	}
	return b
}

// Easing curves used by the built-in descriptors and the optimizer.
const (
	EaseLinear    = "linear"
	EaseOut       = "ease-out"
	Ease          = "ease"
	EaseInOut     = "ease-in-out"
	EaseMobile    = "cubic-bezier(0.4, 0, 0.2, 1)"
	EaseApp       = "cubic-bezier(0.2, 0, 0, 1)"
	EaseEmphasize = "cubic-bezier(0.25, 0.46, 0.45, 0.94)"
)

// EasingRank orders easing curves by visual complexity; lower is simpler.
// Custom cubic-bezier curves rank above the keyword curves.
func EasingRank(easing string) int {
	switch strings.TrimSpace(strings.ToLower(easing)) {
	case "", EaseLinear, "step-end", "step-start":
		return 0
	case EaseOut, "ease-in":
		return 1
	case Ease:
		return 2
	case EaseInOut:
		return 3
	default:
		return 4
	}
}

// SimplestEasing returns the least complex curve among the candidates. Ties
// keep the earliest candidate. Empty candidates are ignored.
func SimplestEasing(candidates ...string) string {
	best := ""
	bestRank := -1
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if r := EasingRank(c); bestRank < 0 || r < bestRank {
			best, bestRank = c, r
		}
	}
	return best
}
