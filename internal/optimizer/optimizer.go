// Package optimizer folds every active constraint on a transition into the
// one duration and easing the client should animate with.
package optimizer

import (
	"time"

	"github.com/large-farva/transition-engine/internal/device"
	"github.com/large-farva/transition-engine/internal/fallback"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/prefs"
	"github.com/large-farva/transition-engine/internal/registry"
)

// reducedScale shortens transitions at Reduced intensity.
const reducedScale = 0.5

// Inputs are the constraints known when a navigation starts.
type Inputs struct {
	Descriptor  registry.Descriptor
	Simple      registry.Descriptor // used once the tier reaches simplify
	Device      device.Optimization
	Fallback    motion.Tier
	Preferences prefs.Preferences
	Intensity   motion.Intensity
}

// Params are the applied transition parameters.
type Params struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"-"`
	Easing   string        `json:"easing"`
	Disabled bool          `json:"disabled"`
	Tier     motion.Tier   `json:"tier"`
	CSSClass string        `json:"css_class,omitempty"`
	Reasons  []string      `json:"reasons,omitempty"`
}

func (p Params) DurationMs() int64 { return p.Duration.Milliseconds() }

// Merge computes the applied parameters. The smallest duration among the
// active constraints wins, and so does the simplest easing. A custom
// duration from preferences overrides the computed one unless Minimal
// intensity forces zero.
func Merge(in Inputs) Params {
	tier := motion.MaxTier(in.Device.Tier, in.Fallback)
	desc := in.Descriptor
	var reasons []string
	if tier >= motion.TierSimplify && in.Simple.Name != "" && desc.Name != in.Simple.Name {
		desc = in.Simple
		reasons = append(reasons, "simplified")
	}

	out := Params{Name: desc.Name, Tier: tier, CSSClass: desc.CSSClass}

	if in.Fallback == motion.TierDisable {
		out.Disabled = true
		out.Easing = motion.EaseLinear
		out.Reasons = append(reasons, "fallback-disabled")
		return out
	}

	duration := desc.Duration
	easings := []string{desc.Easing}
	shorten := func(d time.Duration, reason string) {
		if d < duration {
			duration = d
			reasons = append(reasons, reason)
		}
	}

	if in.Device.ShouldOptimize {
		if in.Device.RecommendedDuration > 0 {
			shorten(in.Device.RecommendedDuration, "device")
		}
		easings = append(easings, in.Device.RecommendedEasing)
	}
	if in.Fallback == motion.TierSimplify {
		shorten(fallback.SimplifiedDuration, "fallback-simplified")
		easings = append(easings, fallback.SimplifiedEasing)
	}
	if in.Intensity == motion.Reduced {
		shorten(time.Duration(float64(desc.Duration)*reducedScale), "reduced-intensity")
	}

	if custom := in.Preferences.CustomDurationMs; custom != nil {
		duration = time.Duration(*custom) * time.Millisecond
		reasons = append(reasons, "custom-duration")
	}
	if in.Intensity == motion.Minimal {
		duration = 0
		reasons = append(reasons, "minimal-intensity")
	}

	out.Duration = max(duration, 0)
	out.Easing = motion.SimplestEasing(easings...)
	if out.Easing == "" {
		out.Easing = motion.EaseLinear
	}
	out.Reasons = reasons
	return out
}
