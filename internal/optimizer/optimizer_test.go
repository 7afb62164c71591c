package optimizer

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/large-farva/transition-engine/internal/device"
	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/prefs"
	"github.com/large-farva/transition-engine/internal/registry"
)

var (
	scaleUp = registry.Descriptor{Name: "scale-up", Duration: 350 * time.Millisecond, Easing: motion.EaseEmphasize, CSSClass: "vt-scale-up"}
	fade    = registry.Descriptor{Name: "fade", Duration: 200 * time.Millisecond, Easing: motion.EaseOut, CSSClass: "vt-fade"}
)

func ms(n int) *int { return &n }

func TestMerge(t *testing.T) {
	base := Inputs{Descriptor: scaleUp, Simple: fade, Preferences: prefs.Defaults(), Intensity: motion.Normal}

	tests := []struct {
		name   string
		mutate func(*Inputs)
		want   Params
	}{
		{
			name: "unconstrained keeps the descriptor",
			want: Params{Name: "scale-up", Duration: 350 * time.Millisecond, Easing: motion.EaseEmphasize, CSSClass: "vt-scale-up"},
		},
		{
			name: "device cap and easing",
			mutate: func(in *Inputs) {
				in.Device = device.Optimization{ShouldOptimize: true, Tier: motion.TierReduce, RecommendedDuration: 200 * time.Millisecond, RecommendedEasing: motion.EaseMobile}
			},
			want: Params{Name: "scale-up", Duration: 200 * time.Millisecond, Easing: motion.EaseEmphasize, Tier: motion.TierReduce, CSSClass: "vt-scale-up", Reasons: []string{"device"}},
		},
		{
			name: "device simplify swaps to the simple descriptor",
			mutate: func(in *Inputs) {
				in.Device = device.Optimization{ShouldOptimize: true, Tier: motion.TierSimplify, RecommendedDuration: 100 * time.Millisecond}
			},
			want: Params{Name: "fade", Duration: 100 * time.Millisecond, Easing: motion.EaseOut, Tier: motion.TierSimplify, CSSClass: "vt-fade", Reasons: []string{"simplified", "device"}},
		},
		{
			name: "fallback simplify is 200ms ease-out",
			mutate: func(in *Inputs) {
				in.Descriptor = registry.Descriptor{Name: "slide-forward", Duration: 300 * time.Millisecond, Easing: motion.EaseInOut}
				in.Simple = registry.Descriptor{Name: "fade", Duration: 400 * time.Millisecond, Easing: motion.EaseInOut}
				in.Fallback = motion.TierSimplify
			},
			want: Params{Name: "fade", Duration: 200 * time.Millisecond, Easing: motion.EaseOut, Tier: motion.TierSimplify, Reasons: []string{"simplified", "fallback-simplified"}},
		},
		{
			name:   "fallback disable",
			mutate: func(in *Inputs) { in.Fallback = motion.TierDisable },
			want:   Params{Name: "fade", Disabled: true, Easing: motion.EaseLinear, Tier: motion.TierDisable, CSSClass: "vt-fade", Reasons: []string{"simplified", "fallback-disabled"}},
		},
		{
			name:   "reduced intensity halves",
			mutate: func(in *Inputs) { in.Intensity = motion.Reduced },
			want:   Params{Name: "scale-up", Duration: 175 * time.Millisecond, Easing: motion.EaseEmphasize, CSSClass: "vt-scale-up", Reasons: []string{"reduced-intensity"}},
		},
		{
			name: "custom duration beats computed values",
			mutate: func(in *Inputs) {
				in.Preferences.CustomDurationMs = ms(500)
				in.Device = device.Optimization{ShouldOptimize: true, RecommendedDuration: 150 * time.Millisecond}
			},
			want: Params{Name: "scale-up", Duration: 500 * time.Millisecond, Easing: motion.EaseEmphasize, CSSClass: "vt-scale-up", Reasons: []string{"device", "custom-duration"}},
		},
		{
			name: "minimal intensity forces zero over custom",
			mutate: func(in *Inputs) {
				in.Preferences.CustomDurationMs = ms(500)
				in.Intensity = motion.Minimal
			},
			want: Params{Name: "scale-up", Duration: 0, Easing: motion.EaseEmphasize, CSSClass: "vt-scale-up", Reasons: []string{"custom-duration", "minimal-intensity"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			in.Preferences = prefs.Defaults()
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			got := Merge(in)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMerge_SimplestEasingWins(t *testing.T) {
	in := Inputs{
		Descriptor:  registry.Descriptor{Name: "custom", Duration: 300 * time.Millisecond, Easing: "cubic-bezier(0.7, 0, 0.3, 1)"},
		Device:      device.Optimization{ShouldOptimize: true, RecommendedEasing: motion.EaseInOut},
		Preferences: prefs.Defaults(),
		Intensity:   motion.Normal,
	}
	if got := Merge(in).Easing; got != motion.EaseInOut {
		t.Errorf("Easing = %q, want %q", got, motion.EaseInOut)
	}
}
