// Package registry maps a navigation context to the transition that should
// play for it. Selection walks a priority-ordered pattern table; the chosen
// name is then resolved to a descriptor, falling back to a designated
// default whenever the name is unknown.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/large-farva/transition-engine/internal/motion"
	"github.com/large-farva/transition-engine/internal/navigation"
)

// Built-in transition names.
const (
	SlideForward  = "slide-forward"
	SlideBackward = "slide-backward"
	ScaleUp       = "scale-up"
	ScaleDown     = "scale-down"
	Crossfade     = "crossfade"
	Fade          = "fade"
	Minimal       = "minimal"
)

// ConditionComplex marks descriptors that need a capable device; the
// controller substitutes a crossfade when the probe says otherwise.
const ConditionComplex = "complex"

// Binding ties an element on the page to a named transition group.
type Binding struct {
	Selector string `json:"selector"`
	Group    string `json:"group"`
}

// Descriptor is a named bundle of timing, easing and element bindings.
type Descriptor struct {
	Name       string        `json:"name"`
	Duration   time.Duration `json:"-"`
	Easing     string        `json:"easing"`
	Targets    []Binding     `json:"targets,omitempty"`
	Conditions []string      `json:"conditions,omitempty"`
	CSSClass   string        `json:"css_class,omitempty"`
}

// DurationMs is the duration in whole milliseconds, for wire formats.
func (d Descriptor) DurationMs() int64 { return d.Duration.Milliseconds() }

// Requires reports whether the descriptor lists cond.
func (d Descriptor) Requires(cond string) bool { return slices.Contains(d.Conditions, cond) }

func (d Descriptor) clone() Descriptor {
	d.Targets = slices.Clone(d.Targets)
	d.Conditions = slices.Clone(d.Conditions)
	return d
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return errors.New("descriptor name is required")
	}
	if d.Duration < 0 {
		return fmt.Errorf("descriptor %q: duration must be >= 0", d.Name)
	}
	return nil
}

// Pattern selects a descriptor by name when a context matches. Empty fields
// match anything. Higher priority patterns are consulted first; equal
// priorities keep insertion order.
type Pattern struct {
	Name          string                  `json:"name"`
	Priority      int                     `json:"priority"`
	ReducedMotion bool                    `json:"reduced_motion,omitempty"`
	Relationship  navigation.Relationship `json:"relationship,omitempty"`
	Direction     navigation.Direction    `json:"direction,omitempty"`
	From          navigation.PageType     `json:"from,omitempty"`
	To            navigation.PageType     `json:"to,omitempty"`

	seq int
}

func (p Pattern) matches(ctx navigation.Context, reduced bool) bool {
	if p.ReducedMotion && !reduced {
		return false
	}
	if p.Relationship != "" && p.Relationship != ctx.Relationship {
		return false
	}
	if p.Direction != "" && p.Direction != ctx.Direction {
		return false
	}
	if p.From != "" && p.From != ctx.From {
		return false
	}
	if p.To != "" && p.To != ctx.To {
		return false
	}
	return true
}

// Registry holds the pattern table and descriptor dictionary.
type Registry struct {
	log         *zap.Logger
	patterns    []Pattern
	descriptors map[string]Descriptor
	defaultName string
	seq         int
}

// New creates a registry loaded with the built-in set. defaultName picks
// the fallback descriptor; an empty or unknown name uses Fade.
func New(logger *zap.Logger, defaultName string) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		log:         logger.Named("registry"),
		descriptors: make(map[string]Descriptor),
	}
	for _, d := range builtinDescriptors() {
		r.descriptors[d.Name] = d
	}
	for _, p := range builtinPatterns() {
		r.insert(p)
	}
	if _, ok := r.descriptors[defaultName]; !ok {
		if defaultName != "" {
			r.log.Warn("unknown default descriptor, using fade", zap.String("name", defaultName))
		}
		defaultName = Fade
	}
	r.defaultName = defaultName
	return r
}

func (r *Registry) insert(p Pattern) {
	r.seq++
	p.seq = r.seq
	r.patterns = append(r.patterns, p)
	sort.SliceStable(r.patterns, func(i, j int) bool {
		if r.patterns[i].Priority != r.patterns[j].Priority {
			return r.patterns[i].Priority > r.patterns[j].Priority
		}
		return r.patterns[i].seq < r.patterns[j].seq
	})
}

// SelectName returns the transition name for ctx. When reducedMotion holds
// the minimal-motion transition always wins.
func (r *Registry) SelectName(ctx navigation.Context, reducedMotion bool) string {
	for _, p := range r.patterns {
		if p.matches(ctx, reducedMotion) {
			return p.Name
		}
	}
	return r.defaultName
}

// Resolve looks up a descriptor by name. An unknown name is logged and the
// default descriptor is returned instead; Resolve never fails. The result
// is a copy the caller may keep for the whole navigation.
func (r *Registry) Resolve(name string) Descriptor {
	if d, ok := r.descriptors[name]; ok {
		return d.clone()
	}
	r.log.Warn("unknown transition, using default",
		zap.String("name", name),
		zap.String("default", r.defaultName))
	return r.descriptors[r.defaultName].clone()
}

// Register adds a descriptor and a pattern that selects it. The pattern
// name defaults to the descriptor name. Registering an existing descriptor
// name replaces its definition.
func (r *Registry) Register(p Pattern, d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.Name != d.Name {
		if _, ok := r.descriptors[p.Name]; !ok {
			return fmt.Errorf("pattern selects %q which is neither registered nor being registered", p.Name)
		}
	}
	r.descriptors[d.Name] = d.clone()
	r.insert(p)
	r.log.Debug("registered transition",
		zap.String("name", d.Name),
		zap.Int("priority", p.Priority),
		zap.Duration("duration", d.Duration))
	return nil
}

// Has reports whether name is a registered descriptor.
func (r *Registry) Has(name string) bool {
	_, ok := r.descriptors[name]
	return ok
}

// Default returns the fallback descriptor.
func (r *Registry) Default() Descriptor { return r.descriptors[r.defaultName].clone() }

// Descriptors lists every descriptor sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Patterns lists the pattern table in evaluation order.
func (r *Registry) Patterns() []Pattern { return slices.Clone(r.patterns) }

var pageBindings = []Binding{
	{Selector: "header", Group: "site-header"},
	{Selector: "main", Group: "main-content"},
}

func builtinDescriptors() []Descriptor {
	hero := append(slices.Clone(pageBindings), Binding{Selector: ".hero-image", Group: "hero"})
	return []Descriptor{
		{Name: SlideForward, Duration: 300 * time.Millisecond, Easing: motion.EaseInOut, Targets: pageBindings, CSSClass: "vt-slide-forward"},
		{Name: SlideBackward, Duration: 300 * time.Millisecond, Easing: motion.EaseInOut, Targets: pageBindings, CSSClass: "vt-slide-backward"},
		{Name: ScaleUp, Duration: 350 * time.Millisecond, Easing: motion.EaseEmphasize, Targets: hero, Conditions: []string{ConditionComplex}, CSSClass: "vt-scale-up"},
		{Name: ScaleDown, Duration: 350 * time.Millisecond, Easing: motion.EaseEmphasize, Targets: hero, Conditions: []string{ConditionComplex}, CSSClass: "vt-scale-down"},
		{Name: Crossfade, Duration: 250 * time.Millisecond, Easing: motion.Ease, Targets: pageBindings, CSSClass: "vt-crossfade"},
		{Name: Fade, Duration: 200 * time.Millisecond, Easing: motion.EaseOut, Targets: pageBindings[1:], CSSClass: "vt-fade"},
		{Name: Minimal, Duration: 0, Easing: motion.EaseLinear, CSSClass: "vt-minimal"},
	}
}

func builtinPatterns() []Pattern {
	return []Pattern{
		{Name: Minimal, Priority: 1000, ReducedMotion: true},
		{Name: SlideBackward, Priority: 100, Relationship: navigation.Sibling, Direction: navigation.Backward},
		{Name: SlideForward, Priority: 90, Relationship: navigation.Sibling},
		{Name: ScaleUp, Priority: 80, Relationship: navigation.ParentChild},
		{Name: ScaleDown, Priority: 80, Relationship: navigation.ChildParent},
		{Name: Crossfade, Priority: 70, Relationship: navigation.Contextual},
		{Name: Fade, Priority: 60, Relationship: navigation.Unrelated},
	}
}
