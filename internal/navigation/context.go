package navigation

import (
	"strings"
	"time"

	"github.com/large-farva/transition-engine/internal/ring"
)

// Direction of a navigation relative to the user's path through the site.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
	Refresh  Direction = "refresh"
)

// Relationship is the structural relation between the page types of a
// from/to pair. ParentChild and ChildParent are distinct: the pair order
// says which way the user moved through the hierarchy.
type Relationship string

const (
	Sibling     Relationship = "sibling"
	ParentChild Relationship = "parent-child"
	ChildParent Relationship = "child-parent"
	Contextual  Relationship = "contextual"
	Unrelated   Relationship = "unrelated"
)

type typePair struct{ a, b PageType }

// hierarchy lists parent -> child edges.
var hierarchy = map[typePair]bool{
	{PageHome, PageBlogIndex}:         true,
	{PageHome, PageToolIndex}:         true,
	{PageBlogIndex, PageBlogPost}:     true,
	{PageToolIndex, PageToolCategory}: true,
}

// related lists section pairs that share context; order does not matter.
var related = map[typePair]bool{
	{PageBlogPost, PageToolCategory}: true,
	{PageSearch, PageBlogPost}:       true,
	{PageSearch, PageToolCategory}:   true,
	{PageSearch, PageBlogIndex}:      true,
	{PageSearch, PageToolIndex}:      true,
	{PageBlogIndex, PageToolIndex}:   true,
}

// RelationshipOf derives the relation of moving from one page type to
// another.
func RelationshipOf(from, to PageType) Relationship {
	switch {
	case from == to:
		return Sibling
	case from.IsStatic() && to.IsStatic():
		return Sibling
	case hierarchy[typePair{from, to}]:
		return ParentChild
	case hierarchy[typePair{to, from}]:
		return ChildParent
	case related[typePair{from, to}] || related[typePair{to, from}]:
		return Contextual
	}
	return Unrelated
}

// DirectionOf decides whether moving from one path to another goes
// forward, backward or refreshes. history is oldest first.
func DirectionOf(fromPath, toPath string, history []string) Direction {
	from := Canonicalize(fromPath)
	to := Canonicalize(toPath)
	if from == to {
		return Refresh
	}

	lastFrom := -1
	for i := len(history) - 1; i >= 0; i-- {
		if Canonicalize(history[i]) == from {
			lastFrom = i
			break
		}
	}
	for i := 0; i < lastFrom; i++ {
		if Canonicalize(history[i]) == to {
			return Backward
		}
	}

	if isSegmentPrefix(to, from) && RelationshipOf(Classify(from), Classify(to)) == ChildParent {
		return Backward
	}
	return Forward
}

// isSegmentPrefix reports whether prefix is a strict ancestor of path on
// a "/" boundary. "/" is an ancestor of every other path.
func isSegmentPrefix(prefix, path string) bool {
	if prefix == path {
		return false
	}
	if prefix == "/" {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// Context describes one navigation attempt. It is created once and never
// modified afterwards.
type Context struct {
	Direction    Direction    `json:"direction"`
	From         PageType     `json:"from_type"`
	To           PageType     `json:"to_type"`
	Relationship Relationship `json:"relationship"`
	FromPath     string       `json:"from_path"`
	ToPath       string       `json:"to_path"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewContext classifies a navigation from fromPath to toPath.
func NewContext(fromPath, toPath string, history []string, now time.Time) Context {
	from := Canonicalize(fromPath)
	to := Canonicalize(toPath)
	fromType := Classify(from)
	toType := Classify(to)
	return Context{
		Direction:    DirectionOf(from, to, history),
		From:         fromType,
		To:           toType,
		Relationship: RelationshipOf(fromType, toType),
		FromPath:     from,
		ToPath:       to,
		Timestamp:    now,
	}
}

// HistorySize is the default number of paths remembered.
const HistorySize = 50

// History is the bounded record of visited paths, oldest first.
type History struct {
	buf *ring.Buffer[string]
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = HistorySize
	}
	return &History{buf: ring.New[string](size)}
}

// Push records a visit to path in canonical form.
func (h *History) Push(path string) { h.buf.Push(Canonicalize(path)) }

// Paths returns the remembered paths, oldest first.
func (h *History) Paths() []string { return h.buf.All() }

// Current returns the most recent path, or "/" when nothing was visited.
func (h *History) Current() string {
	if p, ok := h.buf.Last(); ok {
		return p
	}
	return "/"
}

func (h *History) Len() int { return h.buf.Len() }
