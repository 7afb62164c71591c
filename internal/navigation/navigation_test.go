package navigation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := map[string]string{
		"":                          "/",
		"/":                         "/",
		"///":                       "/",
		"/blog/":                    "/blog",
		"/blog?page=2":              "/blog",
		"/blog/post#comments":       "/blog/post",
		"blog":                      "/blog",
		"  /tools/  ":               "/tools",
		"https://example.com/about": "/about",
		"https://example.com":       "/",
		"?q=1":                      "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, Canonicalize(in), "Canonicalize(%q)", in)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want PageType
	}{
		{"/", PageHome},
		{"", PageHome},
		{"/blog", PageBlogIndex},
		{"/blog/", PageBlogIndex},
		{"/blog/my-post", PageBlogPost},
		{"/blog/my-post?ref=x", PageBlogPost},
		{"/blog/a/b", PageUnknown},
		{"/tools", PageToolIndex},
		{"/tools/design", PageToolCategory},
		{"/search", PageSearch},
		{"/about", PageStaticAbout},
		{"/contact", PageStaticContact},
		{"/privacy", PageStaticPrivacy},
		{"/offline", PageOffline},
		{"/404", PageNotFound},
		{"/%%%garbage", PageUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := Classify(tt.path)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Classify(tt.path), "classification must be deterministic")
		})
	}
}

func TestRelationshipOf(t *testing.T) {
	tests := []struct {
		from, to PageType
		want     Relationship
	}{
		{PageBlogIndex, PageBlogPost, ParentChild},
		{PageBlogPost, PageBlogIndex, ChildParent},
		{PageToolIndex, PageToolCategory, ParentChild},
		{PageToolCategory, PageToolIndex, ChildParent},
		{PageHome, PageBlogIndex, ParentChild},
		{PageBlogPost, PageBlogPost, Sibling},
		{PageStaticAbout, PageStaticPrivacy, Sibling},
		{PageBlogPost, PageToolCategory, Contextual},
		{PageToolCategory, PageBlogPost, Contextual},
		{PageSearch, PageBlogPost, Contextual},
		{PageHome, PageStaticAbout, Unrelated},
		{PageUnknown, PageOffline, Unrelated},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, RelationshipOf(tt.from, tt.to))
		})
	}
}

func TestDirectionOf(t *testing.T) {
	t.Run("same path is refresh", func(t *testing.T) {
		for _, p := range []string{"", "/", "/blog", "/blog/x?y", "/weird//"} {
			assert.Equal(t, Refresh, DirectionOf(p, p, nil), p)
		}
		assert.Equal(t, Refresh, DirectionOf("/blog/", "/blog?x=1", nil))
	})

	t.Run("earlier in history is backward", func(t *testing.T) {
		history := []string{"/", "/blog", "/blog/my-post"}
		assert.Equal(t, Backward, DirectionOf("/blog/my-post", "/blog", history))
	})

	t.Run("detail to list prefix is backward without history", func(t *testing.T) {
		assert.Equal(t, Backward, DirectionOf("/blog/my-post", "/blog", nil))
		assert.Equal(t, Backward, DirectionOf("/tools/design", "/tools", nil))
		assert.Equal(t, Backward, DirectionOf("/blog", "/", nil))
	})

	t.Run("prefix without hierarchy is forward", func(t *testing.T) {
		assert.Equal(t, Forward, DirectionOf("/blog/a/b", "/blog/a", nil))
		assert.Equal(t, Forward, DirectionOf("/blogger", "/blog", nil))
	})

	t.Run("new destination is forward", func(t *testing.T) {
		history := []string{"/", "/blog"}
		assert.Equal(t, Forward, DirectionOf("/blog", "/blog/new", history))
		assert.Equal(t, Forward, DirectionOf("/", "/about", nil))
	})

	t.Run("later occurrence does not count", func(t *testing.T) {
		history := []string{"/blog/post", "/search"}
		assert.Equal(t, Forward, DirectionOf("/blog/post", "/search", history))
	})
}

func TestNewContext(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := NewContext("/blog/", "/blog/my-post#top", []string{"/", "/blog"}, now)

	assert.Equal(t, Context{
		Direction:    Forward,
		From:         PageBlogIndex,
		To:           PageBlogPost,
		Relationship: ParentChild,
		FromPath:     "/blog",
		ToPath:       "/blog/my-post",
		Timestamp:    now,
	}, ctx)
}

func TestHistory_BoundedToLastFifty(t *testing.T) {
	h := NewHistory(HistorySize)
	assert.Equal(t, "/", h.Current())

	for i := range 60 {
		h.Push(fmt.Sprintf("/blog/post-%d/", i))
	}
	paths := h.Paths()
	require.Len(t, paths, 50)
	for i, p := range paths {
		assert.Equal(t, fmt.Sprintf("/blog/post-%d", i+10), p)
	}
	assert.Equal(t, "/blog/post-59", h.Current())
}
