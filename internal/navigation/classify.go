// Package navigation classifies locations and navigation attempts. Every
// function here is pure and total: any string, including empty or malformed
// paths, maps to a defined page type, direction and relationship.
package navigation

import (
	"regexp"
	"strings"
)

// PageType is the closed classification of a navigable location.
type PageType string

const (
	PageHome          PageType = "home"
	PageBlogIndex     PageType = "blog-index"
	PageBlogPost      PageType = "blog-post"
	PageToolIndex     PageType = "tool-index"
	PageToolCategory  PageType = "tool-category"
	PageSearch        PageType = "search"
	PageStaticAbout   PageType = "static-about"
	PageStaticContact PageType = "static-contact"
	PageStaticPrivacy PageType = "static-privacy"
	PageOffline       PageType = "offline"
	PageNotFound      PageType = "not-found"
	PageUnknown       PageType = "unknown"
)

// IsStatic reports whether t is one of the static content pages.
func (t PageType) IsStatic() bool {
	switch t {
	case PageStaticAbout, PageStaticContact, PageStaticPrivacy:
		return true
	}
	return false
}

type pagePattern struct {
	re   *regexp.Regexp
	page PageType
}

// patterns is ordered most specific first; the first match wins.
var patterns = []pagePattern{
	{regexp.MustCompile(`^/$`), PageHome},
	{regexp.MustCompile(`^/offline$`), PageOffline},
	{regexp.MustCompile(`^/(404|not-found)$`), PageNotFound},
	{regexp.MustCompile(`^/blog/[^/]+$`), PageBlogPost},
	{regexp.MustCompile(`^/blog$`), PageBlogIndex},
	{regexp.MustCompile(`^/tools/[^/]+$`), PageToolCategory},
	{regexp.MustCompile(`^/tools$`), PageToolIndex},
	{regexp.MustCompile(`^/search$`), PageSearch},
	{regexp.MustCompile(`^/about$`), PageStaticAbout},
	{regexp.MustCompile(`^/contact$`), PageStaticContact},
	{regexp.MustCompile(`^/privacy$`), PageStaticPrivacy},
}

// Canonicalize strips the fragment, query and trailing slashes, and maps an
// empty result to "/". Absolute URLs are reduced to their path.
func Canonicalize(path string) string {
	p := strings.TrimSpace(path)
	if i := strings.IndexByte(p, '#'); i >= 0 {
		p = p[:i]
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if i := strings.Index(p, "://"); i >= 0 {
		rest := p[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			p = rest[j:]
		} else {
			p = ""
		}
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Classify maps a path to its page type.
func Classify(path string) PageType {
	p := Canonicalize(path)
	for _, pat := range patterns {
		if pat.re.MatchString(p) {
			return pat.page
		}
	}
	return PageUnknown
}
