// Package sanitize strips page chrome from rendered HTML and narrows it to the
// main content region.
package sanitize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var denylist = []string{
	"nav", "footer", "header", "aside",
	"script", "style", "iframe", "noscript",
	".ad", ".advertisement", "#ads",
	"[role='navigation']", "[role='banner']", "[role='complementary']",
	"[aria-label='Advertisement']",
}

var priority = []string{
	"main",
	"article",
	"div.content",
	"div#content",
	"div[role='main']",
	"body",
}

// Denylist returns the selectors removed before region selection.
func Denylist() []string { return append([]string(nil), denylist...) }

// Priority returns the content region selectors in the order they are tried.
func Priority() []string { return append([]string(nil), priority...) }

// Query is the read-only view of a parsed document that region selection
// needs.
type Query interface {
	// First returns the outer markup of the first element matching selector.
	First(selector string) (markup string, ok bool)
	// Document returns the markup of the whole document.
	Document() string
}

// SelectRegion returns the first non-empty match in priority order, falling
// back to the whole document.
func SelectRegion(q Query, priority []string) string {
	for _, sel := range priority {
		if markup, ok := q.First(sel); ok && strings.TrimSpace(markup) != "" {
			return markup
		}
	}
	return q.Document()
}

// Goquery implements extract.Sanitizer on top of goquery.
type Goquery struct {
	denySelector string
	priority     []string
	logger       *zap.Logger
}

// New returns a sanitizer using the default denylist and region priority.
func New(logger *zap.Logger) *Goquery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Goquery{
		denySelector: strings.Join(denylist, ", "),
		priority:     Priority(),
		logger:       logger,
	}
}

// Sanitize removes denylisted elements and returns the selected region.
// Markup that cannot be parsed is returned unchanged.
func (g *Goquery) Sanitize(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		g.logger.Debug("sanitize parse failed, passing markup through", zap.Error(err))
		return markup
	}
	removed := doc.Find(g.denySelector).Remove()
	g.logger.Debug("sanitized", zap.Int("removed", removed.Length()))
	return SelectRegion(document{doc: doc}, g.priority)
}

type document struct {
	doc *goquery.Document
}

func (d document) First(selector string) (string, bool) {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	markup, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", false
	}
	return markup, true
}

func (d document) Document() string {
	markup, err := d.doc.Html()
	if err != nil {
		return ""
	}
	return markup
}
