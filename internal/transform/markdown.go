// Package transform converts sanitized HTML into normalized Markdown.
package transform

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagemark/internal/extract"
)

type convertFunc func(html string) (string, error)

// Markdown implements extract.Transformer using html-to-markdown.
type Markdown struct {
	convert convertFunc
	logger  *zap.Logger
}

// NewMarkdown returns a transformer emitting ATX headings and "-" bullets.
func NewMarkdown(logger *zap.Logger) *Markdown {
	if logger == nil {
		logger = zap.NewNop()
	}
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithHeadingStyle(commonmark.HeadingStyleATX),
				commonmark.WithBulletListMarker("-"),
			),
		),
	)
	return &Markdown{
		convert: func(html string) (string, error) { return conv.ConvertString(html) },
		logger:  logger,
	}
}

// Transform converts markup to Markdown with link targets dropped. If the
// converter fails the plain text of the document is returned instead.
func (m *Markdown) Transform(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		m.logger.Warn("transform parse failed", zap.Error(extract.TransformError(err)))
		return Normalize(markup)
	}
	unwrapLinks(doc)

	html, err := doc.Html()
	if err == nil {
		var out string
		if out, err = m.convert(html); err == nil {
			return Normalize(out)
		}
	}

	m.logger.Warn("markdown conversion failed, falling back to text", zap.Error(extract.TransformError(err)))
	return plainText(doc)
}

// unwrapLinks replaces every anchor with its children.
func unwrapLinks(doc *goquery.Document) {
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithSelection(s.Contents())
	})
}

// Normalize strips trailing whitespace from each line and trims blank lines
// from both ends of the document.
func Normalize(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func plainText(doc *goquery.Document) string {
	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if f := strings.Join(strings.Fields(line), " "); f != "" {
			lines = append(lines, f)
		}
	}
	return strings.Join(lines, "\n")
}
