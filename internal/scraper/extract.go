// Package scraper turns thread pages into persisted comment records.
package scraper

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/dealtalk/dealtalk/internal/types"
)

// payloadSelector matches the embedded JSON the site ships with every
// server-rendered thread page.
const payloadSelector = `script#__NUXT_DATA__`

// Extraction is everything recoverable from one thread page.
type Extraction struct {
	DealTitle       string
	DealDescription string
	Comments        []types.Comment
}

// Extractor parses raw thread markup into comment records.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a new extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("component", "extractor")}
}

// Extract parses a fetched page. A page without a recognizable thread payload
// fails with *types.ParseError so callers can tell "no comments" apart from a
// broken extractor. Missing optional fields get placeholders instead.
func (e *Extractor) Extract(page *types.Page) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &types.ParseError{URL: page.URL, Reason: "unreadable markup", Err: err}
	}

	raw := doc.Find(payloadSelector).First().Text()
	if strings.TrimSpace(raw) == "" {
		return nil, &types.ParseError{URL: page.URL, Reason: "missing thread payload", Err: types.ErrNotThreadPage}
	}

	var data []any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, &types.ParseError{URL: page.URL, Reason: "undecodable thread payload", Err: err}
	}

	ext := &Extraction{}
	e.extractDealMeta(data, ext)

	for _, entry := range data {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		// Featured/top comments carry the text reference directly.
		if _, hasText := m["commentText"]; hasText {
			if _, hasAuthor := m["author"]; hasAuthor {
				c := types.Comment{
					Kind:   types.KindFeatured,
					Author: resolveString(data, m["author"]),
					Text:   stripMarkup(resolveText(data, m["commentText"])),
					Date:   resolveString(data, m["timestampFormatted"]),
				}
				if c.Author == "" {
					c.Author = types.PlaceholderAuthor
				}
				ext.Comments = append(ext.Comments, c)
			}
		}

		// Main comments nest the author and push the date into a footer block.
		if _, hasContent := m["commentContent"]; hasContent {
			if _, hasAuthor := m["commentAuthor"]; hasAuthor {
				c := types.Comment{
					Kind: types.KindMain,
					Text: stripMarkup(resolveText(data, m["commentContent"])),
				}
				if author, ok := resolveMap(data, m["commentAuthor"]); ok {
					c.Author = resolveString(data, author["username"])
				}
				if c.Author == "" {
					c.Author = types.PlaceholderAuthor
				}
				if footer, ok := resolveMap(data, m["commentSectionCommentFooter"]); ok {
					c.Date = resolveString(data, footer["timestampFormatted"])
				}
				ext.Comments = append(ext.Comments, c)
			}
		}
	}

	// The payload occasionally omits the deal block; fall back to the
	// rendered DOM before giving up on title and description.
	if ext.DealTitle == "" || ext.DealDescription == "" {
		e.fillMetaFromDOM(page.Body, ext)
	}

	e.logger.Debug("page extracted",
		"url", page.URL,
		"comments", len(ext.Comments),
		"title", ext.DealTitle != "",
	)

	return ext, nil
}

// extractDealMeta locates the main deal block and pulls title and body out of
// the reference table.
func (e *Extractor) extractDealMeta(data []any, ext *Extraction) {
	for _, entry := range data {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		ref, found := m["mainDesktopBlock"]
		if !found {
			continue
		}
		block, ok := resolveMap(data, ref)
		if !ok {
			continue
		}
		ext.DealTitle = resolveString(data, block["dealTitle"])
		if body := resolveString(data, block["bodyHtml"]); body != "" {
			ext.DealDescription = stripMarkup(body)
		}
		return
	}
}

// fillMetaFromDOM recovers title/description with XPath selectors against the
// rendered page.
func (e *Extractor) fillMetaFromDOM(body []byte, ext *Extraction) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return
	}
	if ext.DealTitle == "" {
		if node := htmlquery.FindOne(doc, "//h1"); node != nil {
			ext.DealTitle = strings.TrimSpace(htmlquery.InnerText(node))
		}
	}
	if ext.DealDescription == "" {
		if node := htmlquery.FindOne(doc, `//meta[@name="description"]`); node != nil {
			ext.DealDescription = strings.TrimSpace(htmlquery.SelectAttr(node, "content"))
		}
	}
}

// resolve follows one index into the payload's flat reference table.
func resolve(data []any, ref any) any {
	idx, ok := ref.(float64)
	if !ok {
		return nil
	}
	i := int(idx)
	if i < 0 || i >= len(data) {
		return nil
	}
	return data[i]
}

// resolveString resolves a reference expected to land on a string.
func resolveString(data []any, ref any) string {
	s, _ := resolve(data, ref).(string)
	return s
}

// resolveMap resolves a reference expected to land on an object.
func resolveMap(data []any, ref any) (map[string]any, bool) {
	m, ok := resolve(data, ref).(map[string]any)
	return m, ok
}

// resolveText resolves a comment body reference, which lands on either a
// string or an object whose htmlContent points at the string.
func resolveText(data []any, ref any) string {
	switch v := resolve(data, ref).(type) {
	case string:
		return v
	case map[string]any:
		return resolveString(data, v["htmlContent"])
	default:
		return ""
	}
}

var spacePat = regexp.MustCompile(`\s+`)

// stripMarkup flattens an HTML fragment to plain text.
func stripMarkup(fragment string) string {
	if fragment == "" {
		return ""
	}
	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(spacePat.ReplaceAllString(fragment, " "))
	}

	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(node)

	// Non-breaking spaces show up in forum markup
	text := strings.ReplaceAll(sb.String(), " ", " ")
	return strings.TrimSpace(spacePat.ReplaceAllString(text, " "))
}
