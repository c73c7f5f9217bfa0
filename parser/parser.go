// Package parser turns fetched bytes into a queryable HTML document.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrParse marks content that could not be turned into a Document.
var ErrParse = errors.New("parse failure")

// Document is a parsed page. Implementations must be safe for concurrent reads.
type Document interface {
	// AttrValues returns the value of attr for every tag element that
	// carries it, in document order.
	AttrValues(tag, attr string) []string
	// Text returns the text content with the subtrees of the skip elements
	// removed. Inline text is concatenated as is; block boundaries and <br>
	// are separated by a space.
	Text(skip ...string) string
}

// HTMLParser parses HTML with goquery.
type HTMLParser struct{}

// Parse builds a Document from content. It fails for empty content and for
// media types that are not textual.
func (HTMLParser) Parse(content []byte, contentType string) (Document, error) {
	doc, err := Parse(content, contentType)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Parse is the concrete form of HTMLParser.Parse.
func Parse(content []byte, contentType string) (*HTMLDocument, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrParse)
	}
	if !isTextual(contentType) {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrParse, contentType)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &HTMLDocument{doc: doc}, nil
}

func isTextual(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil && !errors.Is(err, mime.ErrInvalidMediaParameter) {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/xhtml+xml", mediaType == "application/xml":
		return true
	default:
		return false
	}
}

// HTMLDocument is the goquery-backed Document. A nil *HTMLDocument behaves as
// an empty document.
type HTMLDocument struct {
	doc *goquery.Document
}

// AttrValues implements Document.
func (d *HTMLDocument) AttrValues(tag, attr string) []string {
	if d == nil || d.doc == nil {
		return nil
	}
	var out []string
	d.doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok {
			out = append(out, v)
		}
	})
	return out
}

// Text implements Document.
func (d *HTMLDocument) Text(skip ...string) string {
	if d == nil || d.doc == nil {
		return ""
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, tag := range skip {
		skipped[strings.ToLower(tag)] = struct{}{}
	}

	var sb strings.Builder
	for _, n := range d.doc.Nodes {
		collectText(n, skipped, &sb)
	}
	return sb.String()
}

// blockTags end a run of inline text.
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "body": {},
	"br": {}, "caption": {}, "dd": {}, "details": {}, "dialog": {}, "div": {},
	"dl": {}, "dt": {}, "fieldset": {}, "figcaption": {}, "figure": {},
	"footer": {}, "form": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {},
	"h6": {}, "head": {}, "header": {}, "hr": {}, "html": {}, "li": {},
	"main": {}, "nav": {}, "ol": {}, "option": {}, "p": {}, "pre": {},
	"section": {}, "summary": {}, "table": {}, "tbody": {}, "td": {},
	"tfoot": {}, "th": {}, "thead": {}, "title": {}, "tr": {}, "ul": {},
}

func collectText(n *html.Node, skip map[string]struct{}, sb *strings.Builder) {
	block := false
	if n.Type == html.ElementNode {
		if _, ok := skip[n.Data]; ok {
			return
		}
		_, block = blockTags[n.Data]
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	if block {
		sb.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, skip, sb)
	}
	if block {
		sb.WriteString(" ")
	}
}
