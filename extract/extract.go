// Package extract derives text, links and image URLs from a parsed document.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-pages/parser"
)

// Elements whose content never counts as visible text.
var nonContentTags = []string{"script", "style", "noscript", "template"}

const dedupFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagRemoveDefaultPort

const defaultKeyCacheSize = 4096

// Extractor keeps a cache of normalized dedup keys shared across documents;
// results still depend only on the document and the base URL. It is safe for
// concurrent use, and the zero value works without a cache.
type Extractor struct {
	keys *lru.Cache[string, string]
}

// New returns an Extractor with a key cache of the default size.
func New() *Extractor {
	return NewWithCacheSize(defaultKeyCacheSize)
}

// NewWithCacheSize returns an Extractor whose key cache holds up to size
// entries. A size below one disables the cache.
func NewWithCacheSize(size int) *Extractor {
	if size < 1 {
		return &Extractor{}
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		panic(err)
	}
	return &Extractor{keys: cache}
}

// Text returns the visible text of doc with whitespace runs collapsed to a
// single space. A nil document yields "".
func (e *Extractor) Text(doc parser.Document) string {
	if doc == nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text(nonContentTags...)), " ")
}

// Links returns the absolute targets of the document's hyperlinks in
// first-seen order without duplicates. In-page fragment references are
// dropped.
func (e *Extractor) Links(doc parser.Document, baseURL string) []string {
	if doc == nil {
		return []string{}
	}
	base := e.effectiveBase(doc, baseURL)
	return e.collect(doc.AttrValues("a", "href"), base, true)
}

// Images returns the absolute image sources in first-seen order without
// duplicates.
func (e *Extractor) Images(doc parser.Document, baseURL string) []string {
	if doc == nil {
		return []string{}
	}
	base := e.effectiveBase(doc, baseURL)
	return e.collect(doc.AttrValues("img", "src"), base, false)
}

func (e *Extractor) collect(refs []string, base *url.URL, skipFragments bool) []string {
	out := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if skipFragments && strings.HasPrefix(ref, "#") {
			continue
		}
		abs, ok := resolve(ref, base)
		if !ok {
			continue
		}
		key := e.dedupKey(abs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, abs)
	}
	return out
}

// resolve returns ref unchanged when it already carries a scheme, otherwise
// ref resolved against base. ok is false when no absolute URL results.
func resolve(ref string, base *url.URL) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "" {
		return ref, true
	}
	if base == nil {
		return "", false
	}
	abs := base.ResolveReference(u)
	if !abs.IsAbs() {
		return "", false
	}
	return abs.String(), true
}

// effectiveBase parses baseURL and applies a <base href> found in doc.
func (e *Extractor) effectiveBase(doc parser.Document, baseURL string) *url.URL {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return nil
	}
	for _, href := range doc.AttrValues("base", "href") {
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		if rebased, err := base.Parse(href); err == nil && rebased.IsAbs() {
			return rebased
		}
		break
	}
	return base
}

// dedupKey normalizes abs for duplicate detection. Pages of one site repeat
// the same navigation links, so keys are memoized across documents.
func (e *Extractor) dedupKey(abs string) string {
	if e.keys != nil {
		if key, ok := e.keys.Get(abs); ok {
			return key
		}
	}
	key, err := purell.NormalizeURLString(abs, dedupFlags)
	if err != nil {
		key = abs
	}
	if e.keys != nil {
		e.keys.Add(abs, key)
	}
	return key
}
