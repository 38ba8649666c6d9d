package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skippedPrefixes are href values that never point at a fetchable resource.
var skippedPrefixes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

// ExtractLinks returns the normalized targets of every <a href> in the
// document, resolved against pageURL (or a <base href> when the document has
// one), in document order. Duplicates within the page and references that
// fail to normalize are dropped.
func ExtractLinks(r io.Reader, pageURL string) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	base := pageURL
	if b := findBaseHref(doc); b != "" {
		base = resolveBase(pageURL, b)
	}

	seen := make(map[string]struct{})
	var links []string
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			continue
		}
		href := strings.TrimSpace(getAttr(n, "href"))
		if href == "" || hasSkippedPrefix(href) {
			continue
		}
		link, err := Normalize(href, base)
		if err != nil {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links, nil
}

func findBaseHref(doc *html.Node) string {
	for n := range doc.Descendants() {
		if n.Type == html.ElementNode && n.DataAtom == atom.Base {
			return strings.TrimSpace(getAttr(n, "href"))
		}
	}
	return ""
}

// resolveBase resolves a <base href> against the page URL, keeping its
// trailing slash so relative links resolve beneath it.
func resolveBase(pageURL, href string) string {
	page, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return pageURL
	}
	return page.ResolveReference(ref).String()
}

func hasSkippedPrefix(href string) bool {
	lower := strings.ToLower(href)
	for _, p := range skippedPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// getAttr returns the value of an attribute, or empty string if not found.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// isHTML reports whether a Content-Type header denotes an HTML document.
func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
