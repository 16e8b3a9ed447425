// Package page wraps a fetched HTML document with the views the extractors
// need: the goquery DOM, a normalized text rendering and the decoded JSON-LD.
package page

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var whitespace = regexp.MustCompile(`\s+`)

type Page struct {
	URL  *url.URL
	Host string
	HTML string
	Doc  *goquery.Document

	// Text is the visible text, lowercased with whitespace collapsed.
	Text string

	Nodes    []Node
	Problems []string
}

// New never fails: unparsable input yields an empty document.
func New(html, rawURL string) *Page {
	p := &Page{HTML: html}

	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		p.URL = u
		p.Host = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.Problems = append(p.Problems, "html: "+err.Error())
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	p.Doc = doc

	p.Nodes, p.Problems = decodeLinkedData(doc, p.Problems)
	p.Text = visibleText(doc)

	return p
}

var hiddenElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

// visibleText joins text nodes with a space so adjacent blocks such as
// "<div>Germany</div><div>Shipping</div>" do not run together.
func visibleText(doc *goquery.Document) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if hiddenElements[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return Normalize(b.String())
}

// Normalize lowercases s and collapses all whitespace runs to one space.
func Normalize(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(strings.ToLower(s), " "))
}

// CollapseSpace collapses whitespace without changing case.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Meta returns the content of the first <meta> whose property, name or
// itemprop equals one of names.
func (p *Page) Meta(names ...string) string {
	for _, name := range names {
		for _, attr := range []string{"property", "name", "itemprop"} {
			sel := p.Doc.Find(`meta[` + attr + `="` + name + `"]`).First()
			if content, ok := sel.Attr("content"); ok {
				if content = strings.TrimSpace(content); content != "" {
					return content
				}
			}
		}
	}
	return ""
}

// SelectText returns the collapsed text of the first selector that matches
// something non-empty.
func (p *Page) SelectText(selectors ...string) string {
	for _, selector := range selectors {
		text := CollapseSpace(p.Doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// SelectAttr returns the first non-empty attribute value among the
// selector/attribute pairs.
func (p *Page) SelectAttr(selector string, attrs ...string) string {
	sel := p.Doc.Find(selector).First()
	for _, attr := range attrs {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Title returns the document <title>.
func (p *Page) Title() string {
	return CollapseSpace(p.Doc.Find("head title").First().Text())
}
