package scraper

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// HTMLExtractor is the default Extractor, built on x/net/html.
type HTMLExtractor struct{}

// NewHTMLExtractor returns the default extractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract walks the DOM collecting the text fields the pipeline analyzes.
func (e *HTMLExtractor) Extract(raw []byte) (*ExtractedContent, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	content := &ExtractedContent{}
	var mainParts []string
	var walk func(n *html.Node, skip bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			content.ElementCount++
			switch n.Data {
			case "script", "style", "noscript":
				skip = true
			case "title":
				content.Title = nodeText(n)
			case "meta":
				if attr(n, "name") == "description" {
					content.MetaDescription = attr(n, "content")
				}
			case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li":
				if text := strings.TrimSpace(nodeText(n)); text != "" {
					content.TextBlocks = append(content.TextBlocks, text)
				}
			}
			if src := attr(n, "src"); src != "" && isExternal(src) {
				content.ExternalResources = append(content.ExternalResources, src)
			}
			if n.Data == "link" {
				if href := attr(n, "href"); href != "" && isExternal(href) {
					content.ExternalResources = append(content.ExternalResources, href)
				}
			}
		}
		if n.Type == html.TextNode && !skip {
			if text := strings.TrimSpace(n.Data); text != "" {
				mainParts = append(mainParts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	content.MainContent = strings.Join(mainParts, " ")
	return content, nil
}

func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, "")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isExternal(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") ||
		strings.HasPrefix(url, "//")
}
