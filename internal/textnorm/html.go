package textnorm

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
)

// Elements whose subtrees carry no prose worth embedding.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
}

const maxHTMLDepth = 50

// StripHTML parses s as an HTML fragment and returns its visible text.
// Entities are decoded by the parser. Malformed input falls back to the
// raw string rather than failing the pipeline.
func StripHTML(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var sb strings.Builder
	walkText(doc, &sb, 0)
	return sb.String()
}

// StripMarkdown renders s as Markdown and extracts the visible text from
// the resulting HTML, shedding emphasis markers, link targets, and list
// syntax in one pass.
func StripMarkdown(s string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(s), &buf); err != nil {
		return s
	}
	return StripHTML(buf.String())
}

func walkText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > maxHTMLDepth {
		return
	}
	if n.Type == html.ElementNode && skipElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	}
	// Block-level elements become line breaks so adjacent blocks do not
	// run into a single word.
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb, depth+1)
	}
}
