// internal/extract/text.go
package extract

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CleanHTML removes scripts, embeds and form controls from a description
// fragment and strips every attribute except link and image targets
func CleanHTML(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, link, meta, noscript, iframe, svg, form, input, button, select, textarea, canvas").Remove()

	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		node := s.Get(0)
		var kept []html.Attribute
		for _, attr := range node.Attr {
			switch {
			case node.Data == "a" && attr.Key == "href",
				node.Data == "img" && (attr.Key == "src" || attr.Key == "alt"):
				kept = append(kept, attr)
			}
		}
		node.Attr = kept
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Markdown converts a description fragment to Markdown. Plain text passes
// through with whitespace collapsed.
func Markdown(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return collapseSpace(fragment)
	}

	cleaned, err := CleanHTML(fragment)
	if err != nil {
		return collapseSpace(fragment)
	}

	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(cleaned)
	if err != nil {
		return collapseSpace(fragment)
	}
	return strings.TrimSpace(out)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
