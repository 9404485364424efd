package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func walkText(node *html.Node, visit func(text string)) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		visit(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walkText(child, visit)
	}
}

// TextFragments returns the trimmed, non-empty text nodes under the
// selection in document order.
func TextFragments(sel *goquery.Selection) []string {
	var fragments []string
	for _, n := range sel.Nodes {
		walkText(n, func(text string) {
			text = strings.TrimSpace(text)
			if text == "" {
				return
			}
			fragments = append(fragments, text)
		})
	}
	return fragments
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
}

// CleanText strips non-printable characters, trims and collapses inner whitespace.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.TrimSpace(s)
	return innerWhitespace.ReplaceAllString(s, " ")
}

// Text is CleanText over the text of a selection.
func Text(sel *goquery.Selection) string {
	return CleanText(sel.Text())
}
