package scraper

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const webpSourceSelector = `source[type="image/webp"]`

var (
	ErrNoWebpSource = errors.New("no webp source element")
	ErrEmptySrcset  = errors.New("webp source has no srcset candidate")
)

// ExtractInstructionImage returns the first URL candidate of the srcset of
// the first webp <source> in the document.
func ExtractInstructionImage(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	srcset, ok := doc.Find(webpSourceSelector).First().Attr("srcset")
	if !ok {
		return "", ErrNoWebpSource
	}

	candidate := firstCandidate(srcset)
	if candidate == "" {
		return "", ErrEmptySrcset
	}
	return candidate, nil
}

// firstCandidate keeps what precedes the first comma, then what precedes the
// first space: "a.webp 1x, b.webp 2x" -> "a.webp".
func firstCandidate(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	first = strings.TrimSpace(first)
	url, _, _ := strings.Cut(first, " ")
	return url
}
