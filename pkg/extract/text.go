package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/3leaps/gotrawl/pkg/scratch"
)

// maxTextBytes bounds how much of a text-like file is read. Content past
// the cap is dropped, not an error.
const maxTextBytes = 8 << 20

// HTMLAdapter renders HTML to plain text: boilerplate elements are removed
// and the title is kept ahead of the body.
type HTMLAdapter struct{}

func (HTMLAdapter) Extract(_ context.Context, path string, _ *scratch.Manager) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	text, err := htmlToText(io.LimitReader(f, maxTextBytes))
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}

func htmlToText(r io.Reader) (string, error) {
	decoded, err := charset.NewReader(r, "text/html")
	if err != nil {
		return "", fmt.Errorf("detect html charset: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	// Strip boilerplate before flattening text nodes.
	doc.Find("script, style, noscript, nav, footer, aside, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	body := doc.Find("body").Text()
	if body == "" {
		body = doc.Text()
	}

	if title != "" {
		return flatten(title + " " + body), nil
	}
	return flatten(body), nil
}

// TextAdapter reads plain text with charset detection, covering the whole
// text/* family plus structured-text application types (json, xml, yaml).
type TextAdapter struct{}

func (TextAdapter) Extract(_ context.Context, path string, _ *scratch.Manager) (Result, error) {
	text, err := readTextFile(path)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}

func readTextFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open text: %w", err)
	}
	defer f.Close()

	decoded, err := charset.NewReader(io.LimitReader(f, maxTextBytes), "text/plain")
	if err != nil {
		return "", fmt.Errorf("detect text charset: %w", err)
	}
	raw, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return flatten(string(raw)), nil
}
