package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th, dt, dd"

// HTMLExtractor renders the readable text of an HTML page. Headings become
// Markdown "#" lines so the chunker can track sections.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(_ context.Context, data []byte) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, nav, header, footer, noscript, iframe, svg").Remove()

	var blocks []string
	doc.Find("body").Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (a <p> inside an <li>) are covered by their parent.
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}

		var text string
		if goquery.NodeName(s) == "pre" {
			text = strings.TrimSpace(s.Text())
		} else {
			text = strings.Join(strings.Fields(s.Text()), " ")
		}
		if text == "" {
			return
		}

		switch name := goquery.NodeName(s); name {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(name[1] - '0')
			text = strings.Repeat("#", level) + " " + text
		case "li":
			text = "- " + text
		}
		blocks = append(blocks, text)
	})

	if len(blocks) == 0 {
		text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
		return &Result{Text: text, Format: "html"}, nil
	}

	hints := map[string]string{}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		hints["title"] = title
	}
	return &Result{Text: strings.Join(blocks, "\n\n"), Format: "html", Hints: hints}, nil
}
