package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fillMetadataFromHTML recovers title and description from the page head when
// the provider did not report them.
func fillMetadataFromHTML(meta *Metadata, html string) {
	if meta.Title != "" && meta.Description != "" {
		return
	}
	if strings.TrimSpace(html) == "" {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}

	if meta.Title == "" {
		meta.Title = firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
			strings.TrimSpace(doc.Find("h1").First().Text()),
		)
	}
	if meta.Description == "" {
		meta.Description = firstNonEmpty(
			metaContent(doc, `meta[name="description"]`),
			metaContent(doc, `meta[property="og:description"]`),
		)
	}
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
