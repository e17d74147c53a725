package extraction

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	serrors "scraper/errors"
	"scraper/etl/page"
)

// osTableWidth is the exact field count an official-statements row must
// carry to be emitted.
const osTableWidth = 7

func parseFragment(fragment string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(fragment))
}

// parseElement splits an element's text content into segments and emits
// one row per segment, suffixed with the timestamp and the supplemental
// fields. Excluded tags are removed before the text is read.
func parseElement(innerHTML string, ext Extraction, supplemental []string) ([]Row, error) {
	doc, err := parseFragment(innerHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", serrors.ErrParseElement, err)
	}
	for tag := range ext.ExcludeTags {
		doc.Find(tag).Remove()
	}

	ts := page.Timestamp()
	var rows []Row
	for _, segment := range textSegments(doc) {
		var row Row
		row.add(page.Sanitize(segment, ext.InvalidOutput))
		row.Cells = append(row.Cells, ts)
		row.Cells = append(row.Cells, supplemental...)
		rows = append(rows, row)
	}
	return rows, nil
}

// segmentSeparator both joins the document's text nodes and splits the
// result, so a separator appearing literally in the page text also
// delimits segments.
const segmentSeparator = "&&&"

// textSegments walks the document's text nodes in order and returns the
// trimmed, non-empty segments.
func textSegments(doc *goquery.Document) []string {
	var pieces []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				pieces = append(pieces, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, node := range doc.Selection.Nodes {
		walk(node)
	}

	var segments []string
	for _, piece := range strings.Split(strings.Join(pieces, segmentSeparator), segmentSeparator) {
		if segment := strings.TrimSpace(piece); segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// removeExcluded drops every element matching an excluded tag that
// carries one of the tag's listed attributes.
func removeExcluded(doc *goquery.Document, excludeTags map[string][]string) {
	for tag, attrs := range excludeTags {
		doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range attrs {
				if _, ok := s.Attr(attr); ok {
					s.Remove()
					return
				}
			}
		})
	}
}

// parseIssuerTable turns the issuer table into rows: cleaned cell texts,
// each anchor's absolute link, then timestamp and supplemental fields.
func parseIssuerTable(outerHTML string, ext Extraction, supplemental []string) ([]Row, error) {
	doc, err := parseFragment(outerHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", serrors.ErrParseTable, err)
	}
	removeExcluded(doc, ext.ExcludeTags)

	ts := page.Timestamp()
	var rows []Row
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row Row
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			if text := strings.TrimSpace(cell.Text()); text != "" {
				row.add(page.Sanitize(text, ext.InvalidOutput))
			}
			if href, ok := cell.Find("a[href]").First().Attr("href"); ok {
				row.Cells = append(row.Cells, linkPrefix+href)
			}
		})
		row.Cells = append(row.Cells, ts)
		row.Cells = append(row.Cells, supplemental...)
		rows = append(rows, row)
	})
	return rows, nil
}

// parseIssueScaleTable is the issuer-table shape plus the image cells:
// an anchor wrapping an image yields the recognized CUSIP, the anchor's
// absolute link, and the link's last path segment; a data-rating image
// yields the recognized rating. Without a composite connection the raw
// image URLs are recorded instead.
func (m *Manager) parseIssueScaleTable(outerHTML string, ext Extraction, supplemental []string) ([]Row, error) {
	doc, err := parseFragment(outerHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", serrors.ErrParseTable, err)
	}
	removeExcluded(doc, ext.ExcludeTags)

	ts := page.Timestamp()
	var rows []Row
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row Row
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			if text := strings.TrimSpace(cell.Text()); text != "" {
				row.add(page.Sanitize(text, ext.InvalidOutput))
			}

			anchor := cell.Find("a[href]").First()
			if href, ok := anchor.Attr("href"); ok {
				cusipLink := linkPrefix + href
				if src, ok := anchor.Find("img[src]").First().Attr("src"); ok {
					ocrLink := linkPrefix + src
					if m.ocrPage != nil && m.recognizer != nil {
						row.Cells = append(row.Cells, m.recognizer.Cusip(m.ocrPage, ocrLink))
						row.Cells = append(row.Cells, cusipLink)
						split := strings.Split(cusipLink, "/")
						row.Cells = append(row.Cells, split[len(split)-1])
					} else {
						row.Cells = append(row.Cells, ocrLink)
						row.Cells = append(row.Cells, cusipLink)
					}
				}
			}

			if src, ok := cell.Find("img[src][data-rating]").First().Attr("src"); ok {
				ocrLink := linkPrefix + src
				if m.ocrPage != nil && m.recognizer != nil {
					row.Cells = append(row.Cells, m.recognizer.Rating(m.ocrPage, ocrLink))
				} else {
					row.Cells = append(row.Cells, ocrLink)
				}
			}
		})
		row.Cells = append(row.Cells, ts)
		row.Cells = append(row.Cells, supplemental...)
		rows = append(rows, row)
	})
	return rows, nil
}

// parseOSTable collects only the absolute document links from each row,
// suffixed as usual, and emits rows that carry exactly osTableWidth
// fields.
func parseOSTable(outerHTML string, supplemental []string) ([]Row, error) {
	doc, err := parseFragment(outerHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", serrors.ErrParseTable, err)
	}

	ts := page.Timestamp()
	var rows []Row
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row Row
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			if href, ok := cell.Find("a[href]").First().Attr("href"); ok {
				row.Cells = append(row.Cells, linkPrefix+href)
			}
		})
		row.Cells = append(row.Cells, ts)
		row.Cells = append(row.Cells, supplemental...)
		if len(row.Cells) == osTableWidth {
			rows = append(rows, row)
		}
	})
	return rows, nil
}
