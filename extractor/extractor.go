// Package extractor turns listing-page markup into product records using
// forgiving selector cascades.
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/shelfscrape/models"
	"golang.org/x/net/html"
)

// cascade is an ordered list of selectors. The first one that matches
// anything wins. Within one selector, matches come in document order.
type cascade []cascadia.Selector

// candidateGroups locate the per-product container nodes.
var candidateGroups = cascade{
	cascadia.MustCompile(".product-miniature, .product-container, .product-listing-item, li.product"),
	cascadia.MustCompile("article, .product"),
}

var (
	nameCascade = cascade{
		cascadia.MustCompile(".product-name, a.product-name, h2, h3, .name, .product-title"),
		cascadia.MustCompile("a"),
	}
	priceCascade = cascade{
		cascadia.MustCompile(".price, .product-price, .product-price-and-shipping, .current-price"),
	}
	imageSelector = cascadia.MustCompile("img")
)

// imageAttrs are read in order; the first non-empty value is the locator.
var imageAttrs = []string{"data-src", "src"}

// all returns every node matched by the first selector that matches at
// least one descendant of s.
func (c cascade) all(s *goquery.Selection) *goquery.Selection {
	for _, sel := range c {
		if m := s.FindMatcher(sel); m.Length() > 0 {
			return m
		}
	}
	return nil
}

// first returns the first node, in document order, of the first selector
// that matches. It returns nil when nothing matches.
func (c cascade) first(s *goquery.Selection) *goquery.Selection {
	if m := c.all(s); m != nil {
		return m.First()
	}
	return nil
}

// Extract parses rawHTML and returns the accepted, deduplicated products in
// document order. It never fails: unparseable or unmatched input yields an
// empty slice.
func Extract(rawHTML string) []models.Product {
	products := []models.Product{}

	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return products
	}
	doc := goquery.NewDocumentFromNode(root)

	items := candidateGroups.all(doc.Selection)
	if items == nil {
		return products
	}

	seen := make(map[string]struct{})
	items.Each(func(_ int, it *goquery.Selection) {
		p, ok := extractCandidate(it)
		if !ok {
			return
		}
		if _, dup := seen[p.Name]; dup {
			return
		}
		seen[p.Name] = struct{}{}
		products = append(products, p)
	})

	return products
}

// extractCandidate reads the three fields of one candidate node and reports
// whether the result is complete enough to keep.
func extractCandidate(it *goquery.Selection) (models.Product, bool) {
	p := models.Product{
		Name:     textOf(nameCascade.first(it)),
		Price:    textOf(priceCascade.first(it)),
		ImageURL: imageLocator(it),
	}
	return p, accepted(p)
}

// accepted requires a name plus at least one of price or image.
func accepted(p models.Product) bool {
	return p.Name != "" && (p.Price != "" || p.ImageURL != "")
}

func textOf(s *goquery.Selection) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.Text())
}

// imageLocator returns the lazy-load or plain source of the first image
// under it.
func imageLocator(it *goquery.Selection) string {
	img := it.FindMatcher(imageSelector).First()
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range imageAttrs {
		if v, ok := img.Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}
