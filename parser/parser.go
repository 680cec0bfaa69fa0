// Package parser turns catalogue page markup into product records.
package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
)

// MissingFieldError reports an item block lacking one of its fields.
type MissingFieldError struct {
	Field    string
	Selector string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("missing %s field (%s)", e.Field, e.Selector)
}

// Stats counts what happened while extracting one page.
type Stats struct {
	Blocks  int
	Dropped int
}

// Extractor pulls product records out of listing pages using a selector table.
type Extractor struct {
	selectors config.Selectors
}

// NewExtractor builds an extractor for the given selectors.
func NewExtractor(selectors config.Selectors) *Extractor {
	return &Extractor{selectors: selectors}
}

// Extract returns every complete product on the page in document order.
// Items missing a field are skipped; markup that cannot be read yields nil.
func (x *Extractor) Extract(html string) []models.Product {
	products, _ := x.ExtractPage(html, 0)
	return products
}

// ExtractPage is Extract with the page number stamped on each record and
// counters for the blocks seen and dropped.
func (x *Extractor) ExtractPage(html string, page int) ([]models.Product, Stats) {
	var stats Stats

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Warn("parse page", slog.Int("page", page), slog.Any("error", err))
		return nil, stats
	}

	var products []models.Product
	doc.Find(x.selectors.Item).Each(func(i int, item *goquery.Selection) {
		stats.Blocks++
		product, ok, err := x.ExtractItem(item)
		if !ok {
			stats.Dropped++
			slog.Debug("skipping product block",
				slog.Int("page", page),
				slog.Int("index", i),
				slog.Any("error", err),
			)
			return
		}
		product.Page = page
		products = append(products, product)
	})

	return products, stats
}

// ExtractItem reads the three fields of one item block. ok is false, with a
// MissingFieldError, when any field selector matches nothing.
func (x *Extractor) ExtractItem(item *goquery.Selection) (models.Product, bool, error) {
	price, err := x.field(item, "price", x.selectors.Price)
	if err != nil {
		return models.Product{}, false, err
	}
	name, err := x.field(item, "name", x.selectors.Name)
	if err != nil {
		return models.Product{}, false, err
	}
	stock, err := x.field(item, "stock", x.selectors.Stock)
	if err != nil {
		return models.Product{}, false, err
	}

	return models.Product{
		Name:  name,
		Price: price,
		Stock: stock,
	}, true, nil
}

func (x *Extractor) field(item *goquery.Selection, field, selector string) (string, error) {
	match := item.Find(selector).First()
	if match.Length() == 0 {
		return "", MissingFieldError{Field: field, Selector: selector}
	}
	return match.Text(), nil
}
