// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"time"
)

// Product is one listing extracted from a catalogue page. Field values are
// the raw element text as found in the markup.
type Product struct {
	Name  string `csv:"name" json:"name"`
	Price string `csv:"price" json:"price"`
	Stock string `csv:"stock" json:"stock"`
	Page  int    `csv:"page" json:"page"`
}

// String renders the product as a (name, price, stock) tuple. Fields are
// quoted and escaped, so a record always fits on one line.
func (p Product) String() string {
	return fmt.Sprintf("(%q, %q, %q)", p.Name, p.Price, p.Stock)
}

// Key identifies a product by its extracted fields.
func (p Product) Key() string {
	return p.Name + "\x00" + p.Price + "\x00" + p.Stock
}

// ScrapeResult holds the overall result of a scraping operation
type ScrapeResult struct {
	Products     []Product
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	RequestCount int
	ErrorCount   int
	DroppedItems int
	EmptyPages   int
	ErrorsByType map[string]int
}
