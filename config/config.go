package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Scheduling modes for page fetches.
const (
	ModeConcurrent = "concurrent"
	ModeSequential = "sequential"
)

// Selectors describes where product fields live in a listing page.
// Each value is a CSS selector; field selectors are evaluated inside an item.
type Selectors struct {
	Item  string
	Name  string
	Price string
	Stock string
}

// DefaultSelectors matches the product grid markup of the demo shop. Field
// selectors compare the whole class attribute, so reordered or extra classes
// do not match.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:  "div.product-item",
		Name:  `a[class="product-item__title text--strong link"]`,
		Price: `span[class="price price--highlight"]`,
		Stock: `span[class="product-item__inventory inventory inventory--high"]`,
	}
}

// Validate reports the first empty selector.
func (s Selectors) Validate() error {
	switch {
	case strings.TrimSpace(s.Item) == "":
		return fmt.Errorf("item selector cannot be empty")
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("name selector cannot be empty")
	case strings.TrimSpace(s.Price) == "":
		return fmt.Errorf("price selector cannot be empty")
	case strings.TrimSpace(s.Stock) == "":
		return fmt.Errorf("stock selector cannot be empty")
	}
	return nil
}

// Config holds scraper configuration.
type Config struct {
	BaseURL          string
	PageCount        int
	Mode             string // concurrent or sequential
	Parallelism      int    // 0 keeps every page in flight at once
	Delay            time.Duration
	RandomDelay      time.Duration
	Timeout          time.Duration // 0 leaves the client default in place
	UserAgent        string
	CacheDir         string
	AcceptErrorPages bool
	Selectors        Selectors
	OutputFile       string
	OutputFormat     string // stdout, csv, json, or dual
	BatchSize        int
	DedupeMaxSize    int
	Verbose          bool
	MetricsAddr      string
}

// DefaultConfig returns the settings of the reference run: one shop
// collection, 23 pages, all fetched concurrently and printed to stdout.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://www.books4people.co.uk/collections/product-0-to-5",
		PageCount:     23,
		Mode:          ModeConcurrent,
		Parallelism:   0,
		Selectors:     DefaultSelectors(),
		OutputFile:    "output/products.csv",
		OutputFormat:  "stdout",
		BatchSize:     64,
		DedupeMaxSize: 0,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.PageCount <= 0 {
		return fmt.Errorf("page count must be positive")
	}
	if c.Mode != ModeConcurrent && c.Mode != ModeSequential {
		return fmt.Errorf("mode must be %s or %s", ModeConcurrent, ModeSequential)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if err := c.Selectors.Validate(); err != nil {
		return err
	}
	switch c.OutputFormat {
	case "stdout":
	case "csv", "json", "dual":
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty for %s output", c.OutputFormat)
		}
	default:
		return fmt.Errorf("output format must be stdout, csv, json, or dual")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}

	return nil
}

// EnvString returns the trimmed value of an environment variable if set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment variable if set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
