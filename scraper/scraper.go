package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
	"github.com/aluiziolira/go-scrape-products/pipeline"
)

// Scraper fetches every listing page and extracts its products.
type Scraper struct {
	cfg       *config.Config
	fetcher   *Fetcher
	extractor *parser.Extractor
	Metrics   *Metrics

	requestCount int64
	errorCount   int64
	droppedCount int64
	emptyPages   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:          cfg,
		fetcher:      fetcher,
		extractor:    parser.NewExtractor(cfg.Selectors),
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}, nil
}

// Scrape returns the products of pages 1..PageCount in page order, then
// document order within a page. Any failed fetch fails the whole scrape and
// no products are returned.
func (s *Scraper) Scrape(ctx context.Context) ([]models.Product, error) {
	if s.cfg.Mode == config.ModeSequential {
		return s.scrapeSequential(ctx)
	}
	return s.scrapeConcurrent(ctx)
}

// Run scrapes every page and hands the ordered records to the pipeline.
// Nothing reaches the pipeline when the scrape fails.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
	start := time.Now()

	products, err := s.Scrape(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.Process(products...); err != nil {
		return nil, fmt.Errorf("process products: %w", err)
	}

	return &models.ScrapeResult{
		Products:     products,
		StartTime:    start,
		EndTime:      time.Now(),
		PageCount:    s.cfg.PageCount,
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		DroppedItems: int(atomic.LoadInt64(&s.droppedCount)),
		EmptyPages:   int(atomic.LoadInt64(&s.emptyPages)),
		ErrorsByType: s.snapshotErrors(),
	}, nil
}

// scrapeConcurrent launches every fetch before parsing anything.
func (s *Scraper) scrapeConcurrent(ctx context.Context) ([]models.Product, error) {
	bodies := make([]string, s.cfg.PageCount)

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.Parallelism > 0 {
		g.SetLimit(s.cfg.Parallelism)
	}
	for i := range bodies {
		page := i + 1
		g.Go(func() error {
			body, err := s.fetch(gctx, page)
			if err != nil {
				return err
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var products []models.Product
	for i, body := range bodies {
		products = append(products, s.parse(body, i+1)...)
	}
	return products, nil
}

func (s *Scraper) scrapeSequential(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	for page := 1; page <= s.cfg.PageCount; page++ {
		body, err := s.fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		products = append(products, s.parse(body, page)...)
	}
	return products, nil
}

func (s *Scraper) fetch(ctx context.Context, page int) (string, error) {
	atomic.AddInt64(&s.requestCount, 1)
	body, err := s.fetcher.Fetch(ctx, page)
	if err != nil {
		atomic.AddInt64(&s.errorCount, 1)
		s.mu.Lock()
		s.errorsByType[ErrorType(err)]++
		s.mu.Unlock()
		return "", err
	}
	return body, nil
}

func (s *Scraper) parse(body string, page int) []models.Product {
	products, stats := s.extractor.ExtractPage(body, page)

	s.Metrics.AddItems(len(products), stats.Dropped)
	atomic.AddInt64(&s.droppedCount, int64(stats.Dropped))
	if stats.Blocks == 0 {
		atomic.AddInt64(&s.emptyPages, 1)
		s.Metrics.IncEmptyPage()
		slog.Warn("no product blocks matched",
			slog.Int("page", page),
			slog.String("selector", s.cfg.Selectors.Item),
		)
	}
	return products
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
