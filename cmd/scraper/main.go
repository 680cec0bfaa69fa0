package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/pipeline"
	"github.com/aluiziolira/go-scrape-products/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()
	baseURLDefault := defaultCfg.BaseURL
	if value, ok := config.EnvString("SCRAPER_BASE_URL"); ok {
		baseURLDefault = value
	}
	pagesDefault := defaultCfg.PageCount
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	modeDefault := defaultCfg.Mode
	if value, ok := config.EnvString("SCRAPER_MODE"); ok {
		modeDefault = value
	}
	parallelDefault := defaultCfg.Parallelism
	if value, ok, err := config.EnvInt("SCRAPER_PARALLEL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_PARALLEL: %v\n", err)
		os.Exit(1)
	} else if ok {
		parallelDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	formatDefault := defaultCfg.OutputFormat
	if value, ok := config.EnvString("SCRAPER_FORMAT"); ok {
		formatDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	cfg := config.DefaultConfig()
	flag.StringVar(&cfg.BaseURL, "base-url", baseURLDefault, "Collection URL; pages are requested as <base-url>?page=N")
	flag.IntVar(&cfg.PageCount, "pages", pagesDefault, "Number of listing pages to fetch")
	flag.StringVar(&cfg.Mode, "mode", modeDefault, "Fetch scheduling: concurrent or sequential")
	flag.IntVar(&cfg.Parallelism, "parallel", parallelDefault, "Maximum concurrent requests (0 = all pages at once)")
	delayMs := flag.Int("delay", 0, "Delay between requests (milliseconds)")
	randomDelayMs := flag.Int("random-delay", 0, "Random jitter added to delay (milliseconds)")
	timeoutMs := flag.Int("timeout", 0, "Request timeout (milliseconds, 0 = client default)")
	flag.StringVar(&cfg.UserAgent, "user-agent", "", "User-Agent header (empty = client default)")
	flag.StringVar(&cfg.CacheDir, "cache", "", "Response cache directory (empty = disabled)")
	flag.BoolVar(&cfg.AcceptErrorPages, "accept-error-pages", false, "Parse non-2xx responses instead of failing the run")
	flag.StringVar(&cfg.Selectors.Item, "item-selector", cfg.Selectors.Item, "CSS selector for a product block")
	flag.StringVar(&cfg.Selectors.Name, "name-selector", cfg.Selectors.Name, "CSS selector for the product name within a block")
	flag.StringVar(&cfg.Selectors.Price, "price-selector", cfg.Selectors.Price, "CSS selector for the price within a block")
	flag.StringVar(&cfg.Selectors.Stock, "stock-selector", cfg.Selectors.Stock, "CSS selector for the stock status within a block")
	flag.StringVar(&cfg.OutputFile, "output", outputDefault, "Output file path for csv, json, or dual formats")
	format := flag.String("format", formatDefault, "Output format: stdout, csv, json, or dual")
	flag.IntVar(&cfg.DedupeMaxSize, "dedupe", 0, "Drop repeated records, remembering up to N (0 = keep duplicates)")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable verbose logging")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.RandomDelay = time.Duration(*randomDelayMs) * time.Millisecond
	cfg.Timeout = time.Duration(*timeoutMs) * time.Millisecond
	cfg.Mode = strings.ToLower(cfg.Mode)
	cfg.OutputFormat = strings.ToLower(*format)

	logger, level := newLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.PageCount),
		slog.String("mode", cfg.Mode),
		slog.Int("parallel", cfg.Parallelism),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start()
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, err := s.Run(ctx, p)
	if err != nil {
		_ = p.Close()
		slog.Error("scraping failed", slog.Any("error", err))
		return 1
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		return 1
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return 1
	}

	printSummary(os.Stderr, result, cfg, p.GetMetrics())
	return 0
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "stdout":
		return pipeline.NewTupleWriter(os.Stdout), nil
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(w io.Writer, result *models.ScrapeResult, cfg *config.Config, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")

	written := int64(0)
	if value, ok := metrics["written_products"].(int64); ok {
		written = value
	}

	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Products:      %d\n", len(result.Products))
	fmt.Fprintf(w, "  Written:       %d\n", written)
	fmt.Fprintf(w, "  Dropped items: %d\n", result.DroppedItems)
	fmt.Fprintf(w, "  Empty pages:   %d\n", result.EmptyPages)
	if duplicates, ok := metrics["duplicates"].(int64); ok && duplicates > 0 {
		fmt.Fprintf(w, "  Duplicates:    %d\n", duplicates)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	if cfg.OutputFormat != "stdout" {
		fmt.Fprintf(w, "  Output file:   %s\n", cfg.OutputFile)
	}
	fmt.Fprintln(w, separator)
}

func newLogger(out *os.File, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(out) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
