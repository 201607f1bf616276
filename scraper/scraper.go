// Package scraper drives the term-by-term scrape of completed listings.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ebay-completed-tap/config"
	"ebay-completed-tap/models"
	"ebay-completed-tap/parser"
	"ebay-completed-tap/terms"
)

// Sink receives the schema declaration and each page's batch of listings.
// It is fire-and-forget: the scraper never reads anything back.
type Sink interface {
	WriteSchema() error
	Write(listings []*models.Listing) error
}

// Scraper paginates through completed-listings search results for every
// resolved term and streams records to a sink.
type Scraper struct {
	cfg      *config.Config
	fetcher  *Fetcher
	throttle *throttle
	Metrics  *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}

	return &Scraper{
		cfg:      cfg,
		fetcher:  fetcher,
		throttle: newThrottle(cfg.MinWait, cfg.MaxWait),
		Metrics:  metrics,
	}, nil
}

// Run resolves the search terms, declares the output schema, and scrapes
// each term sequentially. A failed term is abandoned and logged; it never
// takes down the rest of the run.
func (s *Scraper) Run(ctx context.Context, sink Sink) (*models.TapResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.TapResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}

	searchTerms := terms.Resolve(ctx, s.cfg, s.fetcher.FetchFeed)
	result.TermCount = len(searchTerms)

	if err := sink.WriteSchema(); err != nil {
		return nil, fmt.Errorf("declare schema: %w", err)
	}

	for _, term := range searchTerms {
		if ctx.Err() != nil {
			break
		}
		s.throttle.Wait(ctx)
		if ctx.Err() != nil {
			break
		}

		pages, emitted, err := s.scrapeTerm(ctx, term, sink)
		result.PageCount += pages
		result.EmittedCount += emitted
		if err != nil {
			result.AbandonedTerms = append(result.AbandonedTerms, term.Query)
			result.ErrorsByType[errorTypeLabel(err)]++
			s.Metrics.IncTerm("abandoned")
			slog.Error("term abandoned",
				slog.String("term", term.Query),
				slog.Any("error", err),
			)
			continue
		}
		s.Metrics.IncTerm("completed")
		slog.Debug("term completed",
			slog.String("term", term.Query),
			slog.Int("pages", pages),
			slog.Int("records", emitted),
		)
	}

	result.EndTime = time.Now()
	return result, nil
}

// scrapeTerm runs one term end-to-end: fetch page 1, estimate the page
// count from its results heading, then walk pages up to the configured cap.
// Page 1 is served from the fetcher's cache, not fetched again.
func (s *Scraper) scrapeTerm(ctx context.Context, term models.SearchTerm, sink Sink) (pages, emitted int, err error) {
	doc, err := s.fetcher.FetchPage(ctx, term, 1)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch page 1: %w", err)
	}

	totalPages := parser.TotalPages(doc, s.cfg.PageSize)
	if totalPages > s.cfg.MaxPages {
		totalPages = s.cfg.MaxPages
	}

	for page := 1; page <= totalPages; page++ {
		if page > 1 {
			doc, err = s.fetcher.FetchPage(ctx, term, page)
			if err != nil {
				return pages, emitted, fmt.Errorf("fetch page %d: %w", page, err)
			}
		}
		pages++

		listings := parser.Listings(doc, term)
		s.Metrics.AddExtracted(len(listings))
		if err := sink.Write(listings); err != nil {
			return pages, emitted, fmt.Errorf("emit page %d: %w", page, err)
		}
		emitted += len(listings)
		s.Metrics.AddEmitted(len(listings))
	}

	return pages, emitted, nil
}
