package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"ebay-completed-tap/config"
	"ebay-completed-tap/models"
)

const searchPath = "https://www.ebay.com/sch/i.html"

const (
	phaseSearch = "search"
	phaseFeed   = "feed"
)

const pageCacheSize = 16

// The marketplace injects fragment markers and a heading wrapper that break
// the tile selectors; both are stripped before the body reaches the parser.
var sanitizer = strings.NewReplacer(
	"<!--F#f_0-->", "",
	"<!--F/-->", "",
	"<span role=heading aria-level=3>", "",
)

// Fetcher retrieves search-results pages and the term feed over a single
// synchronous collector. A small document cache lets the pagination loop
// reuse page 1 instead of fetching it twice.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *Metrics
	cache     *lru.Cache[string, *goquery.Document]

	// One request in flight at a time; these carry state between the
	// collector callbacks and the calling fetch.
	mu    sync.Mutex
	phase string
	body  []byte
	err   error
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	cache, err := lru.New[string, *goquery.Document](pageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
		cache:     cache,
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		f.metrics.IncRequest(f.phase)
	})

	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
		f.body = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		classified := classifyError(err, statusCode)
		f.metrics.IncError(errorTypeLabel(classified))
		f.err = classified
	})

	return f, nil
}

// FetchPage retrieves one sanitized, parsed results page for a term.
func (f *Fetcher) FetchPage(ctx context.Context, term models.SearchTerm, page int) (*goquery.Document, error) {
	target := f.searchURL(term.Query, page)
	if doc, ok := f.cache.Get(target); ok {
		return doc, nil
	}

	body, err := f.get(ctx, target, phaseSearch)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(Sanitize(string(body))))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	f.cache.Add(target, doc)
	return doc, nil
}

// FetchFeed retrieves the raw term feed document.
func (f *Fetcher) FetchFeed(ctx context.Context, target string) ([]byte, error) {
	return f.get(ctx, target, phaseFeed)
}

func (f *Fetcher) get(ctx context.Context, target, phase string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.phase = phase
	f.body = nil
	f.err = nil

	// Synchronous collector: Visit returns after the callbacks ran. The
	// OnError callback holds the classified form of any transport failure.
	err := f.collector.Visit(target)
	if f.err != nil {
		return nil, f.err
	}
	if err != nil {
		return nil, fmt.Errorf("visit %s: %w", target, err)
	}
	if f.body == nil {
		return nil, fmt.Errorf("empty response from %s", target)
	}
	return f.body, nil
}

// searchURL builds the completed-listings query for a term and page. The
// recency sort and completed-only filters are fixed; page 1 omits _pgn.
func (f *Fetcher) searchURL(query string, page int) string {
	target := fmt.Sprintf("%s?LH_Complete=1&_sop=13&_ipg=%d&_nkw=%s",
		searchPath, f.cfg.PageSize, url.QueryEscape(query))
	if page > 1 {
		target += fmt.Sprintf("&_pgn=%d", page)
	}
	return target
}

// Sanitize strips the markup artifacts known to break tile selection.
func Sanitize(body string) string {
	return sanitizer.Replace(body)
}
