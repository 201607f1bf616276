package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"ebay-completed-tap/config"
	"ebay-completed-tap/models"
)

type collectingSink struct {
	schemaCalls int
	batches     [][]*models.Listing
}

func (cs *collectingSink) WriteSchema() error {
	cs.schemaCalls++
	return nil
}

func (cs *collectingSink) Write(listings []*models.Listing) error {
	if cs.schemaCalls == 0 {
		return errors.New("records written before schema declaration")
	}
	cs.batches = append(cs.batches, listings)
	return nil
}

func (cs *collectingSink) All() []*models.Listing {
	var all []*models.Listing
	for _, batch := range cs.batches {
		all = append(all, batch...)
	}
	return all
}

func newTestScraper(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport) *Scraper {
	t.Helper()
	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.fetcher.collector.WithTransport(transport)
	s.throttle.sleep = func(context.Context, time.Duration) {}
	return s
}

func TestScraperPagination(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SearchTerms = []string{"vintage camera"}
	cfg.PageSize = 60
	cfg.MaxPages = 2

	transport := httpmock.NewMockTransport()
	s := newTestScraper(t, cfg, transport)

	// 150 results at 60 per page estimates two pages; the loop must stop
	// there without attempting a third fetch.
	page1 := buildResultsPage("150", buildTile(1), buildTile(2))
	page2 := buildResultsPage("150", buildTile(3))
	transport.RegisterResponder("GET", s.fetcher.searchURL("vintage camera", 1), htmlResponder(page1))
	transport.RegisterResponder("GET", s.fetcher.searchURL("vintage camera", 2), htmlResponder(page2))

	sink := &collectingSink{}
	result, err := s.Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("transport calls = %d, want 2", got)
	}
	if result.PageCount != 2 {
		t.Errorf("pages = %d, want 2", result.PageCount)
	}
	if sink.schemaCalls != 1 {
		t.Errorf("schema declared %d times, want 1", sink.schemaCalls)
	}
	if len(sink.batches) != 2 {
		t.Fatalf("batches = %d, want one per page", len(sink.batches))
	}

	records := sink.All()
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0].SearchTerm != "vintage camera" {
		t.Errorf("search_term = %q", records[0].SearchTerm)
	}
	if records[0].EbayID != "1" || records[0].Link != "https://www.ebay.com/itm/1" {
		t.Errorf("record = %+v, want canonical link and derived id", records[0])
	}
}

func TestScraperMaxPagesCap(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SearchTerms = []string{"vintage camera"}
	cfg.PageSize = 60
	cfg.MaxPages = 1

	transport := httpmock.NewMockTransport()
	s := newTestScraper(t, cfg, transport)

	page1 := buildResultsPage("600", buildTile(1))
	transport.RegisterResponder("GET", s.fetcher.searchURL("vintage camera", 1), htmlResponder(page1))

	sink := &collectingSink{}
	result, err := s.Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("transport calls = %d, want 1 (capped)", got)
	}
	if result.PageCount != 1 {
		t.Errorf("pages = %d, want 1", result.PageCount)
	}
}

func TestScraperUnparseableCountFailsOpenToOnePage(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SearchTerms = []string{"vintage camera"}
	cfg.PageSize = 60
	cfg.MaxPages = 5

	transport := httpmock.NewMockTransport()
	s := newTestScraper(t, cfg, transport)

	page1 := buildResultsPage("", buildTile(1))
	transport.RegisterResponder("GET", s.fetcher.searchURL("vintage camera", 1), htmlResponder(page1))

	sink := &collectingSink{}
	result, err := s.Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.PageCount != 1 {
		t.Errorf("pages = %d, want 1 when the count heading is missing", result.PageCount)
	}
}

func TestScraperAbandonsFailedTermOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SearchTerms = []string{"broken term", "pocket watch"}
	cfg.MaxPages = 1

	transport := httpmock.NewMockTransport()
	s := newTestScraper(t, cfg, transport)

	transport.RegisterResponder("GET", s.fetcher.searchURL("broken term", 1),
		httpmock.NewStringResponder(500, "internal error"))
	transport.RegisterResponder("GET", s.fetcher.searchURL("pocket watch", 1),
		htmlResponder(buildResultsPage("1", buildTile(7))))

	sink := &collectingSink{}
	result, err := s.Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.AbandonedTerms) != 1 || result.AbandonedTerms[0] != "broken term" {
		t.Fatalf("abandoned = %v, want [broken term]", result.AbandonedTerms)
	}

	records := sink.All()
	if len(records) != 1 || records[0].EbayID != "7" {
		t.Fatalf("records = %v, want the surviving term's listing", records)
	}
}

func TestScraperFeedFailureFallsBackToStaticTerms(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SearchTerms = []string{"watch"}
	cfg.Feed = &config.Feed{
		URL:             "https://feed.example.test/terms.json",
		SearchTermField: "search_term",
		SKUField:        "sku",
	}
	cfg.MaxPages = 1

	transport := httpmock.NewMockTransport()
	s := newTestScraper(t, cfg, transport)

	transport.RegisterResponder("GET", cfg.Feed.URL,
		httpmock.NewErrorResponder(errors.New("connection refused")))
	transport.RegisterResponder("GET", s.fetcher.searchURL("watch", 1),
		htmlResponder(buildResultsPage("1", buildTile(3))))

	sink := &collectingSink{}
	if _, err := s.Run(context.Background(), sink); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.All()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].SearchTerm != "watch" || records[0].SKU != "" {
		t.Errorf("record = %+v, want static term with empty sku", records[0])
	}
}

func TestScraperFeedSuppliesCorrelationKeys(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Feed = &config.Feed{
		URL:             "https://feed.example.test/terms.json",
		SearchTermField: "search_term",
		SKUField:        "sku",
	}
	cfg.MaxPages = 1

	transport := httpmock.NewMockTransport()
	s := newTestScraper(t, cfg, transport)

	transport.RegisterResponder("GET", cfg.Feed.URL,
		httpmock.NewStringResponder(200, `[{"search_term": "watch", "sku": "W-9"}]`))
	transport.RegisterResponder("GET", s.fetcher.searchURL("watch", 1),
		htmlResponder(buildResultsPage("1", buildTile(3))))

	sink := &collectingSink{}
	if _, err := s.Run(context.Background(), sink); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.All()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].SKU != "W-9" {
		t.Errorf("sku = %q, want correlation key echoed through", records[0].SKU)
	}
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildResultsPage(count string, tiles ...string) string {
	var builder strings.Builder
	builder.WriteString("<html><body>")
	if count != "" {
		fmt.Fprintf(&builder, `<h1 class="srp-controls__count-heading"><span class="BOLD">%s</span> results</h1>`, count)
	}
	builder.WriteString(`<ul class="srp-results">`)
	for _, tile := range tiles {
		builder.WriteString(tile)
	}
	builder.WriteString("</ul></body></html>")
	return builder.String()
}

func buildTile(id int) string {
	var builder strings.Builder
	builder.WriteString(`<li class="s-item s-item__pl-on-bottom">`)
	builder.WriteString(`<div class="s-item__title--tag"><span class="clipped">Sold Item</span><span class="POSITIVE">Sold  12-Jan-24</span></div>`)
	fmt.Fprintf(&builder, `<div class="s-item__title">Item %d</div>`, id)
	fmt.Fprintf(&builder, `<span class="s-item__price">$%d.00</span>`, id)
	builder.WriteString(`<span class="SECONDARY_INFO">Pre-Owned</span>`)
	fmt.Fprintf(&builder, `<img src="https://i.ebayimg.test/images/%d.jpg" />`, id)
	fmt.Fprintf(&builder, `<a class="s-item__link" href="https://www.ebay.com/itm/%d?hash=item">view</a>`, id)
	builder.WriteString(`</li>`)
	return builder.String()
}
