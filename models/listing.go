// Package models defines data structures for the tap.
package models

import "time"

// SearchTerm is one query the run will scrape. Query already carries any
// exclusion phrases; SKU is the correlation key supplied by the term feed
// and stays empty for statically configured terms.
type SearchTerm struct {
	Query string
	SKU   string
}

// Listing represents one completed-listing tile from a search results page.
type Listing struct {
	SearchTerm string `json:"search_term"`
	Title      string `json:"title"`
	Price      string `json:"price"`
	Bids       string `json:"bids"`
	BuyItNow   bool   `json:"buy_it_now"`
	Condition  string `json:"condition"`
	Image      string `json:"image"`
	Link       string `json:"link"`
	EbayID     string `json:"ebay_id"`
	EndDate    string `json:"end_date"`
	HasSold    bool   `json:"has_sold"`
	SKU        string `json:"sku"`
}

// TapResult holds the overall result of a tap run
type TapResult struct {
	StartTime      time.Time
	EndTime        time.Time
	TermCount      int
	AbandonedTerms []string
	PageCount      int
	EmittedCount   int
	ErrorsByType   map[string]int
}
