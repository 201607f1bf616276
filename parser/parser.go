// Package parser turns search-results markup into listing records.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ebay-completed-tap/models"
)

// Selectors for the completed-listings search results layout.
const (
	tileSelector      = "li.s-item.s-item__pl-on-bottom"
	titleSelector     = "div.s-item__title"
	priceSelector     = "span.s-item__price"
	conditionSelector = "span.SECONDARY_INFO"
	linkSelector      = "a.s-item__link"
	bidsSelector      = "span.s-item__bids.s-item__bidCount"
	buyItNowSelector  = "span.s-item__dynamic.s-item__buyItNowOption"
	titleTagSelector  = "div.s-item__title--tag"
	clippedSelector   = "span.clipped"
	soldDateSelector  = "span.POSITIVE"
	endedDateSelector = "span.NEGATIVE"
	countSelector     = "h1.srp-controls__count-heading"
)

const (
	itemURLPrefix = "https://www.ebay.com/itm/"

	// Platform-injected promotional tile, never a real listing.
	promoTitle = "Shop on eBay"

	soldLabel       = "Sold Item"
	soldDatePrefix  = "Sold  "
	endedDatePrefix = "Ended  "
	buyItNowText    = "Buy It Now"
)

var countPattern = regexp.MustCompile(`[0-9][0-9,]*`)

// field is the result of a single selector lookup: either present with its
// raw value, or absent. Defaults are substituted once, at record
// construction, so the fallback policy lives in one place.
type field struct {
	value   string
	present bool
}

func (f field) or(fallback string) string {
	if f.present {
		return f.value
	}
	return fallback
}

func text(s *goquery.Selection, selector string) field {
	node := s.Find(selector).First()
	if node.Length() == 0 {
		return field{}
	}
	return field{value: node.Text(), present: true}
}

func attr(s *goquery.Selection, selector, name string) field {
	value, ok := s.Find(selector).First().Attr(name)
	if !ok {
		return field{}
	}
	return field{value: value, present: true}
}

// Listings extracts every qualifying listing tile from a results page.
func Listings(doc *goquery.Document, term models.SearchTerm) []*models.Listing {
	var listings []*models.Listing
	doc.Find(tileSelector).Each(func(_ int, tile *goquery.Selection) {
		if listing := extractTile(tile, term); listing != nil {
			listings = append(listings, listing)
		}
	})
	return listings
}

func extractTile(tile *goquery.Selection, term models.SearchTerm) *models.Listing {
	title := text(tile, titleSelector)
	price := text(tile, priceSelector)
	image := attr(tile, "img", "src")
	link := attr(tile, linkSelector, "href")

	// A tile missing any structural field is malformed; drop it and keep
	// extracting the rest of the page.
	if !title.present || !price.present || !image.present || !link.present {
		return nil
	}
	if strings.Contains(title.value, promoTitle) {
		return nil
	}

	id, canonical := CanonicalItemURL(link.value)
	hasSold, endDate := saleState(tile)

	return &models.Listing{
		SearchTerm: term.Query,
		Title:      title.value,
		Price:      price.value,
		Bids:       text(tile, bidsSelector).or(""),
		BuyItNow:   text(tile, buyItNowSelector).or("") == buyItNowText,
		Condition:  text(tile, conditionSelector).or(""),
		Image:      image.value,
		Link:       canonical,
		EbayID:     id,
		EndDate:    endDate,
		HasSold:    hasSold,
		SKU:        term.SKU,
	}
}

// saleState classifies a tile as sold, ended, or unknown. Missing or
// malformed badge markup collapses to unknown; a single bad tile must never
// fail the page.
func saleState(tile *goquery.Selection) (hasSold bool, endDate string) {
	tag := tile.Find(titleTagSelector).First()
	if tag.Length() == 0 {
		return false, ""
	}
	label := text(tag, clippedSelector)
	if !label.present {
		return false, ""
	}
	if label.value == soldLabel {
		date := text(tag, soldDateSelector)
		if !date.present {
			return false, ""
		}
		return true, strings.TrimPrefix(date.value, soldDatePrefix)
	}
	date := text(tag, endedDateSelector)
	if !date.present {
		return false, ""
	}
	return false, strings.TrimPrefix(date.value, endedDatePrefix)
}

// CanonicalItemURL derives the item identifier from a listing link and
// rewrites the link to its canonical form.
func CanonicalItemURL(link string) (id, canonical string) {
	id = link
	if i := strings.IndexByte(id, '?'); i >= 0 {
		id = id[:i]
	}
	id = strings.TrimPrefix(id, itemURLPrefix)
	return id, itemURLPrefix + id
}

// TotalPages estimates how many result pages exist from the page-1 count
// heading. An unparseable heading fails open to a single page, never to an
// unbounded crawl.
func TotalPages(doc *goquery.Document, pageSize int) int {
	heading := text(doc.Selection, countSelector)
	if !heading.present {
		return 1
	}
	match := countPattern.FindString(heading.value)
	if match == "" {
		return 1
	}
	total, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 1
	}
	pages := total / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}
