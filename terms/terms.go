// Package terms resolves the set of search terms a run will scrape.
package terms

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"ebay-completed-tap/config"
	"ebay-completed-tap/models"
)

// FetchFunc retrieves a remote document. The scraper's fetcher satisfies it.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// Resolve produces the run's search terms. A configured feed is tried
// first; any failure on that path silently downgrades to the static list,
// with empty correlation keys. Exclusion phrases are appended to every
// resolved term in list order.
func Resolve(ctx context.Context, cfg *config.Config, fetch FetchFunc) []models.SearchTerm {
	resolved := fromFeed(ctx, cfg, fetch)
	if resolved == nil {
		resolved = fromStatic(cfg)
	}

	suffix := excludeSuffix(cfg.ExcludeTerms)
	if suffix != "" {
		for i := range resolved {
			resolved[i].Query += suffix
		}
	}
	return resolved
}

// fromFeed returns nil on any failure: unreachable feed, undecodable body,
// or a row missing the configured fields. Feed problems downgrade the run,
// they never abort it.
func fromFeed(ctx context.Context, cfg *config.Config, fetch FetchFunc) []models.SearchTerm {
	if cfg.Feed == nil || fetch == nil {
		return nil
	}

	body, err := fetch(ctx, cfg.Feed.URL)
	if err != nil {
		slog.Debug("term feed unavailable, falling back to static list",
			slog.String("url", cfg.Feed.URL),
			slog.Any("error", err),
		)
		return nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		slog.Debug("term feed undecodable, falling back to static list",
			slog.String("url", cfg.Feed.URL),
			slog.Any("error", err),
		)
		return nil
	}

	resolved := make([]models.SearchTerm, 0, len(rows))
	for _, row := range rows {
		query, ok := row[cfg.Feed.SearchTermField].(string)
		if !ok || query == "" {
			return nil
		}
		sku, ok := row[cfg.Feed.SKUField].(string)
		if !ok {
			return nil
		}
		resolved = append(resolved, models.SearchTerm{Query: query, SKU: sku})
	}
	if len(resolved) == 0 {
		return nil
	}
	return resolved
}

func fromStatic(cfg *config.Config) []models.SearchTerm {
	resolved := make([]models.SearchTerm, 0, len(cfg.SearchTerms))
	for _, term := range cfg.SearchTerms {
		resolved = append(resolved, models.SearchTerm{Query: term})
	}
	return resolved
}

func excludeSuffix(excludeTerms []string) string {
	if len(excludeTerms) == 0 {
		return ""
	}
	var builder strings.Builder
	for _, phrase := range excludeTerms {
		builder.WriteString(" -")
		builder.WriteString(phrase)
	}
	return builder.String()
}
