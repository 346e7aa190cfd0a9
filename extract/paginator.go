package extract

import (
	"context"
	"fmt"

	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/logger"
)

// Searcher issues one search request.
type Searcher interface {
	Search(ctx context.Context, entity catalog.Entity, filters fieldroutes.Filters) ([]fieldroutes.ID, error)
}

// Paginator walks every page of a search using an id cursor.
type Paginator struct {
	API      Searcher
	PageSize int // a page of exactly this many ids means there may be more
	Log      logger.Logger
}

// SearchResult is the outcome of one paginated search.
type SearchResult struct {
	DateField string `json:"date_field"`
	Count     int    `json:"count"`
	Pages     int    `json:"pages"`
	ids       *IdentifierSet
}

// IDs returns the ids found, deduplicated.
func (r SearchResult) IDs() *IdentifierSet {
	return r.ids
}

// Search returns every id whose dateField lies in [start, end]. An empty dateField searches without
// a date predicate. Pages are requested in order; each after the first asks for ids greater than
// the last id of the previous page. Any failed page fails the whole search. A date field the entity
// does not declare, or a bad range, is a ConfigError raised before any request.
func (p *Paginator) Search(ctx context.Context, entity catalog.Entity, dateField, start, end string) (SearchResult, error) {
	result := SearchResult{DateField: dateField, ids: NewIdentifierSet()}
	if dateField != "" {
		if !hasDateField(entity, dateField) {
			return result, ConfigError{Msg: fmt.Sprintf("%v has no date field %q", entity.Name, dateField)}
		}
		if err := ValidateDateRange(start, end); err != nil {
			return result, err
		}
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = constants.SearchPageSize
	}
	var cursor *fieldroutes.ID
	for {
		if err := ctx.Err(); err != nil {
			return result, SearchError{DateField: dateField, Page: result.Pages + 1, Err: err}
		}
		filters := fieldroutes.Filters{}
		if dateField != "" {
			filters[dateField] = fieldroutes.Between(start, end)
		}
		if cursor != nil {
			filters[entity.IDField] = fieldroutes.GreaterThan(*cursor)
		}
		page, err := p.API.Search(ctx, entity, filters)
		result.Pages++
		if err != nil {
			return result, SearchError{DateField: dateField, Page: result.Pages, Err: err}
		}
		result.ids.Add(page...)
		p.Log.Debug(fmt.Sprintf("%v search by %q page %v returned %v ids (%v unique so far)",
			entity.Name, dateField, result.Pages, len(page), result.ids.Len()))
		if len(page) < pageSize {
			break
		}
		last := page[len(page)-1]
		if cursor != nil && *cursor == last { // the API ignored the cursor
			return result, SearchError{DateField: dateField, Page: result.Pages, Err: fmt.Errorf("cursor did not advance past id %v", last)}
		}
		cursor = &last
	}
	result.Count = result.ids.Len()
	return result, nil
}

func hasDateField(entity catalog.Entity, field string) bool {
	for _, f := range entity.DateFields {
		if f == field {
			return true
		}
	}
	return false
}
