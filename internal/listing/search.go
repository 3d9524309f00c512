package listing

import (
	"context"
	"log"
	"strings"

	"ramallah-time/internal/access"
	"ramallah-time/internal/models"
)

// ListQuery selects listings for a caller.
type ListQuery struct {
	Query    string
	Category string
	Area     string
	Lat      *float64
	Lng      *float64
	Limit    int
	// IncludeHidden is honored for the admin only.
	IncludeHidden bool
}

// ListResult is one page of listings.
type ListResult struct {
	Items   []View `json:"items"`
	Total   int    `json:"total"`
	Skipped []Skip `json:"-"`
}

// indexSearchCap bounds the id set taken from the full-text index.
const indexSearchCap = 1000

// List returns the listings visible to the caller, ordered and limited.
// Rows that cannot be shaped are skipped and reported, never returned.
// Owners are recognized here by token only; a raw owner secret is honored
// on the single-listing operations.
func (s *Service) List(ctx context.Context, credential string, q ListQuery) (*ListResult, error) {
	cred := s.resolver.Prepare(credential).SignedOnly()
	includeHidden := q.IncludeHidden && cred.Admin()

	from := Point{Lat: q.Lat, Lng: q.Lng}
	if !from.present() {
		from = Point{}
	}

	f := Filter{
		Query:    strings.TrimSpace(q.Query),
		Category: strings.TrimSpace(q.Category),
		Area:     strings.TrimSpace(q.Area),
	}
	if f.Query != "" && s.index != nil {
		ids, err := s.index.SearchIDs(ctx, f.Query, indexSearchCap)
		if err != nil {
			log.Printf("Search: index query failed, falling back to database: %v", err)
		} else {
			if ids == nil {
				ids = []uint{}
			}
			if len(ids) >= indexSearchCap {
				log.Printf("Search: query %q hit the index cap of %d ids, results are truncated", f.Query, indexSearchCap)
			}
			f.IDs = ids
			f.Query = ""
		}
	}

	var rows []models.Listing
	if f.IDs == nil || len(f.IDs) > 0 {
		found, err := s.store.ListListings(ctx, f)
		if err != nil {
			log.Printf("Listings: failed to list places: %v", err)
			return nil, storageError()
		}
		rows = found
	}

	now := s.now()
	result := &ListResult{Items: []View{}}
	for i := range rows {
		l := &rows[i]
		status := l.Status(now)
		c := cred.For(ownerRef(l))

		visible := status.Visible() || c == access.Owner || (c == access.Admin && includeHidden)
		if !visible {
			continue
		}
		if reason := checkShape(l); reason != "" {
			log.Printf("Listings: skipping place %d: %s", l.ID, reason)
			result.Skipped = append(result.Skipped, Skip{ListingID: l.ID, Reason: reason})
			continue
		}
		result.Items = append(result.Items, project(l, c, status, from))
	}

	sortViews(result.Items, from.present())
	result.Total = len(result.Items)
	if limit := s.clampLimit(q.Limit); len(result.Items) > limit {
		result.Items = result.Items[:limit]
	}
	return result, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}
