package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"ramallah-time/internal/models"
)

// Document is the indexed shape of a listing. It carries public fields only.
type Document struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Area        string `json:"area"`
	Address     string `json:"address"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	PriceRange  string `json:"price_range"`
	IsPremium   bool   `json:"is_premium"`
}

func documentOf(l *models.Listing) Document {
	return Document{
		ID:          l.ID,
		Name:        l.Name,
		Category:    l.Category,
		Area:        l.Area,
		Address:     l.Address,
		Description: l.Description,
		Tags:        l.Tags,
		PriceRange:  l.PriceRange,
		IsPremium:   l.IsPremium,
	}
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey, index string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "listings"
	}

	return &SearchClient{
		client: client,
		index:  index,
	}
}

// searchableAttributes are the fields free-text queries match, the same
// columns the database search looks at.
var searchableAttributes = []string{"name", "area", "tags", "description"}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && !strings.Contains(err.Error(), "index_already_exists") {
		return err
	}

	attrs := append([]string(nil), searchableAttributes...)
	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&attrs)
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"category",
		"area",
		"is_premium",
	})
	return err
}

// IndexListing adds or replaces one listing.
func (s *SearchClient) IndexListing(_ context.Context, l *models.Listing) error {
	_, err := s.client.Index(s.index).AddDocuments([]Document{documentOf(l)}, "id")
	return err
}

// IndexListings indexes multiple listings
func (s *SearchClient) IndexListings(_ context.Context, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(listings))
	for i := range listings {
		docs = append(docs, documentOf(&listings[i]))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs, "id")
	return err
}

// RemoveListing drops a listing from the index.
func (s *SearchClient) RemoveListing(_ context.Context, id uint) error {
	_, err := s.client.Index(s.index).DeleteDocument(fmt.Sprint(id))
	return err
}

// SearchIDs returns the ids of listings matching query, best match first.
func (s *SearchClient) SearchIDs(_ context.Context, query string, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := s.client.Index(s.index).Search(query, &meilisearch.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, err
	}
	return idsFromHits(res.Hits), nil
}

// idsFromHits extracts listing ids from raw hits, skipping malformed ones.
func idsFromHits(hits []interface{}) []uint {
	ids := make([]uint, 0, len(hits))
	for _, hit := range hits {
		m, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := m["id"].(float64); ok && id > 0 {
			ids = append(ids, uint(id))
		}
	}
	return ids
}
