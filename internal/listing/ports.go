package listing

import (
	"context"

	"ramallah-time/internal/events"
	"ramallah-time/internal/models"
)

// Filter narrows a storage scan. Visibility is never decided here.
type Filter struct {
	Query    string
	Category string
	Area     string
	// IDs restricts the scan to these listings when non-nil.
	IDs []uint
}

// Store is the relational row store behind the service.
// Lookups of missing rows return an error matching ErrNotFound; a duplicate
// owner email on write returns an error matching ErrConflict.
type Store interface {
	CreateListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id uint) (*models.Listing, error)
	FindByOwnerEmail(ctx context.Context, email string) (*models.Listing, error)
	ListListings(ctx context.Context, f Filter) ([]models.Listing, error)
	UpdateListing(ctx context.Context, id uint, changes map[string]interface{}) error
	// DeleteListing removes the listing, its image rows and writes a delete log in one transaction.
	DeleteListing(ctx context.Context, l *models.Listing, reason string) error

	AddImages(ctx context.Context, images []models.ListingImage) error
	GetImage(ctx context.Context, id uint) (*models.ListingImage, error)
	DeleteImage(ctx context.Context, id uint) error

	// Activate applies changes to the listing and records the activation in one transaction.
	Activate(ctx context.Context, id uint, changes map[string]interface{}, rec *models.Activation) error
	ListActivations(ctx context.Context, listingID uint) ([]models.Activation, error)
	ListDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error)
	CountDeleteLogs(ctx context.Context) (int64, error)
}

// FileStore keeps uploaded image bytes.
type FileStore interface {
	// Save stores data under name and returns its public locator.
	Save(ctx context.Context, name string, data []byte) (string, error)
	// Delete removes the file behind locator. A missing file is not an error.
	Delete(ctx context.Context, locator string) error
}

// ImageProcessor normalizes uploaded image bytes before they are saved.
type ImageProcessor interface {
	Process(ext string, data []byte) ([]byte, error)
}

// Indexer mirrors public listing data into a full-text index.
type Indexer interface {
	IndexListing(ctx context.Context, l *models.Listing) error
	RemoveListing(ctx context.Context, id uint) error
	SearchIDs(ctx context.Context, query string, limit int) ([]uint, error)
}

// Publisher announces listing lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, evt events.ListingEvent) error
}
