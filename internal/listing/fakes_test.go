package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ramallah-time/internal/access"
	"ramallah-time/internal/events"
	"ramallah-time/internal/models"
)

const testAdminSecret = "admin-code-2026"

// memStore is an in-memory Store.
type memStore struct {
	mu          sync.Mutex
	nextID      uint
	nextImageID uint
	listings    map[uint]*models.Listing
	images      map[uint]models.ListingImage
	activations []models.Activation
	deleteLogs  []models.DeleteLog
	failList    error
	failAdd     error
	failDelete  error
}

func newMemStore() *memStore {
	return &memStore{
		listings: make(map[uint]*models.Listing),
		images:   make(map[uint]models.ListingImage),
	}
}

func (m *memStore) emailTaken(email string, self uint) bool {
	for id, l := range m.listings {
		if id != self && l.Email() == email {
			return true
		}
	}
	return false
}

func (m *memStore) snapshot(l *models.Listing) *models.Listing {
	cp := *l
	cp.Images = nil
	for _, img := range m.images {
		if img.ListingID == l.ID {
			cp.Images = append(cp.Images, img)
		}
	}
	sort.Slice(cp.Images, func(i, j int) bool { return cp.Images[i].ID < cp.Images[j].ID })
	return &cp
}

func (m *memStore) CreateListing(_ context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.OwnerEmail != nil && m.emailTaken(*l.OwnerEmail, 0) {
		return fmt.Errorf("duplicate owner email: %w", ErrConflict)
	}
	m.nextID++
	l.ID = m.nextID
	cp := *l
	cp.Images = nil
	m.listings[l.ID] = &cp
	return nil
}

func (m *memStore) GetListing(_ context.Context, id uint) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.snapshot(l), nil
}

func (m *memStore) FindByOwnerEmail(_ context.Context, email string) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.listings {
		if l.Email() == email {
			return m.snapshot(l), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListListings(_ context.Context, f Filter) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var allowed map[uint]bool
	if f.IDs != nil {
		allowed = make(map[uint]bool, len(f.IDs))
		for _, id := range f.IDs {
			allowed[id] = true
		}
	}
	q := strings.ToLower(f.Query)
	var out []models.Listing
	for _, l := range m.listings {
		if allowed != nil && !allowed[l.ID] {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.Area != "" && l.Area != f.Area {
			continue
		}
		if q != "" {
			hay := strings.ToLower(l.Name + " " + l.Area + " " + l.Description + " " + l.Tags)
			if !strings.Contains(hay, q) {
				continue
			}
		}
		out = append(out, *m.snapshot(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) UpdateListing(_ context.Context, id uint, changes map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return ErrNotFound
	}
	if email, ok := changes["owner_email"].(string); ok && m.emailTaken(email, id) {
		return fmt.Errorf("duplicate owner email: %w", ErrConflict)
	}
	applyChanges(l, changes)
	return nil
}

func (m *memStore) DeleteListing(_ context.Context, l *models.Listing, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[l.ID]; !ok {
		return ErrNotFound
	}
	count := 0
	for id, img := range m.images {
		if img.ListingID == l.ID {
			delete(m.images, id)
			count++
		}
	}
	delete(m.listings, l.ID)
	m.deleteLogs = append(m.deleteLogs, models.DeleteLog{
		ID:         uint(len(m.deleteLogs) + 1),
		ListingID:  l.ID,
		Name:       l.Name,
		OwnerEmail: l.Email(),
		ImageCount: count,
		Reason:     reason,
	})
	return nil
}

func (m *memStore) AddImages(_ context.Context, images []models.ListingImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd != nil {
		return m.failAdd
	}
	for _, img := range images {
		m.nextImageID++
		img.ID = m.nextImageID
		m.images[img.ID] = img
	}
	return nil
}

func (m *memStore) GetImage(_ context.Context, id uint) (*models.ListingImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &img, nil
}

func (m *memStore) DeleteImage(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	if _, ok := m.images[id]; !ok {
		return ErrNotFound
	}
	delete(m.images, id)
	return nil
}

func (m *memStore) Activate(_ context.Context, id uint, changes map[string]interface{}, rec *models.Activation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return ErrNotFound
	}
	applyChanges(l, changes)
	rec.ID = uint(len(m.activations) + 1)
	m.activations = append(m.activations, *rec)
	return nil
}

func (m *memStore) ListActivations(_ context.Context, listingID uint) ([]models.Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Activation
	for i := len(m.activations) - 1; i >= 0; i-- {
		if m.activations[i].ListingID == listingID {
			out = append(out, m.activations[i])
		}
	}
	return out, nil
}

func (m *memStore) ListDeleteLogs(_ context.Context, limit int) ([]models.DeleteLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DeleteLog
	for i := len(m.deleteLogs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.deleteLogs[i])
	}
	return out, nil
}

func (m *memStore) CountDeleteLogs(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.deleteLogs)), nil
}

// raw mutates a stored row directly, bypassing the service.
func (m *memStore) raw(id uint, fn func(l *models.Listing)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.listings[id])
}

func applyChanges(l *models.Listing, changes map[string]interface{}) {
	for key, v := range changes {
		switch key {
		case "name":
			l.Name = v.(string)
		case "category":
			l.Category = v.(string)
		case "area":
			l.Area = v.(string)
		case "address":
			l.Address = v.(string)
		case "description":
			l.Description = v.(string)
		case "phone":
			l.Phone = v.(string)
		case "whatsapp":
			l.WhatsApp = v.(string)
		case "website":
			l.Website = v.(string)
		case "instagram":
			l.Instagram = v.(string)
		case "facebook":
			l.Facebook = v.(string)
		case "map_url":
			l.MapURL = v.(string)
		case "open_hours":
			l.OpenHours = v.(string)
		case "price_range":
			l.PriceRange = v.(string)
		case "tags":
			l.Tags = v.(string)
		case "owner_name":
			l.OwnerName = v.(string)
		case "owner_email":
			email := v.(string)
			l.OwnerEmail = &email
		case "owner_password":
			l.OwnerSecretDigest = v.(string)
		case "latitude":
			l.Latitude = v.(*float64)
		case "longitude":
			l.Longitude = v.(*float64)
		case "is_premium":
			l.IsPremium = v.(bool)
		case "is_verified":
			l.IsVerified = v.(bool)
		case "subscription_status":
			l.SubscriptionStatus = v.(string)
		case "subscription_start":
			t := v.(time.Time)
			l.SubscriptionStart = &t
		case "subscription_end":
			t := v.(time.Time)
			l.SubscriptionEnd = &t
		case "payment_status":
			l.PaymentStatus = v.(string)
		case "payment_total":
			l.PaymentTotal = v.(float64)
		default:
			panic("unexpected column " + key)
		}
	}
}

// memFiles is an in-memory FileStore.
type memFiles struct {
	mu        sync.Mutex
	files     map[string][]byte
	saves     int
	failAfter int
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string][]byte), failAfter: -1}
}

func (f *memFiles) Save(_ context.Context, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && f.saves >= f.failAfter {
		return "", errors.New("disk full")
	}
	f.saves++
	loc := "/images/places/" + name
	f.files[loc] = data
	return loc, nil
}

func (f *memFiles) Delete(_ context.Context, locator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, locator)
	return nil
}

func (f *memFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []events.ListingEvent
}

func (r *recorder) Publish(_ context.Context, evt events.ListingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *memStore
	files  *memFiles
	events *recorder
	now    time.Time
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		files:  newMemFiles(),
		events: &recorder{},
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	hasher := access.NewBcryptHasher(bcrypt.MinCost)
	resolver := access.NewResolver(testAdminSecret, hasher, access.NewTokenIssuer("test-signing-key", time.Hour))
	f.svc = NewService(DefaultConfig(), Deps{
		Store:    f.store,
		Files:    f.files,
		Events:   f.events,
		Resolver: resolver,
		Hasher:   hasher,
		Now:      func() time.Time { return f.now },
	})
	return f
}

func ptr(v float64) *float64 { return &v }
