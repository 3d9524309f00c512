package listing

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"ramallah-time/internal/access"
	"ramallah-time/internal/events"
	"ramallah-time/internal/models"
	"ramallah-time/internal/subscription"
)

// Config holds the policy constants of the service.
type Config struct {
	AdminGrantDays      int
	ActivationBlockDays int
	DefaultLimit        int
	MaxLimit            int
	MaxUploadFiles      int
	MaxFileBytes        int64
}

// DefaultConfig returns the default directory policy.
func DefaultConfig() Config {
	return Config{
		AdminGrantDays:      365,
		ActivationBlockDays: 30,
		DefaultLimit:        40,
		MaxLimit:            2000,
		MaxUploadFiles:      10,
		MaxFileBytes:        8 * 1024 * 1024,
	}
}

// Deps are the collaborators of the service. Images, Index and Events may be nil.
type Deps struct {
	Store    Store
	Files    FileStore
	Images   ImageProcessor
	Index    Indexer
	Events   Publisher
	Resolver *access.Resolver
	Hasher   access.Hasher
	Now      func() time.Time
}

// Service is the listing facade. It composes the subscription and access
// resolvers for every operation and holds no mutable state of its own.
type Service struct {
	cfg      Config
	store    Store
	files    FileStore
	images   ImageProcessor
	index    Indexer
	events   Publisher
	resolver *access.Resolver
	hasher   access.Hasher
	now      func() time.Time
	validate *validator.Validate
}

// NewService wires a service.
func NewService(cfg Config, deps Deps) *Service {
	def := DefaultConfig()
	if cfg.AdminGrantDays <= 0 {
		cfg.AdminGrantDays = def.AdminGrantDays
	}
	if cfg.ActivationBlockDays <= 0 {
		cfg.ActivationBlockDays = def.ActivationBlockDays
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.MaxUploadFiles <= 0 {
		cfg.MaxUploadFiles = def.MaxUploadFiles
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = def.MaxFileBytes
	}

	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		files:    deps.Files,
		images:   deps.Images,
		index:    deps.Index,
		events:   deps.Events,
		resolver: deps.Resolver,
		hasher:   deps.Hasher,
		now:      deps.Now,
		validate: validator.New(),
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	return s
}

// load fetches a listing and maps storage failures.
func (s *Service) load(ctx context.Context, id uint) (*models.Listing, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound()
		}
		log.Printf("Listings: failed to load place %d: %v", id, err)
		return nil, storageError()
	}
	return l, nil
}

func ownerRef(l *models.Listing) access.OwnerRef {
	return access.OwnerRef{ListingID: l.ID, Digest: l.OwnerSecretDigest}
}

func (s *Service) capability(credential string, l *models.Listing) access.Capability {
	return s.resolver.Resolve(credential, ownerRef(l))
}

// requirePrivileged returns the capability when it is admin or owner.
func (s *Service) requirePrivileged(credential string, l *models.Listing) (access.Capability, error) {
	c := s.capability(credential, l)
	if !c.Privileged() {
		return c, newError(ErrUnauthorized, "wrong password or not authorized")
	}
	return c, nil
}

func (s *Service) requireAdmin(credential string) error {
	if !s.resolver.IsAdmin(credential) {
		return newError(ErrUnauthorized, "not authorized (admin only)")
	}
	return nil
}

// Get returns one listing shaped for the caller. Listings that are not active
// do not exist for visitors.
func (s *Service) Get(ctx context.Context, credential string, id uint) (View, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	c := s.capability(credential, l)
	status := l.Status(s.now())
	if !c.Privileged() {
		if !status.Visible() || checkShape(l) != "" {
			return nil, notFound()
		}
	}
	return project(l, c, status, Point{}), nil
}

// VerifyAdmin checks the admin credential.
func (s *Service) VerifyAdmin(credential string) error {
	if !s.resolver.IsAdmin(credential) {
		return newError(ErrUnauthorized, "wrong security code")
	}
	return nil
}

// LoginResult is returned by a successful owner login.
type LoginResult struct {
	PlaceID            uint                `json:"place_id"`
	PlaceName          string              `json:"place_name"`
	Token              string              `json:"token"`
	TokenExpiresAt     time.Time           `json:"token_expires_at"`
	SubscriptionStatus subscription.Status `json:"subscription_status"`
	IsExpired          bool                `json:"is_expired"`
}

// OwnerLogin exchanges an owner email and secret for an owner token.
func (s *Service) OwnerLogin(ctx context.Context, email, secret string) (*LoginResult, error) {
	email = normalizeEmail(email)
	secret = strings.TrimSpace(secret)
	if email == "" || secret == "" {
		return nil, validationError("email and password are required")
	}

	wrong := newError(ErrUnauthorized, "wrong login details")
	l, err := s.store.FindByOwnerEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, wrong
		}
		log.Printf("Listings: owner lookup failed: %v", err)
		return nil, storageError()
	}
	if !l.HasOwner() || !s.hasher.Verify(secret, l.OwnerSecretDigest) {
		return nil, wrong
	}

	token, expires, err := s.resolver.Tokens().Issue(l.ID, l.OwnerSecretDigest)
	if err != nil {
		log.Printf("Listings: failed to issue owner token for place %d: %v", l.ID, err)
		return nil, storageError()
	}

	status := l.Status(s.now())
	return &LoginResult{
		PlaceID:            l.ID,
		PlaceName:          l.Name,
		Token:              token,
		TokenExpiresAt:     expires,
		SubscriptionStatus: status,
		IsExpired:          status.Expired(),
	}, nil
}

// RequestRenewal puts the listing back into the pending queue until the admin activates it.
func (s *Service) RequestRenewal(ctx context.Context, credential string, id uint) error {
	l, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	c, err := s.requirePrivileged(credential, l)
	if err != nil {
		return err
	}

	changes := map[string]interface{}{"subscription_status": subscription.HintPending}
	if err := s.store.UpdateListing(ctx, id, changes); err != nil {
		log.Printf("Listings: renewal request for place %d failed: %v", id, err)
		return storageError()
	}
	l.SubscriptionStatus = subscription.HintPending
	s.reindex(ctx, l)
	s.publish(ctx, events.ListingRenewalRequested, l, c)
	return nil
}

func (s *Service) reindex(ctx context.Context, l *models.Listing) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexListing(ctx, l); err != nil {
		log.Printf("Search: failed to index place %d: %v", l.ID, err)
	}
}

func (s *Service) unindex(ctx context.Context, id uint) {
	if s.index == nil {
		return
	}
	if err := s.index.RemoveListing(ctx, id); err != nil {
		log.Printf("Search: failed to remove place %d from index: %v", id, err)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, l *models.Listing, c access.Capability) {
	evt := events.ListingEvent{
		Type:      eventType,
		ListingID: l.ID,
		Status:    string(l.Status(s.now())),
		Actor:     c.String(),
		At:        s.now(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		log.Printf("Events: failed to publish %s for place %d: %v", eventType, l.ID, err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
