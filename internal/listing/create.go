package listing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"

	"ramallah-time/internal/access"
	"ramallah-time/internal/events"
	"ramallah-time/internal/models"
	"ramallah-time/internal/subscription"
)

// CreateInput is the payload of a new listing.
type CreateInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Category    string   `json:"category" validate:"required,max=80"`
	Area        string   `json:"area" validate:"max=120"`
	Address     string   `json:"address" validate:"max=255"`
	Description string   `json:"description"`
	Phone       string   `json:"phone" validate:"max=50"`
	WhatsApp    string   `json:"whatsapp" validate:"max=50"`
	Website     string   `json:"website" validate:"max=255"`
	Instagram   string   `json:"instagram" validate:"max=100"`
	Facebook    string   `json:"facebook" validate:"max=255"`
	MapURL      string   `json:"map_url" validate:"max=500"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	OpenHours   string   `json:"open_hours" validate:"max=255"`
	PriceRange  string   `json:"price_range" validate:"max=50"`
	Tags        string   `json:"tags" validate:"max=255"`

	OwnerEmail       string `json:"owner_email" validate:"omitempty,email,max=255"`
	OwnerPassword    string `json:"owner_password" validate:"omitempty,max=72"`
	OwnerName        string `json:"owner_name" validate:"max=200"`
	SubscriptionType string `json:"subscription_type" validate:"max=50"`
	PaymentMethod    string `json:"payment_method" validate:"max=50"`

	// Honored for the admin only.
	IsPremium  bool `json:"is_premium"`
	IsVerified bool `json:"is_verified"`
}

func (in *CreateInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.OwnerEmail = normalizeEmail(in.OwnerEmail)
}

// Create registers a listing. Self-registered listings start pending with no
// window; listings created by the admin are active for AdminGrantDays.
func (s *Service) Create(ctx context.Context, credential string, in CreateInput) (*AuthenticatedView, error) {
	isAdmin := s.resolver.IsAdmin(credential)

	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return nil, describeValidation(err)
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, validationError("latitude and longitude must be provided together")
	}
	if !isAdmin {
		if in.OwnerEmail == "" {
			return nil, validationError("owner email is required")
		}
		if in.OwnerPassword == "" {
			return nil, validationError("a password is required so you can manage your place later")
		}
	}

	if in.OwnerEmail != "" {
		if err := s.ensureEmailFree(ctx, in.OwnerEmail, 0); err != nil {
			return nil, err
		}
	}

	l := &models.Listing{
		Name:             in.Name,
		Category:         in.Category,
		Area:             in.Area,
		Address:          in.Address,
		Description:      in.Description,
		Phone:            in.Phone,
		WhatsApp:         in.WhatsApp,
		Website:          in.Website,
		Instagram:        in.Instagram,
		Facebook:         in.Facebook,
		MapURL:           in.MapURL,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		OpenHours:        in.OpenHours,
		PriceRange:       in.PriceRange,
		Tags:             in.Tags,
		OwnerName:        in.OwnerName,
		SubscriptionType: in.SubscriptionType,
		PaymentMethod:    in.PaymentMethod,
		PaymentStatus:    "pending",
		CreatedAt:        s.now(),
	}
	if in.OwnerEmail != "" {
		email := in.OwnerEmail
		l.OwnerEmail = &email
	}
	if in.OwnerPassword != "" {
		digest, err := s.hasher.Hash(in.OwnerPassword)
		if err != nil {
			if errors.Is(err, access.ErrSecretTooLong) {
				return nil, validationError("password must be at most %d bytes", access.MaxSecretLength)
			}
			log.Printf("Listings: failed to hash owner secret: %v", err)
			return nil, storageError()
		}
		l.OwnerSecretDigest = digest
	}

	capability := access.Owner
	if isAdmin {
		capability = access.Admin
		w := subscription.Grant(s.now(), s.cfg.AdminGrantDays)
		l.SubscriptionStatus = subscription.HintActive
		l.SubscriptionStart = &w.Start
		l.SubscriptionEnd = &w.End
		l.IsPremium = in.IsPremium
		l.IsVerified = in.IsVerified
	} else {
		l.SubscriptionStatus = subscription.HintPending
	}

	if err := s.store.CreateListing(ctx, l); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, emailTaken()
		}
		log.Printf("Listings: failed to create place %q: %v", l.Name, err)
		return nil, storageError()
	}
	log.Printf("Listings: created place %d (%s, by %s)", l.ID, l.Status(s.now()), capability)

	s.reindex(ctx, l)
	s.publish(ctx, events.ListingCreated, l, capability)

	view := project(l, capability, l.Status(s.now()), Point{})
	return view.(*AuthenticatedView), nil
}

// ensureEmailFree fails with a conflict when email belongs to a listing other than self.
func (s *Service) ensureEmailFree(ctx context.Context, email string, self uint) error {
	existing, err := s.store.FindByOwnerEmail(ctx, email)
	switch {
	case err == nil:
		if existing.ID != self {
			return emailTaken()
		}
		return nil
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		log.Printf("Listings: owner email lookup failed: %v", err)
		return storageError()
	}
}

func emailTaken() error {
	return newError(ErrConflict, "this email is already registered, please log in")
}

// describeValidation turns validator errors into a single caller-facing error.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationError("invalid input")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return validationError("%s", strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func toSnake(name string) string {
	switch name {
	case "WhatsApp":
		return "whatsapp"
	case "MapURL":
		return "map_url"
	case "OwnerPassword":
		return "owner_password"
	}
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
