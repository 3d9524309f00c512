package listing

import (
	"math"
	"sort"
	"time"

	"ramallah-time/internal/access"
	"ramallah-time/internal/geo"
	"ramallah-time/internal/models"
	"ramallah-time/internal/subscription"
)

// View is either a *PublicView or an *AuthenticatedView.
type View interface {
	Kind() string
	Public() *PublicView
}

// ImageView is the public shape of a listing image.
type ImageView struct {
	ID        uint   `json:"id"`
	ImageURL  string `json:"image_url"`
	Caption   string `json:"caption,omitempty"`
	SortOrder int    `json:"sort_order"`
}

// PublicView is what visitors see. It carries no ownership or payment data.
type PublicView struct {
	ID                 uint                `json:"id"`
	Name               string              `json:"name"`
	Category           string              `json:"category"`
	Area               string              `json:"area,omitempty"`
	Address            string              `json:"address,omitempty"`
	Description        string              `json:"description,omitempty"`
	Phone              string              `json:"phone,omitempty"`
	WhatsApp           string              `json:"whatsapp,omitempty"`
	Website            string              `json:"website,omitempty"`
	Instagram          string              `json:"instagram,omitempty"`
	Facebook           string              `json:"facebook,omitempty"`
	MapURL             string              `json:"map_url,omitempty"`
	Latitude           *float64            `json:"latitude,omitempty"`
	Longitude          *float64            `json:"longitude,omitempty"`
	OpenHours          string              `json:"open_hours,omitempty"`
	PriceRange         string              `json:"price_range,omitempty"`
	Tags               string              `json:"tags,omitempty"`
	IsPremium          bool                `json:"is_premium"`
	IsVerified         bool                `json:"is_verified"`
	CreatedAt          time.Time           `json:"created_at"`
	Distance           *float64            `json:"distance,omitempty"`
	Images             []ImageView         `json:"images"`
	SubscriptionStatus subscription.Status `json:"subscription_status"`
	IsExpired          bool                `json:"is_expired"`
}

func (v *PublicView) Kind() string        { return "public" }
func (v *PublicView) Public() *PublicView { return v }

// AuthenticatedView is what the admin and the listing owner see.
type AuthenticatedView struct {
	PublicView
	OwnerEmail        string     `json:"owner_email,omitempty"`
	OwnerName         string     `json:"owner_name,omitempty"`
	SubscriptionType  string     `json:"subscription_type,omitempty"`
	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end,omitempty"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	PaymentStatus     string     `json:"payment_status,omitempty"`
	PaymentTotal      float64    `json:"payment_total"`
	Access            string     `json:"access"`
}

func (v *AuthenticatedView) Kind() string        { return "authenticated" }
func (v *AuthenticatedView) Public() *PublicView { return &v.PublicView }

// SkipReason explains why a stored row could not be shaped.
type SkipReason string

const (
	SkipMissingName        SkipReason = "missing_name"
	SkipMissingCategory    SkipReason = "missing_category"
	SkipInvalidCoordinates SkipReason = "invalid_coordinates"
)

// Skip is a listing omitted from a result set. The stored row is untouched.
type Skip struct {
	ListingID uint       `json:"place_id"`
	Reason    SkipReason `json:"reason"`
}

// Caller location for distance calculation.
type Point struct {
	Lat *float64
	Lng *float64
}

func (p Point) present() bool {
	return p.Lat != nil && p.Lng != nil
}

// checkShape reports why l cannot be projected, or "" when it can.
func checkShape(l *models.Listing) SkipReason {
	if l.Name == "" {
		return SkipMissingName
	}
	if l.Category == "" {
		return SkipMissingCategory
	}
	if l.Latitude != nil && (math.IsNaN(*l.Latitude) || *l.Latitude < -90 || *l.Latitude > 90) {
		return SkipInvalidCoordinates
	}
	if l.Longitude != nil && (math.IsNaN(*l.Longitude) || *l.Longitude < -180 || *l.Longitude > 180) {
		return SkipInvalidCoordinates
	}
	return ""
}

// project shapes a listing for a caller of the given capability.
// The caller must have already decided that the listing is visible.
func project(l *models.Listing, capability access.Capability, status subscription.Status, from Point) View {
	pub := PublicView{
		ID:                 l.ID,
		Name:               l.Name,
		Category:           l.Category,
		Area:               l.Area,
		Address:            l.Address,
		Description:        l.Description,
		Phone:              l.Phone,
		WhatsApp:           l.WhatsApp,
		Website:            l.Website,
		Instagram:          l.Instagram,
		Facebook:           l.Facebook,
		MapURL:             l.MapURL,
		Latitude:           l.Latitude,
		Longitude:          l.Longitude,
		OpenHours:          l.OpenHours,
		PriceRange:         l.PriceRange,
		Tags:               l.Tags,
		IsPremium:          l.IsPremium,
		IsVerified:         l.IsVerified,
		CreatedAt:          l.CreatedAt,
		Images:             imageViews(l.Images),
		SubscriptionStatus: status,
		IsExpired:          status.Expired(),
	}
	if from.present() {
		if d, ok := geo.Haversine(from.Lat, from.Lng, l.Latitude, l.Longitude); ok {
			pub.Distance = &d
		}
	}

	if !capability.Privileged() {
		return &pub
	}
	return &AuthenticatedView{
		PublicView:        pub,
		OwnerEmail:        l.Email(),
		OwnerName:         l.OwnerName,
		SubscriptionType:  l.SubscriptionType,
		SubscriptionStart: l.SubscriptionStart,
		SubscriptionEnd:   l.SubscriptionEnd,
		PaymentMethod:     l.PaymentMethod,
		PaymentStatus:     l.PaymentStatus,
		PaymentTotal:      l.PaymentTotal,
		Access:            capability.String(),
	}
}

func imageViews(images []models.ListingImage) []ImageView {
	sorted := make([]models.ListingImage, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]ImageView, 0, len(sorted))
	for _, img := range sorted {
		out = append(out, ImageView{
			ID:        img.ID,
			ImageURL:  img.ImageURL,
			Caption:   img.Caption,
			SortOrder: img.SortOrder,
		})
	}
	return out
}

// sortViews orders premium listings first. Within a tier listings are sorted
// by ascending distance when the caller sent coordinates (listings without a
// distance last), otherwise newest first by id.
func sortViews(views []View, byDistance bool) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Public(), views[j].Public()
		if a.IsPremium != b.IsPremium {
			return a.IsPremium
		}
		if byDistance {
			switch {
			case a.Distance != nil && b.Distance != nil:
				if *a.Distance != *b.Distance {
					return *a.Distance < *b.Distance
				}
			case a.Distance != nil:
				return true
			case b.Distance != nil:
				return false
			}
		}
		return a.ID > b.ID
	})
}
