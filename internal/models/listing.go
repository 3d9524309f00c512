package models

import (
	"time"

	"ramallah-time/internal/subscription"
)

type Listing struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// Descriptive attributes
	Name        string   `gorm:"type:varchar(200);not null;index" json:"name"`
	Category    string   `gorm:"type:varchar(80);not null;index" json:"category"`
	Area        string   `gorm:"type:varchar(120);index" json:"area,omitempty"`
	Address     string   `gorm:"type:varchar(255)" json:"address,omitempty"`
	Description string   `gorm:"type:text" json:"description,omitempty"`
	Phone       string   `gorm:"type:varchar(50)" json:"phone,omitempty"`
	WhatsApp    string   `gorm:"column:whatsapp;type:varchar(50)" json:"whatsapp,omitempty"`
	Website     string   `gorm:"type:varchar(255)" json:"website,omitempty"`
	Instagram   string   `gorm:"type:varchar(100)" json:"instagram,omitempty"`
	Facebook    string   `gorm:"type:varchar(255)" json:"facebook,omitempty"`
	MapURL      string   `gorm:"type:varchar(500)" json:"map_url,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	OpenHours   string   `gorm:"type:varchar(255)" json:"open_hours,omitempty"`
	PriceRange  string   `gorm:"type:varchar(50)" json:"price_range,omitempty"`
	Tags        string   `gorm:"type:varchar(255)" json:"tags,omitempty"`

	// Owner account. The secret is only ever stored as a bcrypt digest.
	OwnerEmail        *string `gorm:"type:varchar(255);uniqueIndex" json:"owner_email,omitempty"`
	OwnerSecretDigest string  `gorm:"column:owner_password;type:varchar(100)" json:"-"`
	OwnerName         string  `gorm:"type:varchar(200)" json:"owner_name,omitempty"`

	// Subscription. SubscriptionStatus is a hint (pending or not); the
	// effective status is always resolved against SubscriptionEnd.
	SubscriptionStatus string     `gorm:"type:varchar(20);not null;default:'pending'" json:"-"`
	SubscriptionType   string     `gorm:"type:varchar(50)" json:"subscription_type,omitempty"`
	SubscriptionStart  *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd    *time.Time `gorm:"index" json:"subscription_end,omitempty"`
	PaymentMethod      string     `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	PaymentStatus      string     `gorm:"type:varchar(50);default:'pending'" json:"payment_status,omitempty"`
	PaymentTotal       float64    `gorm:"not null;default:0" json:"payment_total"`

	// Admin controls
	IsPremium  bool `gorm:"not null;default:false;index" json:"is_premium"`
	IsVerified bool `gorm:"not null;default:false" json:"is_verified"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;<-:create" json:"created_at"`

	Images []ListingImage `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

// TableName keeps the existing "places" table.
func (Listing) TableName() string {
	return "places"
}

// Status resolves the effective subscription status at now.
func (l *Listing) Status(now time.Time) subscription.Status {
	return subscription.Resolve(l.SubscriptionStatus, l.SubscriptionEnd, now)
}

// HasOwner reports whether the listing can be claimed by an owner credential.
func (l *Listing) HasOwner() bool {
	return l.OwnerSecretDigest != ""
}

// Email returns the owner email or "".
func (l *Listing) Email() string {
	if l.OwnerEmail == nil {
		return ""
	}
	return *l.OwnerEmail
}
