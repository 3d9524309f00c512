package models

import "time"

// ListingImage is an uploaded image owned by a listing
type ListingImage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID uint      `gorm:"column:place_id;not null;index" json:"place_id"`
	ImageURL  string    `gorm:"type:varchar(600);not null" json:"image_url"`
	Caption   string    `gorm:"type:varchar(255)" json:"caption,omitempty"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for ListingImage
func (ListingImage) TableName() string {
	return "place_images"
}
