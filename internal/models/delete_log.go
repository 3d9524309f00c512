package models

import "time"

// DeleteLog records a listing that was physically deleted
type DeleteLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID  uint      `gorm:"not null;index" json:"place_id"`
	Name       string    `gorm:"type:varchar(200)" json:"name"`
	OwnerEmail string    `gorm:"type:varchar(255)" json:"owner_email,omitempty"`
	ImageCount int       `gorm:"not null;default:0" json:"image_count"`
	Reason     string    `gorm:"type:varchar(50);not null" json:"reason"`
	DeletedAt  time.Time `gorm:"not null;autoCreateTime;index" json:"deleted_at"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonOwner = "owner_deleted"
	DeleteReasonAdmin = "admin_deleted"
)
