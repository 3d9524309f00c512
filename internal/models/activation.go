package models

import "time"

// Activation is one admin activation of a listing's subscription.
type Activation struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID   uint       `gorm:"not null;index:idx_activation_listing" json:"place_id"`
	Months      int        `gorm:"not null" json:"months"`
	Days        int        `gorm:"not null" json:"days"`
	Amount      float64    `gorm:"not null;default:0" json:"amount"`
	PreviousEnd *time.Time `json:"previous_end,omitempty"`
	NewEnd      time.Time  `gorm:"not null" json:"new_end"`
	Stacked     bool       `gorm:"not null;default:false" json:"stacked"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime;index:idx_activation_listing,priority:2" json:"created_at"`
}

// TableName specifies the table name
func (Activation) TableName() string {
	return "place_activations"
}
