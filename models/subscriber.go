package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscriber represents an email-captured reader of the handbook
type Subscriber struct {
	gorm.Model

	// Identity (email is the case-insensitive key; normalized before storage)
	Email     string  `gorm:"uniqueIndex;not null" json:"email"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`

	// Access lifecycle
	HasAccess       bool       `gorm:"default:false" json:"has_access"`
	HasPurchased    bool       `gorm:"default:false" json:"has_purchased"`
	AccessGrantedAt *time.Time `json:"access_granted_at,omitempty"`

	// One-time unlock code gating full access. Either both fields are set
	// or both are cleared; granting access clears them.
	UnlockCode          *string    `json:"-"`
	UnlockCodeExpiresAt *time.Time `json:"-"`

	// Signup incentive
	DiscountCode *string `json:"discount_code,omitempty"`

	// Outbound email accounting
	EmailsSent    int        `gorm:"default:0" json:"emails_sent"`
	LastEmailSent *time.Time `json:"last_email_sent,omitempty"`
}

// DisplayName returns the best available salutation for email templates
func (s *Subscriber) DisplayName() string {
	if s.FirstName != nil && *s.FirstName != "" {
		return *s.FirstName
	}
	return "Creator"
}

// ReadingProgress tracks per-chapter engagement for a subscriber
type ReadingProgress struct {
	gorm.Model
	Email         string `gorm:"not null;uniqueIndex:idx_progress_email_chapter" json:"email"`
	ChapterNumber int    `gorm:"not null;uniqueIndex:idx_progress_email_chapter" json:"chapter_number"`
	Completed     bool   `gorm:"default:false" json:"completed"`
	TimeSpent     int    `gorm:"default:0" json:"time_spent"` // seconds
	VideosWatched string `gorm:"default:'[]'" json:"videos_watched"` // JSON array
	QuizzesPassed string `gorm:"default:'[]'" json:"quizzes_passed"` // JSON array
}

// Content access types recorded in ContentAccessLog
const (
	AccessTypeView     = "view"
	AccessTypeDownload = "download"
	AccessTypeShare    = "share"
	AccessTypePurchase = "purchase"
)

// ContentAccessLog records each content touch for analytics
type ContentAccessLog struct {
	gorm.Model
	Email         string `gorm:"not null;index" json:"email"`
	ChapterNumber *int   `json:"chapter_number,omitempty"`
	AccessType    string `gorm:"not null" json:"access_type"`
	IPAddress     string `json:"ip_address,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
}

// UserSession is the durable record behind a session token. The Redis copy
// is only a cache; this row is authoritative.
type UserSession struct {
	gorm.Model
	UserEmail    string    `gorm:"not null;index" json:"user_email"`
	SessionToken string    `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt    time.Time `gorm:"not null" json:"expires_at"`
}
