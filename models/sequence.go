package models

import (
	"time"

	"gorm.io/gorm"
)

// ScheduledEmail lifecycle statuses. Transitions are one-way: pending is the
// only non-terminal state.
const (
	ScheduledStatusPending   = "pending"
	ScheduledStatusSent      = "sent"
	ScheduledStatusFailed    = "failed"
	ScheduledStatusCancelled = "cancelled"
)

// Email types dispatched through the renderer registry
const (
	EmailTypeWelcome       = "welcome"
	EmailTypeFollowUpDay3  = "follow_up_day3"
	EmailTypeFollowUpDay7  = "follow_up_day7"
	EmailTypeFollowUpDay14 = "follow_up_day14"
	EmailTypeFollowUpDay30 = "follow_up_day30"
	EmailTypeUnlockCode    = "unlock_code"
	EmailTypeMagicLink     = "magic_link"
)

// SequenceSubscriber is a subscriber's position in the timed email sequence.
// CurrentStep 0 means enrolled but nothing sent yet; it advances by exactly
// one per successful send and never exceeds the number of configured steps.
type SequenceSubscriber struct {
	gorm.Model
	Email            string     `gorm:"uniqueIndex;not null" json:"email"`
	FirstName        *string    `json:"first_name,omitempty"`
	LastName         *string    `json:"last_name,omitempty"`
	SubscriptionDate time.Time  `gorm:"not null" json:"subscription_date"`
	CurrentStep      int        `gorm:"default:0" json:"current_step"`
	LastEmailSent    *time.Time `json:"last_email_sent,omitempty"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	Tags             string     `gorm:"default:'[]'" json:"tags"` // JSON array
}

// DisplayName returns the salutation used in rendered sequence emails
func (s *SequenceSubscriber) DisplayName() string {
	if s.FirstName != nil && *s.FirstName != "" {
		return *s.FirstName
	}
	return "Creator"
}

// ScheduledEmail is one dated instance of a sequence step for one subscriber.
// At most one pending row exists per (subscriber, step).
type ScheduledEmail struct {
	gorm.Model
	SubscriberID uint       `gorm:"not null;index" json:"subscriber_id"`
	SequenceStep int        `gorm:"not null" json:"sequence_step"`
	ScheduledFor time.Time  `gorm:"not null;index" json:"scheduled_for"`
	EmailType    string     `gorm:"not null" json:"email_type"`
	Status       string     `gorm:"default:'pending';index" json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`

	Subscriber SequenceSubscriber `gorm:"foreignKey:SubscriberID" json:"-"`
}

// SequenceStep is one position in the fixed, ordered list of timed emails.
// Steps are configuration, not data: an immutable slice is handed to the
// scheduler at construction so tests can inject short sequences with
// second-granularity delays. Step numbers are dense starting at 1; a step
// can be deactivated without renumbering.
type SequenceStep struct {
	StepNumber int
	Delay      time.Duration // measured from the previous step's send (or enrollment for step 1)
	EmailType  string
	Subject    string
	IsActive   bool
}

// DefaultSequenceSteps is the production five-step onboarding sequence.
func DefaultSequenceSteps() []SequenceStep {
	return []SequenceStep{
		{StepNumber: 1, Delay: 0, EmailType: EmailTypeWelcome, Subject: "🎉 Welcome to Creator's Handbook Premium!", IsActive: true},
		{StepNumber: 2, Delay: 3 * 24 * time.Hour, EmailType: EmailTypeFollowUpDay3, Subject: "🌟 Success Stories from Fellow Creators", IsActive: true},
		{StepNumber: 3, Delay: 7 * 24 * time.Hour, EmailType: EmailTypeFollowUpDay7, Subject: "🚀 Advanced Creator Tips + Free Resources", IsActive: true},
		{StepNumber: 4, Delay: 14 * 24 * time.Hour, EmailType: EmailTypeFollowUpDay14, Subject: "💭 How's your creator journey going?", IsActive: true},
		{StepNumber: 5, Delay: 30 * 24 * time.Hour, EmailType: EmailTypeFollowUpDay30, Subject: "📈 New Content + Exclusive Opportunities", IsActive: true},
	}
}
