package utils

import (
	"errors"
	"fmt"
	"time"

	"creatorbook/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrInvalidEmail = errors.New("valid email is required")

	// ErrAlreadyFinal means the scheduled email had already left the pending
	// state when a transition was attempted; terminal states never revert.
	ErrAlreadyFinal = errors.New("scheduled email is not pending")
)

// SequenceScheduler owns per-subscriber progression through the timed email
// sequence. Invariant: every active subscriber has at most one pending
// ScheduledEmail, representing the next step they are due to receive.
type SequenceScheduler struct {
	db     *gorm.DB
	steps  []models.SequenceStep
	logger *logrus.Entry
}

// NewSequenceScheduler builds a scheduler over the given step configuration.
// The step slice is treated as immutable for the scheduler's lifetime.
func NewSequenceScheduler(db *gorm.DB, steps []models.SequenceStep, logger *logrus.Entry) *SequenceScheduler {
	return &SequenceScheduler{
		db:     db,
		steps:  steps,
		logger: logger,
	}
}

// Steps returns the configured sequence steps
func (s *SequenceScheduler) Steps() []models.SequenceStep {
	return s.steps
}

// activeStep returns the active step with the given number, or nil
func (s *SequenceScheduler) activeStep(stepNumber int) *models.SequenceStep {
	for i := range s.steps {
		if s.steps[i].StepNumber == stepNumber && s.steps[i].IsActive {
			return &s.steps[i]
		}
	}
	return nil
}

// Enroll creates or replaces the sequence subscriber for the email and
// schedules step 1. Re-enrolling an existing subscriber resets their step
// counter to 0 and restarts the sequence from the top; previously pending
// emails are cancelled so the single-pending invariant holds across the
// reset.
func (s *SequenceScheduler) Enroll(email string, firstName, lastName *string, tags string) (uint, error) {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return 0, ErrInvalidEmail
	}
	if tags == "" {
		tags = "[]"
	}

	var subscriber models.SequenceSubscriber
	err := s.db.Where("email = ?", email).First(&subscriber).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		subscriber = models.SequenceSubscriber{
			Email:            email,
			FirstName:        firstName,
			LastName:         lastName,
			SubscriptionDate: time.Now(),
			CurrentStep:      0,
			IsActive:         true,
			Tags:             tags,
		}
		if err := s.db.Create(&subscriber).Error; err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		if err := s.cancelPending(subscriber.ID); err != nil {
			return 0, err
		}
		subscriber.FirstName = firstName
		subscriber.LastName = lastName
		subscriber.SubscriptionDate = time.Now()
		subscriber.CurrentStep = 0
		subscriber.LastEmailSent = nil
		subscriber.IsActive = true
		subscriber.Tags = tags
		if err := s.db.Save(&subscriber).Error; err != nil {
			return 0, err
		}
	}

	if err := s.ScheduleNext(subscriber.ID); err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"email":         email,
		"subscriber_id": subscriber.ID,
	}).Info("Subscriber enrolled in email sequence")

	return subscriber.ID, nil
}

// ScheduleNext inserts one pending ScheduledEmail for the subscriber's next
// step. No-op for inactive subscribers and for subscribers who have
// completed the sequence. The delay is measured from now, not from the
// enrollment time, so the schedule self-corrects against processing latency.
func (s *SequenceScheduler) ScheduleNext(subscriberID uint) error {
	var subscriber models.SequenceSubscriber
	err := s.db.First(&subscriber, subscriberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.WithField("subscriber_id", subscriberID).Warn("Subscriber not found")
		return nil
	}
	if err != nil {
		return err
	}
	if !subscriber.IsActive {
		return nil
	}

	nextStep := subscriber.CurrentStep + 1
	step := s.activeStep(nextStep)
	if step == nil {
		s.logger.WithFields(logrus.Fields{
			"subscriber_id":   subscriberID,
			"email":           subscriber.Email,
			"completed_steps": subscriber.CurrentStep,
		}).Info("No more sequence steps for subscriber")
		return nil
	}

	// One pending row per (subscriber, step); a concurrent caller that lost
	// the claim race must not insert a duplicate.
	var existing int64
	if err := s.db.Model(&models.ScheduledEmail{}).
		Where("subscriber_id = ? AND sequence_step = ? AND status = ?",
			subscriberID, nextStep, models.ScheduledStatusPending).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	scheduled := models.ScheduledEmail{
		SubscriberID: subscriberID,
		SequenceStep: nextStep,
		ScheduledFor: time.Now().Add(step.Delay),
		EmailType:    step.EmailType,
		Status:       models.ScheduledStatusPending,
	}
	if err := s.db.Create(&scheduled).Error; err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"subscriber_id": subscriberID,
		"email":         subscriber.Email,
		"sequence_step": nextStep,
		"email_type":    step.EmailType,
		"scheduled_for": scheduled.ScheduledFor,
	}).Info("Email scheduled")

	return nil
}

// DueItem is one deliverable unit: a due scheduled email joined with the
// subscriber's contact info and the step's subject line.
type DueItem struct {
	ScheduledEmailID uint
	SubscriberID     uint
	Email            string
	FirstName        string
	SequenceStep     int
	EmailType        string
	Subject          string
	ScheduledFor     time.Time
}

// DueItems returns up to limit pending emails whose scheduled time has
// passed, oldest first, for active subscribers only.
func (s *SequenceScheduler) DueItems(limit int) ([]DueItem, error) {
	var rows []models.ScheduledEmail
	err := s.db.Preload("Subscriber").
		Joins("JOIN sequence_subscribers ON sequence_subscribers.id = scheduled_emails.subscriber_id").
		Where("scheduled_emails.status = ? AND scheduled_emails.scheduled_for <= ? AND sequence_subscribers.is_active = ?",
			models.ScheduledStatusPending, time.Now(), true).
		Order("scheduled_emails.scheduled_for ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]DueItem, 0, len(rows))
	for _, row := range rows {
		subject := row.EmailType
		if step := s.activeStep(row.SequenceStep); step != nil {
			subject = step.Subject
		}
		items = append(items, DueItem{
			ScheduledEmailID: row.ID,
			SubscriberID:     row.SubscriberID,
			Email:            row.Subscriber.Email,
			FirstName:        row.Subscriber.DisplayName(),
			SequenceStep:     row.SequenceStep,
			EmailType:        row.EmailType,
			Subject:          subject,
			ScheduledFor:     row.ScheduledFor,
		})
	}
	return items, nil
}

// MarkSent transitions a pending email to sent, advances the subscriber's
// step counter to the step just sent, and schedules the next step. The
// pending→sent transition is a single conditional update: if another pass
// already claimed the row, ErrAlreadyFinal is returned and nothing advances.
func (s *SequenceScheduler) MarkSent(scheduledEmailID uint, messageID string) error {
	var scheduled models.ScheduledEmail
	if err := s.db.First(&scheduled, scheduledEmailID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("scheduled email %d not found", scheduledEmailID)
		}
		return err
	}

	now := time.Now()
	result := s.db.Model(&models.ScheduledEmail{}).
		Where("id = ? AND status = ?", scheduledEmailID, models.ScheduledStatusPending).
		Updates(map[string]interface{}{
			"status":  models.ScheduledStatusSent,
			"sent_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyFinal
	}

	if err := s.db.Model(&models.SequenceSubscriber{}).
		Where("id = ?", scheduled.SubscriberID).
		Updates(map[string]interface{}{
			"current_step":    scheduled.SequenceStep,
			"last_email_sent": now,
		}).Error; err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"scheduled_email_id": scheduledEmailID,
		"subscriber_id":      scheduled.SubscriberID,
		"sequence_step":      scheduled.SequenceStep,
		"message_id":         messageID,
	}).Info("Email marked as sent")

	return s.ScheduleNext(scheduled.SubscriberID)
}

// MarkFailed transitions a pending email to failed and records the error.
// No retry is scheduled: a failed step is a dead end for that subscriber.
func (s *SequenceScheduler) MarkFailed(scheduledEmailID uint, errorMessage string) error {
	result := s.db.Model(&models.ScheduledEmail{}).
		Where("id = ? AND status = ?", scheduledEmailID, models.ScheduledStatusPending).
		Updates(map[string]interface{}{
			"status":        models.ScheduledStatusFailed,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyFinal
	}

	s.logger.WithFields(logrus.Fields{
		"scheduled_email_id": scheduledEmailID,
		"error":              errorMessage,
	}).Error("Email marked as failed")

	return nil
}

// Unsubscribe deactivates the subscriber and cancels every pending email.
// Idempotent; unknown emails are a no-op.
func (s *SequenceScheduler) Unsubscribe(email string) error {
	email = NormalizeEmail(email)

	var subscriber models.SequenceSubscriber
	err := s.db.Where("email = ?", email).First(&subscriber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.db.Model(&models.SequenceSubscriber{}).
		Where("id = ?", subscriber.ID).
		Update("is_active", false).Error; err != nil {
		return err
	}

	if err := s.cancelPending(subscriber.ID); err != nil {
		return err
	}

	s.logger.WithField("email", email).Info("Subscriber unsubscribed from sequence")
	return nil
}

// cancelPending transitions every pending row for the subscriber to
// cancelled in one conditional update, so a concurrent delivery pass either
// sends first or sees the cancellation.
func (s *SequenceScheduler) cancelPending(subscriberID uint) error {
	return s.db.Model(&models.ScheduledEmail{}).
		Where("subscriber_id = ? AND status = ?", subscriberID, models.ScheduledStatusPending).
		Update("status", models.ScheduledStatusCancelled).Error
}

// StepCount is one bucket of the subscriber-by-step distribution
type StepCount struct {
	CurrentStep int   `json:"current_step"`
	Count       int64 `json:"count"`
}

type SequenceStats struct {
	TotalActiveSubscribers int64       `json:"totalActiveSubscribers"`
	TotalEmailsSent        int64       `json:"totalEmailsSent"`
	PendingEmails          int64       `json:"pendingEmails"`
	StepDistribution       []StepCount `json:"stepDistribution"`
}

// Stats returns aggregate sequence counters; read-only, no side effects
func (s *SequenceScheduler) Stats() (*SequenceStats, error) {
	stats := &SequenceStats{}

	if err := s.db.Model(&models.SequenceSubscriber{}).
		Where("is_active = ?", true).
		Count(&stats.TotalActiveSubscribers).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.ScheduledEmail{}).
		Where("status = ?", models.ScheduledStatusSent).
		Count(&stats.TotalEmailsSent).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.ScheduledEmail{}).
		Where("status = ?", models.ScheduledStatusPending).
		Count(&stats.PendingEmails).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.SequenceSubscriber{}).
		Select("current_step, COUNT(*) as count").
		Where("is_active = ?", true).
		Group("current_step").
		Order("current_step").
		Scan(&stats.StepDistribution).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
