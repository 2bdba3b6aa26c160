package utils

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// UnknownEmailTypeError means a due item carried an email type with no
// registered renderer; fatal for that item, never retried.
type UnknownEmailTypeError struct {
	EmailType string
}

func (e *UnknownEmailTypeError) Error() string {
	return fmt.Sprintf("unknown email type: %s", e.EmailType)
}

// ProcessError is one per-item failure surfaced in the batch report
type ProcessError struct {
	ScheduledEmailID uint   `json:"scheduledEmailId"`
	Email            string `json:"email"`
	Error            string `json:"error"`
}

// ProcessResult is the report returned by one delivery pass
type ProcessResult struct {
	Processed int            `json:"processed"`
	Sent      int            `json:"sent"`
	Failed    int            `json:"failed"`
	Errors    []ProcessError `json:"errors"`
}

// SequenceSender is the delivery executor: it turns due scheduled emails
// into outbound messages and reports outcomes back to the scheduler.
type SequenceSender struct {
	scheduler *SequenceScheduler
	mailer    MailServiceInterface
	renderers map[string]EmailRenderer
	logger    *logrus.Entry
}

func NewSequenceSender(scheduler *SequenceScheduler, mailer MailServiceInterface, renderers map[string]EmailRenderer, logger *logrus.Entry) *SequenceSender {
	return &SequenceSender{
		scheduler: scheduler,
		mailer:    mailer,
		renderers: renderers,
		logger:    logger,
	}
}

// ProcessPending runs one delivery pass: fetch due items, render and send
// each serially, record outcomes. A failure for one item never aborts the
// rest of the batch. Serial processing keeps a subscriber's step from
// advancing twice concurrently within a pass; across passes the conditional
// pending→sent update is the guard.
func (ss *SequenceSender) ProcessPending(batchSize int) (*ProcessResult, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	result := &ProcessResult{Errors: []ProcessError{}}

	items, err := ss.scheduler.DueItems(batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due items: %w", err)
	}
	result.Processed = len(items)

	ss.logger.WithField("count", len(items)).Info("Processing scheduled emails")

	for _, item := range items {
		if err := ss.sendItem(item); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ProcessError{
				ScheduledEmailID: item.ScheduledEmailID,
				Email:            item.Email,
				Error:            err.Error(),
			})
			if markErr := ss.scheduler.MarkFailed(item.ScheduledEmailID, err.Error()); markErr != nil && !errors.Is(markErr, ErrAlreadyFinal) {
				ss.logger.WithError(markErr).
					WithField("scheduled_email_id", item.ScheduledEmailID).
					Error("Failed to record email failure")
			}
			continue
		}
		result.Sent++
	}

	ss.logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"failed":    result.Failed,
	}).Info("Email sequence processing completed")

	return result, nil
}

func (ss *SequenceSender) sendItem(item DueItem) error {
	renderer, ok := ss.renderers[item.EmailType]
	if !ok {
		return &UnknownEmailTypeError{EmailType: item.EmailType}
	}

	rendered, err := renderer(TemplateData{FirstName: item.FirstName})
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", item.EmailType, err)
	}

	messageID, err := ss.mailer.Send(Email{
		To:      item.Email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if err != nil {
		return err
	}

	if err := ss.scheduler.MarkSent(item.ScheduledEmailID, messageID); err != nil {
		if errors.Is(err, ErrAlreadyFinal) {
			// Lost the claim race to another pass; the message went out but
			// this pass does not own the accounting.
			ss.logger.WithField("scheduled_email_id", item.ScheduledEmailID).
				Warn("Scheduled email already claimed by another pass")
			return nil
		}
		return err
	}

	ss.logger.WithFields(logrus.Fields{
		"scheduled_email_id": item.ScheduledEmailID,
		"email":              item.Email,
		"email_type":         item.EmailType,
		"message_id":         messageID,
	}).Info("Scheduled email sent")

	return nil
}
