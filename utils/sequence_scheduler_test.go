package utils

import (
	"testing"
	"time"

	"creatorbook/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Subscriber{},
		&models.ReadingProgress{},
		&models.ContentAccessLog{},
		&models.UserSession{},
		&models.SequenceSubscriber{},
		&models.ScheduledEmail{},
	))
	return db
}

func testSteps() []models.SequenceStep {
	return []models.SequenceStep{
		{StepNumber: 1, Delay: 0, EmailType: models.EmailTypeWelcome, Subject: "Welcome", IsActive: true},
		{StepNumber: 2, Delay: time.Hour, EmailType: models.EmailTypeFollowUpDay3, Subject: "Day 3", IsActive: true},
		{StepNumber: 3, Delay: time.Hour, EmailType: models.EmailTypeFollowUpDay7, Subject: "Day 7", IsActive: true},
	}
}

func newTestScheduler(t *testing.T) (*SequenceScheduler, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewSequenceScheduler(db, testSteps(), NewLogger("test")), db
}

func pendingFor(t *testing.T, db *gorm.DB, subscriberID uint) []models.ScheduledEmail {
	t.Helper()
	var rows []models.ScheduledEmail
	require.NoError(t, db.Where("subscriber_id = ? AND status = ?",
		subscriberID, models.ScheduledStatusPending).Find(&rows).Error)
	return rows
}

func TestEnrollSchedulesFirstStep(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("new@example.com", Pointer("Ada"), nil, `["signup"]`)
	require.NoError(t, err)

	var subscriber models.SequenceSubscriber
	require.NoError(t, db.First(&subscriber, id).Error)
	assert.Equal(t, "new@example.com", subscriber.Email)
	assert.Equal(t, 0, subscriber.CurrentStep)
	assert.True(t, subscriber.IsActive)

	pending := pendingFor(t, db, id)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].SequenceStep)
	assert.Equal(t, models.EmailTypeWelcome, pending[0].EmailType)
	assert.WithinDuration(t, time.Now(), pending[0].ScheduledFor, 5*time.Second)
}

func TestEnrollRejectsInvalidEmail(t *testing.T) {
	scheduler, _ := newTestScheduler(t)

	_, err := scheduler.Enroll("not-an-email", nil, nil, "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestEnrollNormalizesEmail(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("  Mixed.Case@Example.COM ", nil, nil, "")
	require.NoError(t, err)

	var subscriber models.SequenceSubscriber
	require.NoError(t, db.First(&subscriber, id).Error)
	assert.Equal(t, "mixed.case@example.com", subscriber.Email)
}

// Re-enrolling an already-progressed subscriber restarts the sequence from
// the top: step counter back to 0, step 1 rescheduled, previously queued
// emails cancelled. Exactly one subscriber row exists throughout.
func TestReEnrollResetsProgress(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("repeat@example.com", Pointer("First"), nil, `["signup"]`)
	require.NoError(t, err)

	// Advance through step 1 so the subscriber has real progress
	due, err := scheduler.DueItems(10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, scheduler.MarkSent(due[0].ScheduledEmailID, "msg-1"))

	var subscriber models.SequenceSubscriber
	require.NoError(t, db.First(&subscriber, id).Error)
	require.Equal(t, 1, subscriber.CurrentStep)

	id2, err := scheduler.Enroll("repeat@example.com", Pointer("Second"), nil, `["manual"]`)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	var count int64
	require.NoError(t, db.Model(&models.SequenceSubscriber{}).
		Where("email = ?", "repeat@example.com").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Re-scan into a zeroed struct: gorm leaves fields untouched for NULL
	// columns, so reusing the populated struct would keep stale values.
	subscriber = models.SequenceSubscriber{}
	require.NoError(t, db.First(&subscriber, id).Error)
	assert.Equal(t, 0, subscriber.CurrentStep)
	assert.Equal(t, "Second", *subscriber.FirstName)
	assert.Nil(t, subscriber.LastEmailSent)
	assert.Equal(t, `["manual"]`, subscriber.Tags)

	pending := pendingFor(t, db, id)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].SequenceStep)

	var cancelled int64
	require.NoError(t, db.Model(&models.ScheduledEmail{}).
		Where("subscriber_id = ? AND status = ?", id, models.ScheduledStatusCancelled).
		Count(&cancelled).Error)
	assert.EqualValues(t, 1, cancelled)
}

func TestMarkSentAdvancesAndSchedulesNext(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("walk@example.com", nil, nil, "")
	require.NoError(t, err)

	due, err := scheduler.DueItems(10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "Welcome", due[0].Subject)
	assert.Equal(t, "Creator", due[0].FirstName)

	require.NoError(t, scheduler.MarkSent(due[0].ScheduledEmailID, "msg-1"))

	var subscriber models.SequenceSubscriber
	require.NoError(t, db.First(&subscriber, id).Error)
	assert.Equal(t, 1, subscriber.CurrentStep)
	assert.NotNil(t, subscriber.LastEmailSent)

	pending := pendingFor(t, db, id)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].SequenceStep)
	// Step 2 carries an hour delay measured from now, so it is not yet due
	assert.True(t, pending[0].ScheduledFor.After(time.Now().Add(30*time.Minute)))

	due, err = scheduler.DueItems(10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkSentTwiceReturnsErrAlreadyFinal(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("double@example.com", nil, nil, "")
	require.NoError(t, err)

	due, err := scheduler.DueItems(10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, scheduler.MarkSent(due[0].ScheduledEmailID, "msg-1"))
	err = scheduler.MarkSent(due[0].ScheduledEmailID, "msg-dup")
	assert.ErrorIs(t, err, ErrAlreadyFinal)

	// The lost claim must not advance the step a second time
	var subscriber models.SequenceSubscriber
	require.NoError(t, db.First(&subscriber, id).Error)
	assert.Equal(t, 1, subscriber.CurrentStep)

	pending := pendingFor(t, db, id)
	assert.Len(t, pending, 1)
}

func TestMarkFailedIsTerminal(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("fail@example.com", nil, nil, "")
	require.NoError(t, err)

	due, err := scheduler.DueItems(10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, scheduler.MarkFailed(due[0].ScheduledEmailID, "smtp 550"))

	var row models.ScheduledEmail
	require.NoError(t, db.First(&row, due[0].ScheduledEmailID).Error)
	assert.Equal(t, models.ScheduledStatusFailed, row.Status)
	require.NotNil(t, row.ErrorMessage)
	assert.Equal(t, "smtp 550", *row.ErrorMessage)

	// No retry and no next step: the sequence stops here
	assert.Empty(t, pendingFor(t, db, id))

	var subscriber models.SequenceSubscriber
	require.NoError(t, db.First(&subscriber, id).Error)
	assert.Equal(t, 0, subscriber.CurrentStep)

	assert.ErrorIs(t, scheduler.MarkSent(due[0].ScheduledEmailID, "late"), ErrAlreadyFinal)
}

func TestSequenceCompletion(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	steps := []models.SequenceStep{
		{StepNumber: 1, Delay: 0, EmailType: models.EmailTypeWelcome, Subject: "Welcome", IsActive: true},
		{StepNumber: 2, Delay: 0, EmailType: models.EmailTypeFollowUpDay3, Subject: "Day 3", IsActive: true},
	}
	scheduler = NewSequenceScheduler(db, steps, NewLogger("test"))

	id, err := scheduler.Enroll("done@example.com", nil, nil, "")
	require.NoError(t, err)

	for step := 1; step <= 2; step++ {
		due, err := scheduler.DueItems(10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, step, due[0].SequenceStep)
		require.NoError(t, scheduler.MarkSent(due[0].ScheduledEmailID, "msg"))
	}

	var subscriber models.SequenceSubscriber
	require.NoError(t, db.First(&subscriber, id).Error)
	assert.Equal(t, 2, subscriber.CurrentStep)
	assert.Empty(t, pendingFor(t, db, id))

	// ScheduleNext past the last step stays a no-op
	require.NoError(t, scheduler.ScheduleNext(id))
	assert.Empty(t, pendingFor(t, db, id))
}

func TestInactiveStepIsSkippedEntirely(t *testing.T) {
	db := newTestDB(t)
	steps := testSteps()
	steps[1].IsActive = false
	scheduler := NewSequenceScheduler(db, steps, NewLogger("test"))

	id, err := scheduler.Enroll("gap@example.com", nil, nil, "")
	require.NoError(t, err)

	due, err := scheduler.DueItems(10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, scheduler.MarkSent(due[0].ScheduledEmailID, "msg"))

	// Step 2 is inactive, so nothing further gets scheduled
	assert.Empty(t, pendingFor(t, db, id))
}

func TestUnsubscribeCancelsPending(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("leave@example.com", nil, nil, "")
	require.NoError(t, err)

	require.NoError(t, scheduler.Unsubscribe("leave@example.com"))

	var subscriber models.SequenceSubscriber
	require.NoError(t, db.First(&subscriber, id).Error)
	assert.False(t, subscriber.IsActive)
	assert.Empty(t, pendingFor(t, db, id))

	due, err := scheduler.DueItems(10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Idempotent, and unknown emails are a no-op
	require.NoError(t, scheduler.Unsubscribe("leave@example.com"))
	require.NoError(t, scheduler.Unsubscribe("never-seen@example.com"))
}

func TestScheduleNextIgnoresInactiveSubscriber(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("paused@example.com", nil, nil, "")
	require.NoError(t, err)
	require.NoError(t, scheduler.Unsubscribe("paused@example.com"))

	require.NoError(t, scheduler.ScheduleNext(id))
	assert.Empty(t, pendingFor(t, db, id))
}

func TestScheduleNextSkipsDuplicatePending(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	id, err := scheduler.Enroll("dup@example.com", nil, nil, "")
	require.NoError(t, err)

	// A second call for the same step must not add a second pending row
	require.NoError(t, scheduler.ScheduleNext(id))
	assert.Len(t, pendingFor(t, db, id), 1)
}

func TestDueItemsOrderAndLimit(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	idA, err := scheduler.Enroll("a@example.com", nil, nil, "")
	require.NoError(t, err)
	_, err = scheduler.Enroll("b@example.com", nil, nil, "")
	require.NoError(t, err)

	// Backdate A's pending row so it sorts first
	require.NoError(t, db.Model(&models.ScheduledEmail{}).
		Where("subscriber_id = ?", idA).
		Update("scheduled_for", time.Now().Add(-time.Hour)).Error)

	due, err := scheduler.DueItems(10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a@example.com", due[0].Email)
	assert.Equal(t, "b@example.com", due[1].Email)

	due, err = scheduler.DueItems(1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "a@example.com", due[0].Email)
}

func TestStats(t *testing.T) {
	scheduler, _ := newTestScheduler(t)

	_, err := scheduler.Enroll("one@example.com", nil, nil, "")
	require.NoError(t, err)

	due, err := scheduler.DueItems(10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, scheduler.MarkSent(due[0].ScheduledEmailID, "msg"))

	_, err = scheduler.Enroll("two@example.com", nil, nil, "")
	require.NoError(t, err)
	require.NoError(t, scheduler.Unsubscribe("two@example.com"))

	stats, err := scheduler.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalActiveSubscribers)
	assert.EqualValues(t, 1, stats.TotalEmailsSent)
	assert.EqualValues(t, 1, stats.PendingEmails)
	require.Len(t, stats.StepDistribution, 1)
	assert.Equal(t, 1, stats.StepDistribution[0].CurrentStep)
	assert.EqualValues(t, 1, stats.StepDistribution[0].Count)
}
