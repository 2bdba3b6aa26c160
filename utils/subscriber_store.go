package utils

import (
	"errors"
	"time"

	"creatorbook/models"

	"gorm.io/gorm"
)

var ErrSubscriberNotFound = errors.New("subscriber not found")

// SubscriberStore owns subscriber identity records: single-row reads and
// conditional upserts keyed by normalized email.
type SubscriberStore struct {
	DB *gorm.DB
}

func NewSubscriberStore(db *gorm.DB) *SubscriberStore {
	return &SubscriberStore{DB: db}
}

func (s *SubscriberStore) FindByEmail(email string) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	err := s.DB.Where("email = ?", NormalizeEmail(email)).First(&subscriber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &subscriber, nil
}

func (s *SubscriberStore) Create(email string, firstName, lastName, discountCode *string) (*models.Subscriber, error) {
	subscriber := models.Subscriber{
		Email:        NormalizeEmail(email),
		FirstName:    firstName,
		LastName:     lastName,
		DiscountCode: discountCode,
		HasAccess:    true, // signup grants free-chapter access
	}
	if err := s.DB.Create(&subscriber).Error; err != nil {
		return nil, err
	}
	return &subscriber, nil
}

func (s *SubscriberStore) CreateWithUnlockCode(email string, firstName, lastName *string, code string, expiresAt time.Time) (*models.Subscriber, error) {
	subscriber := models.Subscriber{
		Email:               NormalizeEmail(email),
		FirstName:           firstName,
		LastName:            lastName,
		UnlockCode:          &code,
		UnlockCodeExpiresAt: &expiresAt,
	}
	if err := s.DB.Create(&subscriber).Error; err != nil {
		return nil, err
	}
	return &subscriber, nil
}

// UpdateUnlockCode re-issues a code for an existing subscriber; names are
// only filled in when they were previously absent.
func (s *SubscriberStore) UpdateUnlockCode(email string, code string, expiresAt time.Time, firstName, lastName *string) error {
	updates := map[string]interface{}{
		"unlock_code":            code,
		"unlock_code_expires_at": expiresAt,
	}
	if firstName != nil && *firstName != "" {
		updates["first_name"] = gorm.Expr("COALESCE(first_name, ?)", *firstName)
	}
	if lastName != nil && *lastName != "" {
		updates["last_name"] = gorm.Expr("COALESCE(last_name, ?)", *lastName)
	}

	result := s.DB.Model(&models.Subscriber{}).
		Where("email = ?", NormalizeEmail(email)).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

// GrantAccess flips the access flag and clears the unlock code; a used code
// can never be replayed.
func (s *SubscriberStore) GrantAccess(email string) error {
	now := time.Now()
	result := s.DB.Model(&models.Subscriber{}).
		Where("email = ?", NormalizeEmail(email)).
		Updates(map[string]interface{}{
			"has_access":             true,
			"unlock_code":            nil,
			"unlock_code_expires_at": nil,
			"access_granted_at":      now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

// MarkPurchased records a completed purchase; purchase implies full access
func (s *SubscriberStore) MarkPurchased(email string) error {
	result := s.DB.Model(&models.Subscriber{}).
		Where("email = ?", NormalizeEmail(email)).
		Updates(map[string]interface{}{
			"has_purchased": true,
			"has_access":    true,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

// RecordEmailSent bumps the outbound accounting columns
func (s *SubscriberStore) RecordEmailSent(email string) error {
	now := time.Now()
	return s.DB.Model(&models.Subscriber{}).
		Where("email = ?", NormalizeEmail(email)).
		Updates(map[string]interface{}{
			"emails_sent":     gorm.Expr("emails_sent + 1"),
			"last_email_sent": now,
		}).Error
}
