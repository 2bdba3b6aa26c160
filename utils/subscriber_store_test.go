package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberStoreFindByEmailNormalizes(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	_, err := store.Create("reader@example.com", Pointer("Ada"), nil, nil)
	require.NoError(t, err)

	found, err := store.FindByEmail("  Reader@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", found.Email)

	_, err = store.FindByEmail("missing@example.com")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestSubscriberStoreCreateGrantsFreeAccess(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	code := "CREATOR10-DEADBEEF"
	subscriber, err := store.Create("reader@example.com", nil, nil, &code)
	require.NoError(t, err)
	assert.True(t, subscriber.HasAccess)
	assert.False(t, subscriber.HasPurchased)
}

func TestUpdateUnlockCodeKeepsExistingName(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	_, err := store.Create("reader@example.com", Pointer("Ada"), nil, nil)
	require.NoError(t, err)

	err = store.UpdateUnlockCode("reader@example.com", "123456",
		time.Now().Add(time.Hour), Pointer("Other"), nil)
	require.NoError(t, err)

	found, err := store.FindByEmail("reader@example.com")
	require.NoError(t, err)
	require.NotNil(t, found.UnlockCode)
	assert.Equal(t, "123456", *found.UnlockCode)
	// An existing name wins over the one in the new request
	assert.Equal(t, "Ada", *found.FirstName)
}

func TestUpdateUnlockCodeFillsMissingName(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	_, err := store.Create("anon@example.com", nil, nil, nil)
	require.NoError(t, err)

	err = store.UpdateUnlockCode("anon@example.com", "123456",
		time.Now().Add(time.Hour), Pointer("Ada"), nil)
	require.NoError(t, err)

	found, err := store.FindByEmail("anon@example.com")
	require.NoError(t, err)
	require.NotNil(t, found.FirstName)
	assert.Equal(t, "Ada", *found.FirstName)
}

func TestUpdateUnlockCodeUnknownEmail(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	err := store.UpdateUnlockCode("missing@example.com", "123456",
		time.Now().Add(time.Hour), nil, nil)
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestGrantAccessClearsCode(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	_, err := store.CreateWithUnlockCode("locked@example.com", nil, nil,
		"654321", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, store.GrantAccess("locked@example.com"))

	found, err := store.FindByEmail("locked@example.com")
	require.NoError(t, err)
	assert.True(t, found.HasAccess)
	assert.Nil(t, found.UnlockCode)
	assert.Nil(t, found.UnlockCodeExpiresAt)
	assert.NotNil(t, found.AccessGrantedAt)
}

func TestMarkPurchasedImpliesAccess(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	_, err := store.CreateWithUnlockCode("buyer@example.com", nil, nil,
		"654321", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, store.MarkPurchased("buyer@example.com"))

	found, err := store.FindByEmail("buyer@example.com")
	require.NoError(t, err)
	assert.True(t, found.HasPurchased)
	assert.True(t, found.HasAccess)

	assert.ErrorIs(t, store.MarkPurchased("missing@example.com"), ErrSubscriberNotFound)
}

func TestRecordEmailSentIncrements(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	_, err := store.Create("counted@example.com", nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.RecordEmailSent("counted@example.com"))
	require.NoError(t, store.RecordEmailSent("counted@example.com"))

	found, err := store.FindByEmail("counted@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, found.EmailsSent)
	assert.NotNil(t, found.LastEmailSent)
}
