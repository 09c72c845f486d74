package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byagge/vashsender-2.0-sub000/internal/model"
)

func seedList(t *testing.T, db *testDB, userID int64, name string) *model.ContactList {
	t.Helper()
	repo := NewContactRepository(db.DB)
	l, err := repo.CreateList(context.Background(), &model.ContactList{UserID: userID, Name: name})
	require.NoError(t, err)
	return l
}

func seedContact(t *testing.T, db *testDB, listID int64, email string, status model.ContactStatus) *model.Contact {
	t.Helper()
	repo := NewContactRepository(db.DB)
	c, err := repo.Create(context.Background(), &model.Contact{
		ListID: listID,
		Email:  email,
		Status: status,
	})
	require.NoError(t, err)
	return c
}

func TestContactRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db.DB)
	user := seedUser(t, db, true)
	list := seedList(t, db, user.ID, "subscribers")

	c := seedContact(t, db, list.ID, "alice@example.com", model.ContactStatusValid)

	got, err := repo.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, model.ContactStatusValid, got.Status)

	_, err = repo.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrContactNotFound)
}

func TestContactRepository_ResolveValidRecipients(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db.DB)
	user := seedUser(t, db, true)
	listA := seedList(t, db, user.ID, "newsletter")
	listB := seedList(t, db, user.ID, "promo")
	ctx := context.Background()

	first := seedContact(t, db, listA.ID, "alice@example.com", model.ContactStatusValid)
	// Same address subscribed through a second list: only the first row wins.
	seedContact(t, db, listB.ID, "alice@example.com", model.ContactStatusValid)
	bob := seedContact(t, db, listB.ID, "bob@example.com", model.ContactStatusValid)
	seedContact(t, db, listA.ID, "carol@example.com", model.ContactStatusInvalid)

	ids, err := repo.ResolveValidRecipients(ctx, []int64{listA.ID, listB.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{first.ID, bob.ID}, ids)
}

func TestContactRepository_ResolveValidRecipientsEmptyLists(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db.DB)

	ids, err := repo.ResolveValidRecipients(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestContactRepository_FilterValid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db.DB)
	user := seedUser(t, db, true)
	list := seedList(t, db, user.ID, "subscribers")
	ctx := context.Background()

	alice := seedContact(t, db, list.ID, "alice@example.com", model.ContactStatusValid)
	bounced := seedContact(t, db, list.ID, "bounced@example.com", model.ContactStatusInvalid)
	blocked := seedContact(t, db, list.ID, "blocked@example.com", model.ContactStatusBlacklisted)

	valid, err := repo.FilterValid(ctx, []int64{alice.ID, bounced.ID, blocked.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, valid)

	valid, err = repo.FilterValid(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, valid)
}

func TestContactRepository_MarkInvalid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db.DB)
	user := seedUser(t, db, true)
	list := seedList(t, db, user.ID, "subscribers")
	ctx := context.Background()

	c := seedContact(t, db, list.ID, "alice@example.com", model.ContactStatusValid)

	require.NoError(t, repo.MarkInvalid(ctx, c.ID, "mailbox does not exist"))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContactStatusInvalid, got.Status)
	assert.Equal(t, "mailbox does not exist", got.InvalidReason)

	assert.ErrorIs(t, repo.MarkInvalid(ctx, 9999, "whatever"), ErrContactNotFound)
}
