package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dpetrovs/passvault/internal/clockx"
	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/envelope"
	"github.com/dpetrovs/passvault/internal/logging"
	"github.com/dpetrovs/passvault/internal/migrate"
	"github.com/dpetrovs/passvault/internal/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestDB opens an in-memory SQLite database with the fully migrated
// schema. A single connection keeps the memory database alive and shared.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	engine := migrate.NewEngine(db, "", testLogger(), time.Now)
	require.NoError(t, engine.EnsureBaseSchema(ctx))
	_, err = engine.Apply(ctx)
	require.NoError(t, err)
	return db
}

func testConfig() Config {
	return Config{
		BcryptCost:       MinBcryptCost,
		LockoutThreshold: 5,
		LockoutDuration:  30 * time.Minute,
	}
}

func newTestStore(t *testing.T, clock *clockx.Fake) *Store {
	t.Helper()
	s, err := New(newTestDB(t), testLogger(), clock.Now, testConfig())
	require.NoError(t, err)
	return s
}

func TestNew_RejectsWeakConfig(t *testing.T) {
	db := newTestDB(t)

	_, err := New(db, testLogger(), time.Now, Config{BcryptCost: 4, LockoutThreshold: 5, LockoutDuration: time.Minute})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = New(db, testLogger(), time.Now, Config{BcryptCost: MinBcryptCost})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestCreateIdentity_Validation(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	_, err := s.CreateIdentity(ctx, "", "Secret123!")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = s.CreateIdentity(ctx, "alice", "short")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestCreateIdentity_ConflictIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	_, err := s.CreateIdentity(ctx, "Alice", "Secret123!")
	require.NoError(t, err)

	_, err = s.CreateIdentity(ctx, "aLiCe", "Another123!")
	assert.ErrorIs(t, err, common.ErrIdentityConflict)
}

func TestAuthenticate_Success(t *testing.T) {
	clock := clockx.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(t, clock)
	ctx := context.Background()

	id, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)

	identity, err := s.Authenticate(ctx, "ALICE", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, id, identity.ID)
	assert.Equal(t, 0, identity.FailedAttempts)
	require.NotNil(t, identity.LastLogin)
	assert.Equal(t, clock.Now().UTC(), identity.LastLogin.UTC())
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))

	_, err := s.Authenticate(context.Background(), "nobody", "whatever1")
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
}

func TestAuthenticate_LockoutSequence(t *testing.T) {
	clock := clockx.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(t, clock)
	ctx := context.Background()

	_, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)

	// Five consecutive failures trigger the lockout.
	for i := 0; i < 5; i++ {
		_, err := s.Authenticate(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
	}

	// The correct password is now rejected, with a positive remaining time.
	_, err = s.Authenticate(ctx, "alice", "Secret123!")
	require.ErrorIs(t, err, common.ErrAccountLocked)
	var locked *common.AccountLockedError
	require.ErrorAs(t, err, &locked)
	assert.Greater(t, locked.Remaining, time.Duration(0))

	// After the lockout window elapses the correct password succeeds and
	// the counter resets.
	clock.Advance(31 * time.Minute)
	identity, err := s.Authenticate(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, 0, identity.FailedAttempts)
	assert.Nil(t, identity.LockedUntil)
}

func TestAuthenticate_FailureCounterResetsOnSuccess(t *testing.T) {
	clock := clockx.NewFake(time.Now())
	s := newTestStore(t, clock)
	ctx := context.Background()

	_, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = s.Authenticate(ctx, "alice", "wrong-password")
	}
	identity, err := s.Authenticate(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, 0, identity.FailedAttempts)

	// The next failure starts counting from zero again.
	_, err = s.Authenticate(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
	stored, err := s.GetIdentity(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedAttempts)
}

func encryptedSecret(t *testing.T, plaintext, passphrase string) []byte {
	t.Helper()
	e, err := envelope.New(envelope.MinIterations)
	require.NoError(t, err)
	blob, err := e.Encrypt(plaintext, []byte(passphrase))
	require.NoError(t, err)
	return blob
}

func TestEntryOwnershipScoping(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	bob, err := s.CreateIdentity(ctx, "bob", "Secret456!")
	require.NoError(t, err)

	_, err = s.AddEntry(ctx, alice, "github.com", "alice", encryptedSecret(t, "S3cret!", "Secret123!"), nil, nil)
	require.NoError(t, err)

	aliceEntries, err := s.GetEntries(ctx, alice, "")
	require.NoError(t, err)
	assert.Len(t, aliceEntries, 1)
	assert.Equal(t, "github.com", aliceEntries[0].Site)

	bobEntries, err := s.GetEntries(ctx, bob, "")
	require.NoError(t, err)
	assert.Len(t, bobEntries, 0)
}

func TestAddEntry_Validation(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	secret := encryptedSecret(t, "S3cret!", "Secret123!")

	_, err = s.AddEntry(ctx, alice, "", "alice", secret, nil, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = s.AddEntry(ctx, alice, "github.com", "alice", nil, nil, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = s.AddEntry(ctx, alice+100, "github.com", "alice", secret, nil, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestGetEntries_TextFilter(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	secret := encryptedSecret(t, "S3cret!", "Secret123!")

	label := "Work mail"
	_, err = s.AddEntry(ctx, alice, "github.com", "alice", secret, nil, nil)
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, alice, "mail.example.org", "alice@example.org", secret, &label, nil)
	require.NoError(t, err)

	// Case-insensitive partial match on site.
	got, err := s.GetEntries(ctx, alice, "GITHUB")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Matches on label as well.
	got, err = s.GetEntries(ctx, alice, "work")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "mail.example.org", got[0].Site)
}

func TestSearchEntries_PaginationAndTotal(t *testing.T) {
	clock := clockx.NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	s := newTestStore(t, clock)
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	secret := encryptedSecret(t, "S3cret!", "Secret123!")

	for i := 0; i < 5; i++ {
		_, err := s.AddEntry(ctx, alice, "site.example", "acct", secret, nil, nil)
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}

	page, err := s.SearchEntries(ctx, alice, &models.EntryFilter{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)
	assert.Equal(t, 5, page.Total)

	page, err = s.SearchEntries(ctx, alice, &models.EntryFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 1)
	assert.Equal(t, 5, page.Total)

	// Date-range filtering.
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	page, err = s.SearchEntries(ctx, alice, &models.EntryFilter{CreatedFrom: &from})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestSearchEntries_FavoriteFilter(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	secret := encryptedSecret(t, "S3cret!", "Secret123!")

	id1, err := s.AddEntry(ctx, alice, "a.example", "acct", secret, nil, nil)
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, alice, "b.example", "acct", secret, nil, nil)
	require.NoError(t, err)

	fav := true
	ok, err := s.UpdateEntry(ctx, id1, alice, &models.EntryPatch{Favorite: &fav})
	require.NoError(t, err)
	require.True(t, ok)

	page, err := s.SearchEntries(ctx, alice, &models.EntryFilter{FavoriteOnly: true})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, id1, page.Entries[0].ID)
}

func TestUpdateEntry(t *testing.T) {
	clock := clockx.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(t, clock)
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	bob, err := s.CreateIdentity(ctx, "bob", "Secret456!")
	require.NoError(t, err)
	secret := encryptedSecret(t, "S3cret!", "Secret123!")

	id, err := s.AddEntry(ctx, alice, "github.com", "alice", secret, nil, nil)
	require.NoError(t, err)

	// Ownership is checked before anything else.
	site := "gitlab.com"
	_, err = s.UpdateEntry(ctx, id, bob, &models.EntryPatch{Site: &site})
	assert.ErrorIs(t, err, common.ErrOwnershipViolation)

	// Unknown entry reports false, not an error.
	ok, err := s.UpdateEntry(ctx, id+100, alice, &models.EntryPatch{Site: &site})
	require.NoError(t, err)
	assert.False(t, ok)

	// Patch applies only the provided fields and stamps modified_at.
	clock.Advance(time.Hour)
	ok, err = s.UpdateEntry(ctx, id, alice, &models.EntryPatch{Site: &site})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetEntries(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gitlab.com", got[0].Site)
	assert.Equal(t, "alice", got[0].Account)
	assert.True(t, got[0].ModifiedAt.After(got[0].CreatedAt))
}

func TestDeleteEntry(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	bob, err := s.CreateIdentity(ctx, "bob", "Secret456!")
	require.NoError(t, err)
	secret := encryptedSecret(t, "S3cret!", "Secret123!")

	id, err := s.AddEntry(ctx, alice, "github.com", "alice", secret, nil, nil)
	require.NoError(t, err)

	_, err = s.DeleteEntry(ctx, id, bob)
	assert.ErrorIs(t, err, common.ErrOwnershipViolation)

	ok, err := s.DeleteEntry(ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteEntry(ctx, id, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteIdentity_CascadesEntries(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	secret := encryptedSecret(t, "S3cret!", "Secret123!")
	_, err = s.AddEntry(ctx, alice, "github.com", "alice", secret, nil, nil)
	require.NoError(t, err)

	ok, err := s.DeleteIdentity(ctx, alice)
	require.NoError(t, err)
	require.True(t, ok)

	var count int
	err = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE owner_id = ?`, alice).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReplaceSecrets_AtomicAndRehashes(t *testing.T) {
	s := newTestStore(t, clockx.NewFake(time.Now()))
	ctx := context.Background()

	alice, err := s.CreateIdentity(ctx, "alice", "Secret123!")
	require.NoError(t, err)
	old1 := encryptedSecret(t, "one", "Secret123!")
	old2 := encryptedSecret(t, "two", "Secret123!")
	id1, err := s.AddEntry(ctx, alice, "a.example", "acct", old1, nil, nil)
	require.NoError(t, err)
	id2, err := s.AddEntry(ctx, alice, "b.example", "acct", old2, nil, nil)
	require.NoError(t, err)

	// A batch containing an unknown entry changes nothing at all.
	err = s.ReplaceSecrets(ctx, alice, map[int64][]byte{
		id1:      encryptedSecret(t, "one", "NewPass99!"),
		id2 + 77: encryptedSecret(t, "ghost", "NewPass99!"),
	}, "NewPass99!")
	require.Error(t, err)

	got, err := s.GetEntries(ctx, alice, "")
	require.NoError(t, err)
	for _, e := range got {
		switch e.ID {
		case id1:
			assert.Equal(t, old1, e.Secret)
		case id2:
			assert.Equal(t, old2, e.Secret)
		}
	}
	_, err = s.Authenticate(ctx, "alice", "Secret123!")
	assert.NoError(t, err, "password hash must be untouched after rollback")

	// The full batch commits and the password hash follows.
	err = s.ReplaceSecrets(ctx, alice, map[int64][]byte{
		id1: encryptedSecret(t, "one", "NewPass99!"),
		id2: encryptedSecret(t, "two", "NewPass99!"),
	}, "NewPass99!")
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, "alice", "NewPass99!")
	assert.NoError(t, err)
}
