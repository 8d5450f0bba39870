package repository

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generatedCode = regexp.MustCompile(`^[A-Za-z0-9]{7}$`)

// unique keeps names from colliding with rows left by earlier runs against a
// shared database.
func unique(prefix string) string {
	return prefix + uuid.NewString()[:8]
}

func mustUser(t *testing.T, s Store) *model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), model.NewUser{
		Username:     unique("user-"),
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return u
}

func mustLink(t *testing.T, s Store, userID string) *model.Link {
	t.Helper()
	l, err := s.CreateLink(context.Background(), model.NewLink{
		UserID:      userID,
		OriginalURL: "https://example.com/" + unique("p"),
	}, false)
	require.NoError(t, err)
	return l
}

// runStoreContract exercises behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("users", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		name := unique("alice-")
		email := name + "@example.com"

		u, err := s.CreateUser(ctx, model.NewUser{Username: name, Email: email, PasswordHash: "h"})
		require.NoError(t, err)
		require.NotEmpty(t, u.ID)
		require.NotNil(t, u.Email)
		assert.Equal(t, email, *u.Email)
		assert.False(t, u.CreatedAt.IsZero())

		_, err = s.CreateUser(ctx, model.NewUser{Username: name, PasswordHash: "h"})
		assert.ErrorIs(t, err, ErrUsernameTaken)
		assert.ErrorIs(t, err, ErrConflict)

		byName, err := s.GetUserByUsernameOrEmail(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byName.ID)

		byEmail, err := s.GetUserByUsernameOrEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, name, got.Username)
		assert.Equal(t, "h", got.PasswordHash)

		_, err = s.GetUserByUsernameOrEmail(ctx, unique("nobody-"))
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("generated codes", func(t *testing.T) {
		s := newStore(t)
		u := mustUser(t, s)

		a := mustLink(t, s, u.ID)
		b := mustLink(t, s, u.ID)
		assert.Regexp(t, generatedCode, a.ShortCode)
		assert.Regexp(t, generatedCode, b.ShortCode)
		assert.NotEqual(t, a.ShortCode, b.ShortCode)
		assert.Nil(t, a.CustomAlias)
		assert.Zero(t, a.ClickCount)

		got, err := s.GetLinkByCode(context.Background(), a.ShortCode)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, a.OriginalURL, got.OriginalURL)
	})

	t.Run("custom alias", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := mustUser(t, s)
		alias := unique("promo")
		expires := time.Now().Add(48 * time.Hour).UTC()

		l, err := s.CreateLink(ctx, model.NewLink{
			UserID:      u.ID,
			OriginalURL: "https://example.com/a",
			CustomAlias: alias,
			ExpiresAt:   &expires,
		}, true)
		require.NoError(t, err)
		assert.Equal(t, alias, l.ShortCode)
		require.NotNil(t, l.CustomAlias)
		assert.Equal(t, alias, *l.CustomAlias)
		require.NotNil(t, l.ExpiresAt)
		assert.WithinDuration(t, expires, *l.ExpiresAt, time.Millisecond)

		_, err = s.CreateLink(ctx, model.NewLink{
			UserID:      u.ID,
			OriginalURL: "https://example.com/b",
			CustomAlias: alias,
		}, true)
		assert.ErrorIs(t, err, ErrAliasTaken)
		assert.ErrorIs(t, err, ErrConflict)

		// alias ignored unless requested
		gen, err := s.CreateLink(ctx, model.NewLink{
			UserID:      u.ID,
			OriginalURL: "https://example.com/c",
			CustomAlias: alias,
		}, false)
		require.NoError(t, err)
		assert.Regexp(t, generatedCode, gen.ShortCode)
		assert.Nil(t, gen.CustomAlias)
	})

	t.Run("concurrent alias", func(t *testing.T) {
		s := newStore(t)
		u := mustUser(t, s)
		alias := unique("race")

		const workers = 8
		var wg sync.WaitGroup
		var won, lost atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CreateLink(context.Background(), model.NewLink{
					UserID:      u.ID,
					OriginalURL: "https://example.com/race",
					CustomAlias: alias,
				}, true)
				switch {
				case err == nil:
					won.Add(1)
				case assert.ErrorIs(t, err, ErrAliasTaken):
					lost.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, won.Load())
		assert.EqualValues(t, workers-1, lost.Load())
	})

	t.Run("links newest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := mustUser(t, s)
		other := mustUser(t, s)

		first := mustLink(t, s, u.ID)
		time.Sleep(5 * time.Millisecond)
		second := mustLink(t, s, u.ID)
		time.Sleep(5 * time.Millisecond)
		third := mustLink(t, s, u.ID)
		mustLink(t, s, other.ID)

		links, err := s.GetLinksForUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, links, 3)
		assert.Equal(t, third.ID, links[0].ID)
		assert.Equal(t, second.ID, links[1].ID)
		assert.Equal(t, first.ID, links[2].ID)

		none, err := s.GetLinksForUser(ctx, unique("ghost-"))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("concurrent increments", func(t *testing.T) {
		s := newStore(t)
		u := mustUser(t, s)
		l := mustLink(t, s, u.ID)

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.IncrementClickCount(context.Background(), l.ID))
			}()
		}
		wg.Wait()

		got, err := s.GetLink(context.Background(), l.ID)
		require.NoError(t, err)
		assert.EqualValues(t, n, got.ClickCount)
	})

	t.Run("clicks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := mustUser(t, s)
		l := mustLink(t, s, u.ID)
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		_, err := s.CreateClick(ctx, model.NewClick{LinkID: l.ID, Timestamp: base.Add(time.Hour), Device: "Desktop"})
		require.NoError(t, err)
		c, err := s.CreateClick(ctx, model.NewClick{
			LinkID:    l.ID,
			Timestamp: base,
			IPAddress: "203.0.113.7",
			UserAgent: "Mozilla/5.0 (iPhone)",
			Device:    "Mobile",
			Browser:   "Safari",
			OS:        "iOS",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Nil(t, c.Referrer)
		assert.Nil(t, c.Country)

		clicks, err := s.GetClicksForLink(ctx, l.ID)
		require.NoError(t, err)
		require.Len(t, clicks, 2)
		assert.True(t, clicks[0].Timestamp.Equal(base))
		require.NotNil(t, clicks[0].Device)
		assert.Equal(t, "Mobile", *clicks[0].Device)
		assert.True(t, clicks[1].Timestamp.Equal(base.Add(time.Hour)))

		_, err = s.CreateClick(ctx, model.NewClick{LinkID: unique("missing-")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		owner := mustUser(t, s)
		stranger := mustUser(t, s)
		l := mustLink(t, s, owner.ID)
		_, err := s.CreateClick(ctx, model.NewClick{LinkID: l.ID})
		require.NoError(t, err)

		ok, err := s.DeleteLink(ctx, l.ID, stranger.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = s.GetLink(ctx, l.ID)
		require.NoError(t, err)

		ok, err = s.DeleteLink(ctx, l.ID, owner.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = s.GetLink(ctx, l.ID)
		assert.ErrorIs(t, err, ErrLinkNotFound)
		_, err = s.GetLinkByCode(ctx, l.ShortCode)
		assert.ErrorIs(t, err, ErrLinkNotFound)
		clicks, err := s.GetClicksForLink(ctx, l.ID)
		require.NoError(t, err)
		assert.Empty(t, clicks)

		ok, err = s.DeleteLink(ctx, l.ID, owner.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
		assert.NotEmpty(t, s.Name())
	})
}
