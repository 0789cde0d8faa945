package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

func TestUserService_CreateUserWithReferrer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, created, err := env.users.CreateUser(ctx, 1, "alice", nil)
	require.NoError(t, err)
	require.True(t, created)
	assert.True(t, a.Credits.Equal(dec("2")))

	referrer := int64(1)
	b, created, err := env.users.CreateUser(ctx, 2, "bob", &referrer)
	require.NoError(t, err)
	require.True(t, created)
	assert.True(t, b.Credits.Equal(dec("2.5")), "got %s", b.Credits)
	require.NotNil(t, b.Referrer)
	assert.Equal(t, int64(1), *b.Referrer)

	a = env.user(1)
	assert.True(t, a.Credits.Equal(dec("2.5")), "got %s", a.Credits)
	assert.Equal(t, []int64{2}, a.Referrals)

	doc := env.doc()
	assert.True(t, doc.Stats.TotalCreditsDistributed.Equal(dec("5")), "got %s", doc.Stats.TotalCreditsDistributed)
	assert.Equal(t, 2, doc.Stats.PeakUsers)
}

func TestUserService_CreateUserIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.users.CreateUser(ctx, 1, "alice", nil)
	require.NoError(t, err)
	referrer := int64(1)
	_, _, err = env.users.CreateUser(ctx, 2, "bob", &referrer)
	require.NoError(t, err)

	again, created, err := env.users.CreateUser(ctx, 2, "bob", &referrer)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, again.Credits.Equal(dec("2.5")))
	assert.Equal(t, []int64{2}, env.user(1).Referrals)
}

func TestUserService_CreateUserIgnoresInvalidReferrer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	self := int64(5)
	u, _, err := env.users.CreateUser(ctx, 5, "", &self)
	require.NoError(t, err)
	assert.Nil(t, u.Referrer)
	assert.True(t, u.Credits.Equal(dec("2")))

	unknown := int64(404)
	u, _, err = env.users.CreateUser(ctx, 6, "", &unknown)
	require.NoError(t, err)
	assert.Nil(t, u.Referrer)
	assert.True(t, u.Credits.Equal(dec("2")))
}

func TestUserService_GetUserUnknown(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.users.GetUser(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUserService_DailyRoleGrantOncePerDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")
	require.NoError(t, env.users.PromoteUser(ctx, 1, database.RoleBasic, 0))

	u, err := env.users.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.Credits.Equal(dec("10")), "got %s", u.Credits)

	u, err = env.users.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.Credits.Equal(dec("10")), "second read must not grant again")

	env.advance(24 * time.Hour)
	u, err = env.users.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.Credits.Equal(dec("20")), "got %s", u.Credits)
	assert.Equal(t, "2025-03-11", u.LastZCGrantDate)
}

func TestUserService_RoleExpiryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "3")
	require.NoError(t, env.users.PromoteUser(ctx, 1, database.RolePro, 1))
	require.NotNil(t, env.user(1).RoleExpiryDate)

	env.advance(48 * time.Hour)
	u, err := env.users.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, database.DefaultRoleID, u.RoleID)
	assert.Nil(t, u.RoleExpiryDate)
	assert.True(t, u.Credits.Equal(dec("3")))

	u, err = env.users.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, database.DefaultRoleID, u.RoleID)
	assert.True(t, u.Credits.Equal(dec("3")))
}

func TestUserService_PromoteUnknownRole(t *testing.T) {
	env := newTestEnv(t)
	env.newUser(1, "0")

	err := env.users.PromoteUser(context.Background(), 1, 42, 0)
	assert.ErrorIs(t, err, ErrRoleNotFound)

	err = env.users.PromoteUser(context.Background(), 2, database.RoleBasic, 0)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_CooldownWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")

	decision, err := env.users.CheckRateLimit(ctx, 1)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	require.NoError(t, env.credits.DeductForService(ctx, 1, "free", "first"))

	decision, err = env.users.CheckRateLimit(ctx, 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "Please wait 60 seconds before your next request.", decision.Reason)
	assert.Equal(t, 60*time.Second, decision.RetryAfter)

	env.advance(30 * time.Second)
	decision, err = env.users.CheckRateLimit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Please wait 30 seconds before your next request.", decision.Reason)

	env.advance(30 * time.Second)
	decision, err = env.users.CheckRateLimit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestUserService_DailyQuotaResetsNextDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")

	for i := 0; i < 100; i++ {
		require.NoError(t, env.credits.DeductForService(ctx, 1, "free", "q"))
	}
	env.advance(2 * time.Minute)

	decision, err := env.users.CheckRateLimit(ctx, 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "Daily limit of 100 requests reached. Try again tomorrow.", decision.Reason)

	env.advance(24 * time.Hour)
	decision, err = env.users.CheckRateLimit(ctx, 1)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.Zero(t, env.user(1).DailyRequests)

	require.NoError(t, env.credits.DeductForService(ctx, 1, "free", "q"))
	u := env.user(1)
	assert.Equal(t, 1, u.DailyRequests)
	assert.Equal(t, 101, u.TotalRequests)

	doc := env.doc()
	assert.Equal(t, int64(100), doc.Analytics.DailyStats["2025-03-10"])
	assert.Equal(t, int64(1), doc.Stats.DailyRequests)
	assert.Equal(t, "2025-03-11", doc.Stats.LastReset)
}

func TestUserService_AdminQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.users.CreateUser(ctx, 10, "Alice_OSINT", nil)
	require.NoError(t, err)
	_, _, err = env.users.CreateUser(ctx, 20, "bob", nil)
	require.NoError(t, err)
	_, _, err = env.users.CreateUser(ctx, 30, "carol", nil)
	require.NoError(t, err)
	require.NoError(t, env.users.SetBalance(ctx, 20, dec("50")))
	require.NoError(t, env.users.SetBanned(ctx, 30, true))
	require.NoError(t, env.users.PromoteUser(ctx, 20, database.RolePro, 0))

	found, err := env.users.Search(ctx, "@alice")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(10), found[0].ID)

	found, err = env.users.Search(ctx, "30")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "carol", found[0].Username)

	top, err := env.users.TopByCredits(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(20), top[0].ID)

	page, total, err := env.users.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, int64(30), page[0].ID)

	ids, err := env.users.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, ids)

	ids, err = env.users.IDsByRole(ctx, database.RolePro)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, ids)

	assert.ErrorIs(t, env.users.SetBalance(ctx, 10, dec("-1")), ErrInvalidAmount)
	assert.ErrorIs(t, env.users.SetBanned(ctx, 99, true), ErrUserNotFound)
}

func TestUserService_CheckRateLimitAppliesRoleExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")
	require.NoError(t, env.users.PromoteUser(ctx, 1, database.RoleElite, 1))
	require.NoError(t, env.store.Update(ctx, func(doc *models.Document) error {
		doc.Users[1].DailyRequests = 150
		return nil
	}))

	decision, err := env.users.CheckRateLimit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	env.advance(2 * time.Hour)
	require.NoError(t, env.store.Update(ctx, func(doc *models.Document) error {
		past := startTime.Add(time.Hour)
		doc.Users[1].RoleExpiryDate = &past
		return nil
	}))

	decision, err = env.users.CheckRateLimit(ctx, 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "Daily limit of 100 requests reached. Try again tomorrow.", decision.Reason)

	u := env.user(1)
	assert.Equal(t, database.RoleFree, u.RoleID)
	assert.Nil(t, u.RoleExpiryDate)
}
