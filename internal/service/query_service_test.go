package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

type fakeLookup struct {
	mu     sync.Mutex
	data   map[string]any
	err    error
	inputs []string
}

func (f *fakeLookup) Lookup(_ context.Context, svc catalog.Service, input string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, svc.Key+":"+input)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeLookup) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func TestQueryService_SuccessfulLookupCharges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "2")
	lookup := &fakeLookup{data: map[string]any{"name": "Alice"}}
	svc := env.queryService(lookup)

	res, err := svc.Handle(ctx, 1, "paid", "  alice@example.com ")
	require.NoError(t, err)
	assert.False(t, res.Excluded)
	assert.Equal(t, "Alice", res.Data["name"])
	assert.True(t, res.Charged.Equal(dec("1.5")))
	assert.Equal(t, []string{"paid:alice@example.com"}, lookup.inputs)

	assert.True(t, env.user(1).Credits.Equal(dec("0.5")))
	doc := env.doc()
	assert.Equal(t, int64(1), doc.Stats.SuccessfulRequests)
	require.Len(t, doc.QueryHistory, 1)
	assert.Equal(t, "alice@example.com", doc.QueryHistory[0].Query)
}

func TestQueryService_FailedLookupIsNotCharged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "2")
	cause := errors.New("upstream 502")
	svc := env.queryService(&fakeLookup{err: cause})

	_, err := svc.Handle(ctx, 1, "paid", "target")
	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "paid", lookupErr.Service)
	assert.Equal(t, ErrorID(cause), lookupErr.ID)

	u := env.user(1)
	assert.True(t, u.Credits.Equal(dec("2")))
	assert.Zero(t, u.TotalRequests)
	assert.Nil(t, u.CooldownUntil)

	doc := env.doc()
	assert.Equal(t, int64(1), doc.Stats.FailedRequests)
	assert.Zero(t, doc.Stats.TotalRequests)
	require.Len(t, doc.Analytics.ErrorLogs, 1)
	assert.Equal(t, "lookup:paid", doc.Analytics.ErrorLogs[0].Context)
}

func TestQueryService_ExclusionShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "150")

	no, err := env.exclusions.PurchaseSlot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, env.user(1).Credits.Equal(dec("50")))
	require.NoError(t, env.exclusions.FillSlot(ctx, no, 1, "1234567890", "blocked"))

	lookup := &fakeLookup{data: map[string]any{}}
	svc := env.queryService(lookup)
	res, err := svc.Handle(ctx, 1, "paid", "1234567890")
	require.NoError(t, err)
	assert.True(t, res.Excluded)
	assert.Equal(t, "blocked", res.Message)

	assert.Zero(t, lookup.calls())
	u := env.user(1)
	assert.True(t, u.Credits.Equal(dec("50")))
	assert.Zero(t, u.TotalRequests)
}

func TestQueryService_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "1")
	env.newUser(2, "10")
	require.NoError(t, env.users.SetBanned(ctx, 2, true))
	lookup := &fakeLookup{data: map[string]any{"ok": true}}
	svc := env.queryService(lookup)

	_, err := svc.Handle(ctx, 1, "paid", "x")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	_, err = svc.Handle(ctx, 1, "off", "x")
	assert.ErrorIs(t, err, ErrUnknownService)

	_, err = svc.Handle(ctx, 1, "missing", "x")
	assert.ErrorIs(t, err, ErrUnknownService)

	_, err = svc.Handle(ctx, 2, "free", "x")
	assert.ErrorIs(t, err, ErrUserBanned)

	_, err = svc.Handle(ctx, 3, "free", "x")
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.Zero(t, lookup.calls())
}

func TestQueryService_CooldownBlocksSecondQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")
	lookup := &fakeLookup{data: map[string]any{"ok": true}}
	svc := env.queryService(lookup)

	_, err := svc.Handle(ctx, 1, "free", "x")
	require.NoError(t, err)

	_, err = svc.Handle(ctx, 1, "free", "y")
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "Please wait 60 seconds before your next request.", rateErr.Reason)
	assert.Equal(t, 1, lookup.calls())

	env.advance(61 * time.Second)
	_, err = svc.Handle(ctx, 1, "free", "y")
	require.NoError(t, err)
	assert.Equal(t, 2, lookup.calls())
}

func TestQueryService_MaintenanceAllowsAdmins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")
	env.newUser(2, "0")
	require.NoError(t, env.users.PromoteUser(ctx, 2, database.RoleAdmin, 0))
	require.NoError(t, env.settings.SetMaintenance(ctx, true))
	svc := env.queryService(&fakeLookup{data: map[string]any{"ok": true}})

	_, err := svc.Handle(ctx, 1, "free", "x")
	assert.ErrorIs(t, err, ErrMaintenance)

	_, err = svc.Handle(ctx, 2, "free", "x")
	assert.NoError(t, err)
}

// gatedLookup holds every call until release is closed.
type gatedLookup struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedLookup() *gatedLookup {
	return &gatedLookup{entered: make(chan struct{}, 10), release: make(chan struct{})}
}

func (g *gatedLookup) Lookup(ctx context.Context, _ catalog.Service, _ string) (map[string]any, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return map[string]any{"ok": true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// burst fires n concurrent queries for user 1 while the lookup is held and
// returns the number of successes.
func burst(t *testing.T, svc *QueryService, lookup *gatedLookup, n int) int {
	t.Helper()
	ctx := context.Background()
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := svc.Handle(ctx, 1, "free", "x")
			results <- err
		}()
	}

	select {
	case <-lookup.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("no query reached the lookup")
	}
	for i := 0; i < n-1; i++ {
		select {
		case err := <-results:
			var rateErr *RateLimitError
			assert.ErrorAs(t, err, &rateErr)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d concurrent queries were refused", i, n-1)
		}
	}
	close(lookup.release)

	ok := 0
	select {
	case err := <-results:
		if assert.NoError(t, err) {
			ok++
		}
	case <-time.After(2 * time.Second):
		t.Fatal("held query never finished")
	}
	return ok
}

func TestQueryService_ConcurrentBurstHonoursCooldown(t *testing.T) {
	env := newTestEnv(t)
	env.newUser(1, "0")
	lookup := newGatedLookup()
	svc := env.queryService(lookup)

	assert.Equal(t, 1, burst(t, svc, lookup, 5))
	u := env.user(1)
	assert.Equal(t, 1, u.DailyRequests)
	assert.Equal(t, 1, u.TotalRequests)

	_, err := svc.Handle(context.Background(), 1, "free", "y")
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "Please wait 60 seconds before your next request.", rateErr.Reason)
}

func TestQueryService_ConcurrentBurstHonoursDailyQuota(t *testing.T) {
	env := newTestEnv(t)
	env.newUser(1, "0")
	require.NoError(t, env.store.Update(context.Background(), func(doc *models.Document) error {
		doc.Roles[database.RoleFree].Cooldown = 0
		doc.Users[1].DailyRequests = 99
		return nil
	}))
	lookup := newGatedLookup()
	svc := env.queryService(lookup)

	assert.Equal(t, 1, burst(t, svc, lookup, 5))
	assert.Equal(t, 100, env.user(1).DailyRequests)

	_, err := svc.Handle(context.Background(), 1, "free", "y")
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "Daily limit of 100 requests reached. Try again tomorrow.", rateErr.Reason)
}
