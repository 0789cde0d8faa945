package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

var startTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// testEnv wires every service over a temporary data file and a movable clock.
type testEnv struct {
	t     *testing.T
	store *database.Store
	cat   *catalog.Catalog

	mu  sync.Mutex
	now time.Time

	users      *UserService
	credits    *CreditService
	exclusions *ExclusionService
	history    *HistoryService
	settings   *SettingsService
	shop       *ShopService
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Service{
		{Key: "free", Name: "Free Tool", Cost: 0, Method: "GET", Enabled: true},
		{Key: "paid", Name: "Paid Tool", Cost: 1.5, Method: "GET", Alias: "pd", Enabled: true},
		{Key: "off", Name: "Disabled Tool", Cost: 1, Method: "GET", Enabled: false},
	}, catalog.DefaultShopItems())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t, now: startTime, cat: testCatalog()}
	log := discardLogger()
	clock := env.clock

	env.store = database.NewStore(filepath.Join(t.TempDir(), "bot_data.json"), "", database.DefaultSettings(), log).
		WithClock(clock)
	env.users = NewUserService(env.store, clock, log)
	env.credits = NewCreditService(env.store, env.cat, 1000, clock, log)
	env.exclusions = NewExclusionService(env.store, decimal.NewFromInt(100), decimal.NewFromInt(5), clock, log)
	env.history = NewHistoryService(env.store, nil, 3, clock, log)
	env.settings = NewSettingsService(env.store, log)
	env.shop = NewShopService(env.store, env.cat, clock, log)
	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(d)
	e.mu.Unlock()
}

func (e *testEnv) queryService(lookup Lookuper) *QueryService {
	return NewQueryService(e.cat, e.users, e.credits, e.exclusions, e.history, e.settings, lookup, &statsd.NoOpClient{}, e.clock, discardLogger())
}

// newUser registers id and sets its balance.
func (e *testEnv) newUser(id int64, credits string) *models.User {
	e.t.Helper()
	ctx := context.Background()
	_, _, err := e.users.CreateUser(ctx, id, "", nil)
	require.NoError(e.t, err)
	require.NoError(e.t, e.users.SetBalance(ctx, id, decimal.RequireFromString(credits)))
	return e.user(id)
}

// user reads the stored record without the lazy refresh GetUser applies.
func (e *testEnv) user(id int64) *models.User {
	e.t.Helper()
	var out *models.User
	require.NoError(e.t, e.store.View(context.Background(), func(doc *models.Document) error {
		if u, ok := doc.Users[id]; ok {
			cp := *u
			out = &cp
		}
		return nil
	}))
	return out
}

func (e *testEnv) doc() *models.Document {
	e.t.Helper()
	doc, err := e.store.Load(context.Background())
	require.NoError(e.t, err)
	return doc
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
