package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/models"
	"github.com/digkill/TGLookupBot/internal/service"
)

func TestFormatResult(t *testing.T) {
	res := &service.QueryResult{
		Service: catalog.Service{Name: "Email Lookup", DisplayName: "📧 Email Lookup"},
		Data: map[string]any{
			"zeta":    "last",
			"alpha":   float64(3),
			"nested":  map[string]any{"k": "v"},
			"missing": nil,
		},
		Charged: decimal.RequireFromString("1.5"),
	}

	got := formatResult(res)
	assert.Equal(t, "📧 Email Lookup results\n\n"+
		"alpha: 3\n"+
		"missing: -\n"+
		"nested: {\"k\":\"v\"}\n"+
		"zeta: last\n"+
		"\nCharged: 1.50 ZC", got)
}

func TestFormatResult_EmptyAndFree(t *testing.T) {
	got := formatResult(&service.QueryResult{Service: catalog.Service{Name: "Phone Lookup"}, Charged: decimal.Zero})
	assert.Equal(t, "Phone Lookup results\n\nNo data found.\n", got)
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", maxMessageLen+10)
	got := truncate(long)
	assert.True(t, strings.HasSuffix(got, "\n..."))
	assert.Len(t, got, maxMessageLen+4)
	assert.Equal(t, "short", truncate("short"))
}

func TestFormatBalance(t *testing.T) {
	expiry := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	u := &models.User{
		Credits:        decimal.RequireFromString("12.5"),
		RoleID:         3,
		RoleExpiryDate: &expiry,
		Referrals:      []int64{4, 5},
		DailyRequests:  2,
		TotalRequests:  9,
	}
	roles := []models.Role{{ID: 1, Name: "Free User"}, {ID: 3, Name: "Pro"}}

	got := formatBalance(u, roles)
	assert.Contains(t, got, "Credits: 12.50 ZC")
	assert.Contains(t, got, "Role: Pro (until 2025-04-01)")
	assert.Contains(t, got, "Referrals: 2")
	assert.Contains(t, got, "Requests today: 2")
}

func TestFormatSlots(t *testing.T) {
	price := decimal.NewFromInt(100)
	fee := decimal.NewFromInt(5)

	assert.Contains(t, formatSlots(nil, price, fee), "/buyslot for 100.00 ZC")

	got := formatSlots([]models.Exclusion{
		{No: 3, Value: "+15550100", State: models.ExclusionFilled},
		{No: 8, State: models.ExclusionEmpty},
	}, price, fee)
	assert.Contains(t, got, "#3  +15550100")
	assert.Contains(t, got, "#8  (empty)")
	assert.Contains(t, got, "(5.00 ZC)")
}

func TestFormatServicePrompt(t *testing.T) {
	paid := catalog.Service{Name: "Domain Whois", Cost: 2, InputPrompt: "Enter a domain name"}
	assert.Equal(t, "Domain Whois\nCost: 2.00 ZC\n\nEnter a domain name:", formatServicePrompt(paid))

	free := catalog.Service{Name: "Phone Lookup"}
	assert.Equal(t, "Phone Lookup\nFree to use\n\nEnter search input:", formatServicePrompt(free))
}
