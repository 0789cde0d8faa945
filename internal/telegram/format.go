package telegram

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/models"
	"github.com/digkill/TGLookupBot/internal/service"
)

// Telegram rejects messages above 4096 characters.
const maxMessageLen = 4000

const helpText = `Commands:
/services - pick a lookup tool
/lookup <service> <query> - run a lookup directly
/balance - credits, role and usage
/history [page] - your recent lookups
/referral - your invite link
/shop - credit packs, memberships and slots
/buy <item id> - order a shop item
/membership [role id] [days] - buy a membership with ZC
/buyslot - buy an exclusion slot
/myslots - list your exclusion slots
/fill <slot> - set a slot's value
/editex <slot> - change a filled slot
/delex <slot> - clear a slot
/cancel - abort the current step`

func formatWelcome(u *models.User, name string, created bool) string {
	if name == "" {
		name = "there"
	}
	var sb strings.Builder
	if created {
		fmt.Fprintf(&sb, "Welcome, %s!\nYou received %s ZC to get started.\n", name, u.Credits.StringFixed(2))
	} else {
		fmt.Fprintf(&sb, "Welcome back, %s!\n", name)
	}
	fmt.Fprintf(&sb, "\nCredits: %s\nReferrals: %d\nTotal requests: %d\nMember since: %s\n",
		u.Credits.StringFixed(2), len(u.Referrals), u.TotalRequests, u.JoinedAt.Format("January 2006"))
	sb.WriteString("\nUse /services to start a lookup or /help for all commands.")
	return sb.String()
}

func formatBalance(u *models.User, roles []models.Role) string {
	roleName := fmt.Sprintf("role %d", u.RoleID)
	for _, r := range roles {
		if r.ID == u.RoleID {
			roleName = r.Name
			break
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your account\n\nCredits: %s ZC\nRole: %s", u.Credits.StringFixed(2), roleName)
	if u.RoleExpiryDate != nil {
		fmt.Fprintf(&sb, " (until %s)", u.RoleExpiryDate.Format(models.DateLayout))
	}
	fmt.Fprintf(&sb, "\nReferrals: %d\nRequests today: %d\nTotal requests: %d",
		len(u.Referrals), u.DailyRequests, u.TotalRequests)
	return sb.String()
}

func formatServicePrompt(svc catalog.Service) string {
	cost := "Free to use"
	if svc.Price().IsPositive() {
		cost = fmt.Sprintf("Cost: %s ZC", svc.Price().StringFixed(2))
	}
	prompt := svc.InputPrompt
	if prompt == "" {
		prompt = "Enter search input"
	}
	return fmt.Sprintf("%s\n%s\n\n%s:", svc.Label(), cost, prompt)
}

// formatResult renders lookup data as sorted key/value lines. Nested values
// are shown as compact JSON.
func formatResult(res *service.QueryResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s results\n\n", res.Service.Label())

	keys := make([]string, 0, len(res.Data))
	for k := range res.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, formatValue(res.Data[k]))
	}
	if len(keys) == 0 {
		sb.WriteString("No data found.\n")
	}
	if res.Charged.IsPositive() {
		fmt.Fprintf(&sb, "\nCharged: %s ZC", res.Charged.StringFixed(2))
	}
	return truncate(sb.String())
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case float64, bool:
		return fmt.Sprint(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}

func formatHistory(entries []models.QueryEntry, page, pages, total int) string {
	var sb strings.Builder
	sb.WriteString("Your recent lookups\n\n")
	if len(entries) == 0 {
		sb.WriteString("No recent queries.\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s  %s: %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Service, e.Query)
	}
	fmt.Fprintf(&sb, "\nPage %d/%d, %d queries in total", page, pages, total)
	return truncate(sb.String())
}

func formatSlots(slots []models.Exclusion, price, fee decimal.Decimal) string {
	if len(slots) == 0 {
		return fmt.Sprintf("You have no exclusion slots. Buy one with /buyslot for %s ZC.", price.StringFixed(2))
	}
	var sb strings.Builder
	sb.WriteString("Your exclusion slots\n\n")
	for _, s := range slots {
		if s.Filled() {
			fmt.Fprintf(&sb, "#%d  %s\n", s.No, s.Value)
		} else {
			fmt.Fprintf(&sb, "#%d  (empty)\n", s.No)
		}
	}
	fmt.Fprintf(&sb, "\nFill with /fill <slot>, edit with /editex <slot> (%s ZC), clear with /delex <slot>.", fee.StringFixed(2))
	return sb.String()
}

func formatShop(items []catalog.ShopItem, currency string) string {
	var sb strings.Builder
	sb.WriteString("Shop\n")
	for _, item := range items {
		fmt.Fprintf(&sb, "\n#%d %s - %.0f %s", item.ID, item.Name, item.PriceINR, currency)
		if item.Description != "" {
			fmt.Fprintf(&sb, "\n   %s", item.Description)
		}
	}
	sb.WriteString("\n\nTap an item or send /buy <item id>.")
	return sb.String()
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen] + "\n..."
}
