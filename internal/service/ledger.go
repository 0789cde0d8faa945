package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

func dateOf(t time.Time) string {
	return t.Format(models.DateLayout)
}

func findUser(doc *models.Document, id int64) (*models.User, error) {
	u, ok := doc.Users[id]
	if !ok || u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// effectiveRole returns the user's role, or nil when the catalog lacks it.
func effectiveRole(doc *models.Document, u *models.User) *models.Role {
	return doc.Roles[u.RoleID]
}

// refreshUser applies the lazy per-user bookkeeping: role expiry, the daily
// role grant and the daily counter rollover. It reports whether u changed.
func refreshUser(doc *models.Document, u *models.User, now time.Time) bool {
	changed := expireRole(u, now)

	day := dateOf(now)
	if role := effectiveRole(doc, u); role != nil && role.GrantsZCPerDay > 0 && u.LastZCGrantDate != day {
		amount := decimal.NewFromInt(int64(role.GrantsZCPerDay))
		u.Credits = u.Credits.Add(amount).Round(2)
		u.LastZCGrantDate = day
		addDistributed(doc, amount)
		changed = true
	}

	if rolloverUser(u, day) {
		changed = true
	}
	return changed
}

// expireRole reverts a lapsed role to the default tier.
func expireRole(u *models.User, now time.Time) bool {
	if u.RoleExpiryDate == nil || !now.After(*u.RoleExpiryDate) {
		return false
	}
	u.RoleID = database.DefaultRoleID
	u.RoleExpiryDate = nil
	u.LastZCGrantDate = ""
	return true
}

// limits returns the daily quota and cooldown in seconds for u's role.
func limits(doc *models.Document, u *models.User) (int, int) {
	if role := effectiveRole(doc, u); role != nil {
		return role.RateLimit, role.Cooldown
	}
	return doc.Settings.MaxRequestsPerDay, doc.Settings.CooldownPeriod
}

func quotaReason(limit int) string {
	return fmt.Sprintf("Daily limit of %d requests reached. Try again tomorrow.", limit)
}

func rolloverUser(u *models.User, day string) bool {
	if u.LastRequestDate == day {
		return false
	}
	u.DailyRequests = 0
	u.LastRequestDate = day
	return true
}

// rolloverGlobal archives yesterday's request count into daily_stats.
func rolloverGlobal(doc *models.Document, day string) {
	if doc.Stats.LastReset == day {
		return
	}
	if doc.Stats.LastReset != "" {
		doc.Analytics.DailyStats[doc.Stats.LastReset] = doc.Stats.DailyRequests
	}
	doc.Stats.DailyRequests = 0
	doc.Stats.LastReset = day
}

// applyCredits adds delta to the balance. A result below zero is rejected
// without touching anything.
func applyCredits(doc *models.Document, u *models.User, delta decimal.Decimal, now time.Time) error {
	next := u.Credits.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientCredits
	}
	u.Credits = next.Round(2)
	u.LastActive = now
	if delta.IsPositive() {
		addDistributed(doc, delta)
	}
	return nil
}

func addDistributed(doc *models.Document, amount decimal.Decimal) {
	doc.Stats.TotalCreditsDistributed = doc.Stats.TotalCreditsDistributed.Add(amount).Round(2)
}

// appendBounded appends item and drops the oldest entries beyond limit.
func appendBounded[T any](list []T, item T, limit int) []T {
	list = append(list, item)
	if limit > 0 && len(list) > limit {
		list = append([]T(nil), list[len(list)-limit:]...)
	}
	return list
}

func paginate[T any](items []T, page, perPage int) []T {
	if perPage <= 0 {
		perPage = 10
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func int64Ptr(v int64) *int64 {
	return &v
}
