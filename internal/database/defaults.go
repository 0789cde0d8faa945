package database

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/models"
)

const (
	RoleFree  int64 = 1
	RoleBasic int64 = 2
	RolePro   int64 = 3
	RoleElite int64 = 4
	RoleAdmin int64 = 5

	// DefaultRoleID is the lowest tier; users fall back to it on role expiry.
	DefaultRoleID = RoleFree
)

// Defaults are the configuration values a fresh document is seeded with.
type Defaults struct {
	WelcomeBonus      decimal.Decimal
	ReferralBonus     decimal.Decimal
	MaxRequestsPerDay int
	CooldownSeconds   int
	Roles             []models.Role
}

// DefaultRoles returns the built-in tier catalog.
func DefaultRoles() []models.Role {
	return []models.Role{
		{ID: RoleFree, Name: "Free User", RateLimit: 100, Cooldown: 60, GrantsZCPerDay: 0},
		{ID: RoleBasic, Name: "Basic", RateLimit: 200, Cooldown: 60, GrantsZCPerDay: 10},
		{ID: RolePro, Name: "Pro", RateLimit: 500, Cooldown: 15, GrantsZCPerDay: 25},
		{ID: RoleElite, Name: "Elite", RateLimit: 1000, Cooldown: 3, GrantsZCPerDay: 50},
		{ID: RoleAdmin, Name: "Admin", RateLimit: 99999, Cooldown: 0, GrantsZCPerDay: 0},
	}
}

// DefaultSettings mirrors the values used when nothing is configured.
func DefaultSettings() Defaults {
	return Defaults{
		WelcomeBonus:      decimal.RequireFromString("2.0"),
		ReferralBonus:     decimal.RequireFromString("0.5"),
		MaxRequestsPerDay: 100,
		CooldownSeconds:   10,
		Roles:             DefaultRoles(),
	}
}

func (d Defaults) roles() []models.Role {
	if len(d.Roles) == 0 {
		return DefaultRoles()
	}
	return d.Roles
}

// DefaultDocument builds an empty document seeded from d.
func DefaultDocument(d Defaults, now time.Time) *models.Document {
	doc := &models.Document{
		Version:         models.DocumentVersion,
		Users:           make(map[int64]*models.User),
		Roles:           make(map[int64]*models.Role),
		Exclusions:      make(map[int64]*models.Exclusion),
		NextExclusionNo: 1,
		Orders:          make(map[int64]*models.Order),
		NextOrderID:     1,
		Settings: models.Settings{
			WelcomeBonus:      d.WelcomeBonus,
			ReferralBonus:     d.ReferralBonus,
			MaxRequestsPerDay: d.MaxRequestsPerDay,
			CooldownPeriod:    d.CooldownSeconds,
		},
		Stats: models.Stats{
			LastReset:               now.Format(models.DateLayout),
			TotalCreditsDistributed: decimal.Zero,
		},
		Analytics: models.Analytics{
			PopularTools: make(map[string]int),
			ErrorLogs:    make([]models.ErrorEntry, 0),
			DailyStats:   make(map[string]int64),
		},
		QueryHistory: make([]models.QueryEntry, 0),
	}
	for _, r := range d.roles() {
		role := r
		doc.Roles[role.ID] = &role
	}
	return doc
}
