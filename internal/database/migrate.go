package database

import (
	"time"

	"github.com/digkill/TGLookupBot/internal/models"
)

// migrate backfills collections and fields that older documents lack.
// Fields present in the file were already decoded over the defaults, so
// only structurally empty values need attention here.
func migrate(doc *models.Document, d Defaults, now time.Time) {
	if doc.Version == "" {
		doc.Version = models.DocumentVersion
	}
	if doc.Users == nil {
		doc.Users = make(map[int64]*models.User)
	}
	if doc.Roles == nil {
		doc.Roles = make(map[int64]*models.Role)
	}
	for _, r := range d.roles() {
		if _, ok := doc.Roles[r.ID]; !ok {
			role := r
			doc.Roles[role.ID] = &role
		}
	}
	if doc.Exclusions == nil {
		doc.Exclusions = make(map[int64]*models.Exclusion)
	}
	if doc.Orders == nil {
		doc.Orders = make(map[int64]*models.Order)
	}
	if doc.Analytics.PopularTools == nil {
		doc.Analytics.PopularTools = make(map[string]int)
	}
	if doc.Analytics.ErrorLogs == nil {
		doc.Analytics.ErrorLogs = make([]models.ErrorEntry, 0)
	}
	if doc.Analytics.DailyStats == nil {
		doc.Analytics.DailyStats = make(map[string]int64)
	}
	if doc.QueryHistory == nil {
		doc.QueryHistory = make([]models.QueryEntry, 0)
	}
	if doc.Stats.LastReset == "" {
		doc.Stats.LastReset = now.Format(models.DateLayout)
	}

	for id, u := range doc.Users {
		if u == nil {
			delete(doc.Users, id)
			continue
		}
		BackfillUser(doc, u, id, now)
	}

	var maxNo int64
	for no, e := range doc.Exclusions {
		if e == nil {
			delete(doc.Exclusions, no)
			continue
		}
		if e.No == 0 {
			e.No = no
		}
		if e.State == "" {
			if e.LegacyPlaceholder != nil && *e.LegacyPlaceholder {
				e.State = models.ExclusionEmpty
			} else {
				e.State = models.ExclusionFilled
			}
		}
		e.LegacyPlaceholder = nil
		if no > maxNo {
			maxNo = no
		}
	}
	if doc.NextExclusionNo <= maxNo {
		doc.NextExclusionNo = maxNo + 1
	}

	var maxOrder int64
	for id, o := range doc.Orders {
		if o == nil {
			delete(doc.Orders, id)
			continue
		}
		if id > maxOrder {
			maxOrder = id
		}
	}
	if doc.NextOrderID <= maxOrder {
		doc.NextOrderID = maxOrder + 1
	}
}

// BackfillUser fills fields missing from older user records.
func BackfillUser(doc *models.Document, u *models.User, id int64, now time.Time) {
	if u.ID == 0 {
		u.ID = id
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = now
	}
	if u.LastActive.IsZero() {
		u.LastActive = u.JoinedAt
	}
	if u.Referrals == nil {
		u.Referrals = make([]int64, 0)
	}
	if _, ok := doc.Roles[u.RoleID]; !ok {
		u.RoleID = DefaultRoleID
		u.RoleExpiryDate = nil
	}
}
