package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

type UserService struct {
	store *database.Store
	now   Clock
	log   *slog.Logger
}

func NewUserService(store *database.Store, now Clock, log *slog.Logger) *UserService {
	return &UserService{store: store, now: now.orDefault(), log: log}
}

// RateDecision is the outcome of CheckRateLimit.
type RateDecision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// GetUser returns the user after applying role expiry, the daily role grant
// and the daily counter rollover. It returns nil when the user is unknown.
func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	u, ok := tx.Doc.Users[id]
	if !ok {
		return nil, nil
	}
	if refreshUser(tx.Doc, u, s.now()) {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("persist user refresh: %w", err)
		}
	}
	return u, nil
}

// CreateUser registers a user on first contact. The second return value is
// false when the user already existed.
func (s *UserService) CreateUser(ctx context.Context, id int64, username string, referrerID *int64) (*models.User, bool, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	doc := tx.Doc
	if existing, ok := doc.Users[id]; ok {
		return existing, false, nil
	}

	now := s.now()
	welcome := doc.Settings.WelcomeBonus
	u := &models.User{
		ID:              id,
		Username:        username,
		Credits:         welcome.Round(2),
		JoinedAt:        now,
		Referrals:       make([]int64, 0),
		LastActive:      now,
		LastRequestDate: dateOf(now),
		RoleID:          database.DefaultRoleID,
	}
	if welcome.IsPositive() {
		addDistributed(doc, welcome)
	}

	if referrerID != nil && *referrerID != id {
		if referrer, ok := doc.Users[*referrerID]; ok {
			bonus := doc.Settings.ReferralBonus
			if err := applyCredits(doc, referrer, bonus, now); err != nil {
				return nil, false, fmt.Errorf("credit referrer: %w", err)
			}
			if err := applyCredits(doc, u, bonus, now); err != nil {
				return nil, false, fmt.Errorf("credit referral: %w", err)
			}
			referrer.Referrals = append(referrer.Referrals, id)
			u.Referrer = int64Ptr(referrer.ID)
		}
	}

	doc.Users[id] = u
	if len(doc.Users) > doc.Stats.PeakUsers {
		doc.Stats.PeakUsers = len(doc.Users)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("persist new user: %w", err)
	}
	s.log.Info("user created", "user", id, "referrer", referrerID)
	return u, true, nil
}

// PromoteUser assigns a role. durationDays <= 0 makes the role permanent.
func (s *UserService) PromoteUser(ctx context.Context, id, roleID int64, durationDays int) error {
	return s.store.Update(ctx, func(doc *models.Document) error {
		u, err := findUser(doc, id)
		if err != nil {
			return err
		}
		if _, ok := doc.Roles[roleID]; !ok {
			return ErrRoleNotFound
		}
		u.RoleID = roleID
		if durationDays > 0 {
			u.RoleExpiryDate = timePtr(s.now().AddDate(0, 0, durationDays))
		} else {
			u.RoleExpiryDate = nil
		}
		return nil
	})
}

// CheckRateLimit applies the cooldown window and the daily quota.
func (s *UserService) CheckRateLimit(ctx context.Context, id int64) (RateDecision, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return RateDecision{}, err
	}
	defer tx.Rollback()

	doc := tx.Doc
	u, err := findUser(doc, id)
	if err != nil {
		return RateDecision{}, err
	}
	now := s.now()

	if u.CooldownUntil != nil && u.CooldownUntil.After(now) {
		remaining := u.CooldownUntil.Sub(now)
		secs := int(math.Ceil(remaining.Seconds()))
		return RateDecision{
			Reason:     fmt.Sprintf("Please wait %d seconds before your next request.", secs),
			RetryAfter: remaining,
		}, nil
	}

	expired := expireRole(u, now)
	if rolloverUser(u, dateOf(now)) || expired {
		if err := tx.Commit(); err != nil {
			return RateDecision{}, fmt.Errorf("persist daily reset: %w", err)
		}
	}

	limit, _ := limits(doc, u)
	if u.DailyRequests >= limit {
		return RateDecision{Reason: quotaReason(limit)}, nil
	}
	return RateDecision{Allowed: true}, nil
}

func (s *UserService) SetBanned(ctx context.Context, id int64, banned bool) error {
	return s.store.Update(ctx, func(doc *models.Document) error {
		u, err := findUser(doc, id)
		if err != nil {
			return err
		}
		u.Banned = banned
		return nil
	})
}

// SetBalance overwrites the balance. Admin only.
func (s *UserService) SetBalance(ctx context.Context, id int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	return s.store.Update(ctx, func(doc *models.Document) error {
		u, err := findUser(doc, id)
		if err != nil {
			return err
		}
		u.Credits = amount.Round(2)
		u.LastActive = s.now()
		return nil
	})
}

// List returns one page of users ordered by id and the total count.
func (s *UserService) List(ctx context.Context, page, perPage int) ([]models.User, int, error) {
	var users []models.User
	err := s.store.View(ctx, func(doc *models.Document) error {
		users = sortedUsers(doc)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return paginate(users, page, perPage), len(users), nil
}

// Search matches an exact id or a case-insensitive username substring.
func (s *UserService) Search(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimPrefix(strings.TrimSpace(query), "@")
	if query == "" {
		return []models.User{}, nil
	}
	id, idErr := strconv.ParseInt(query, 10, 64)
	lower := strings.ToLower(query)

	out := make([]models.User, 0)
	err := s.store.View(ctx, func(doc *models.Document) error {
		for _, u := range sortedUsers(doc) {
			if (idErr == nil && u.ID == id) || (u.Username != "" && strings.Contains(strings.ToLower(u.Username), lower)) {
				out = append(out, u)
			}
		}
		return nil
	})
	return out, err
}

// TopByCredits returns up to n users with the highest balances.
func (s *UserService) TopByCredits(ctx context.Context, n int) ([]models.User, error) {
	var users []models.User
	err := s.store.View(ctx, func(doc *models.Document) error {
		users = sortedUsers(doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Credits.GreaterThan(users[j].Credits)
	})
	if n > 0 && len(users) > n {
		users = users[:n]
	}
	return users, nil
}

// IDs returns every non-banned user id.
func (s *UserService) IDs(ctx context.Context) ([]int64, error) {
	return s.collectIDs(ctx, func(*models.User) bool { return true })
}

func (s *UserService) IDsByRole(ctx context.Context, roleID int64) ([]int64, error) {
	return s.collectIDs(ctx, func(u *models.User) bool { return u.RoleID == roleID })
}

func (s *UserService) collectIDs(ctx context.Context, keep func(*models.User) bool) ([]int64, error) {
	ids := make([]int64, 0)
	err := s.store.View(ctx, func(doc *models.Document) error {
		for id, u := range doc.Users {
			if !u.Banned && keep(u) {
				ids = append(ids, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *UserService) Count(ctx context.Context) (int, error) {
	var n int
	err := s.store.View(ctx, func(doc *models.Document) error {
		n = len(doc.Users)
		return nil
	})
	return n, err
}

// Roles returns the role catalog ordered by id.
func (s *UserService) Roles(ctx context.Context) ([]models.Role, error) {
	roles := make([]models.Role, 0)
	err := s.store.View(ctx, func(doc *models.Document) error {
		for _, r := range doc.Roles {
			roles = append(roles, *r)
		}
		return nil
	})
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, err
}

func sortedUsers(doc *models.Document) []models.User {
	users := make([]models.User, 0, len(doc.Users))
	for _, u := range doc.Users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
