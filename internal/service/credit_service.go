package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

type CreditService struct {
	store        *database.Store
	catalog      *catalog.Catalog
	historyLimit int
	now          Clock
	log          *slog.Logger
}

func NewCreditService(store *database.Store, cat *catalog.Catalog, historyLimit int, now Clock, log *slog.Logger) *CreditService {
	if historyLimit <= 0 {
		historyLimit = 1000
	}
	return &CreditService{store: store, catalog: cat, historyLimit: historyLimit, now: now.orDefault(), log: log}
}

// UpdateCredits applies delta to a balance. A change that would leave the
// balance negative is rejected in full.
func (s *CreditService) UpdateCredits(ctx context.Context, id int64, delta decimal.Decimal, reason string) error {
	err := s.store.Update(ctx, func(doc *models.Document) error {
		u, err := findUser(doc, id)
		if err != nil {
			return err
		}
		return applyCredits(doc, u, delta, s.now())
	})
	if err != nil {
		return err
	}
	s.log.Info("credits updated", "user", id, "delta", delta.String(), "reason", reason)
	return nil
}

// HasEnoughCredits is false for unknown or banned users and unknown services.
func (s *CreditService) HasEnoughCredits(ctx context.Context, id int64, serviceKey string) (bool, error) {
	cost, ok := s.catalog.Cost(serviceKey)
	if !ok {
		return false, nil
	}
	var enough bool
	err := s.store.View(ctx, func(doc *models.Document) error {
		u, ok := doc.Users[id]
		if !ok || u.Banned {
			return nil
		}
		enough = u.Credits.GreaterThanOrEqual(cost)
		return nil
	})
	return enough, err
}

// DeductForService charges for one completed lookup. Affordability, the
// daily quota, usage counters, cooldown, history and the charge itself are
// applied in a single store transaction; when either check fails nothing is
// recorded.
func (s *CreditService) DeductForService(ctx context.Context, id int64, serviceKey, query string) error {
	cost, ok := s.catalog.Cost(serviceKey)
	if !ok {
		return ErrUnknownService
	}
	svc, _ := s.catalog.Service(serviceKey)

	err := s.store.Update(ctx, func(doc *models.Document) error {
		u, err := findUser(doc, id)
		if err != nil {
			return err
		}
		if cost.IsPositive() && u.Credits.LessThan(cost) {
			return ErrInsufficientCredits
		}

		now := s.now()
		day := dateOf(now)
		expireRole(u, now)
		rolloverUser(u, day)
		limit, cooldown := limits(doc, u)
		if u.DailyRequests >= limit {
			return &RateLimitError{Reason: quotaReason(limit)}
		}
		rolloverGlobal(doc, day)

		u.DailyRequests++
		u.TotalRequests++
		u.LastActive = now
		doc.Stats.TotalRequests++
		doc.Stats.DailyRequests++
		doc.Analytics.PopularTools[svc.Key]++

		u.CooldownUntil = timePtr(now.Add(time.Duration(cooldown) * time.Second))

		doc.QueryHistory = appendBounded(doc.QueryHistory, models.QueryEntry{
			UserID:    id,
			Service:   svc.Key,
			Query:     query,
			Timestamp: now,
		}, s.historyLimit)

		if cost.IsPositive() {
			return applyCredits(doc, u, cost.Neg(), now)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deduct for %s: %w", serviceKey, err)
	}
	return nil
}

// Giveaway credits amount to every non-banned user and returns how many
// users received it.
func (s *CreditService) Giveaway(ctx context.Context, amount decimal.Decimal) (int, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	var count int
	err := s.store.Update(ctx, func(doc *models.Document) error {
		now := s.now()
		for _, u := range doc.Users {
			if u.Banned {
				continue
			}
			if err := applyCredits(doc, u, amount, now); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("credit giveaway", "amount", amount.String(), "users", count)
	return count, nil
}
