package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

// membershipMultipliers price a membership paid in credits: the role's daily
// grant times the number of days times the multiplier.
var membershipMultipliers = map[int]decimal.Decimal{
	14: decimal.NewFromInt(2),
	28: decimal.RequireFromString("3.5"),
	56: decimal.NewFromInt(6),
	84: decimal.NewFromInt(8),
}

// MembershipDurations lists the purchasable durations in days.
func MembershipDurations() []int {
	out := make([]int, 0, len(membershipMultipliers))
	for d := range membershipMultipliers {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

type ShopService struct {
	store   *database.Store
	catalog *catalog.Catalog
	now     Clock
	log     *slog.Logger
}

func NewShopService(store *database.Store, cat *catalog.Catalog, now Clock, log *slog.Logger) *ShopService {
	return &ShopService{store: store, catalog: cat, now: now.orDefault(), log: log}
}

func (s *ShopService) Items() []catalog.ShopItem {
	return s.catalog.Items()
}

// CreateOrder opens a pending order for an item paid outside the bot.
func (s *ShopService) CreateOrder(ctx context.Context, userID int64, itemID int) (*models.Order, error) {
	if _, ok := s.catalog.Item(itemID); !ok {
		return nil, ErrUnknownItem
	}
	var order *models.Order
	err := s.store.Update(ctx, func(doc *models.Document) error {
		if _, err := findUser(doc, userID); err != nil {
			return err
		}
		order = &models.Order{
			ID:        doc.NextOrderID,
			UserID:    userID,
			ItemID:    itemID,
			Status:    models.OrderPending,
			CreatedAt: s.now(),
		}
		doc.Orders[order.ID] = order
		doc.NextOrderID++
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order created", "order", order.ID, "user", userID, "item", itemID)
	return order, nil
}

func (s *ShopService) Order(ctx context.Context, id int64) (*models.Order, error) {
	var found *models.Order
	err := s.store.View(ctx, func(doc *models.Document) error {
		if o, ok := doc.Orders[id]; ok {
			cp := *o
			found = &cp
		}
		return nil
	})
	return found, err
}

// PendingOrders returns pending orders, oldest first.
func (s *ShopService) PendingOrders(ctx context.Context) ([]models.Order, error) {
	out := make([]models.Order, 0)
	err := s.store.View(ctx, func(doc *models.Document) error {
		for _, o := range doc.Orders {
			if o.Status == models.OrderPending {
				out = append(out, *o)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// UpdateOrderStatus sets an arbitrary status without granting anything.
func (s *ShopService) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	return s.store.Update(ctx, func(doc *models.Document) error {
		o, ok := doc.Orders[id]
		if !ok {
			return ErrOrderNotFound
		}
		o.Status = status
		if status == models.OrderCompleted {
			o.CompletedAt = timePtr(s.now())
		}
		return nil
	})
}

// CompleteOrder grants what the ordered item provides and marks the order
// completed, all in one transaction.
func (s *ShopService) CompleteOrder(ctx context.Context, id int64) error {
	err := s.store.Update(ctx, func(doc *models.Document) error {
		o, ok := doc.Orders[id]
		if !ok {
			return ErrOrderNotFound
		}
		if o.Status == models.OrderCompleted {
			return ErrOrderCompleted
		}
		item, ok := s.catalog.Item(o.ItemID)
		if !ok {
			return ErrUnknownItem
		}
		u, err := findUser(doc, o.UserID)
		if err != nil {
			return err
		}

		now := s.now()
		if item.GrantsZC > 0 {
			if err := applyCredits(doc, u, decimal.NewFromInt(int64(item.GrantsZC)), now); err != nil {
				return err
			}
		}
		if item.GrantsRoleID != 0 {
			if _, ok := doc.Roles[item.GrantsRoleID]; !ok {
				return ErrRoleNotFound
			}
			u.RoleID = item.GrantsRoleID
			if item.RoleDurationDays > 0 {
				u.RoleExpiryDate = timePtr(now.AddDate(0, 0, item.RoleDurationDays))
			} else {
				u.RoleExpiryDate = nil
			}
		}
		if item.Type == catalog.ItemExclusionSlot {
			newSlot(doc, u.ID, false, int64Ptr(u.ID), now)
		}

		o.Status = models.OrderCompleted
		o.CompletedAt = timePtr(now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete order %d: %w", id, err)
	}
	s.log.Info("order completed", "order", id)
	return nil
}

// MembershipCost returns the credit price of roleID for days.
func (s *ShopService) MembershipCost(ctx context.Context, roleID int64, days int) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := s.store.View(ctx, func(doc *models.Document) error {
		var err error
		cost, err = membershipCost(doc, roleID, days)
		return err
	})
	return cost, err
}

// PurchaseMembership pays for a timed role with credits. Renewing the role
// the user already holds extends it from the current expiry.
func (s *ShopService) PurchaseMembership(ctx context.Context, userID, roleID int64, days int) error {
	err := s.store.Update(ctx, func(doc *models.Document) error {
		u, err := findUser(doc, userID)
		if err != nil {
			return err
		}
		cost, err := membershipCost(doc, roleID, days)
		if err != nil {
			return err
		}
		now := s.now()
		refreshUser(doc, u, now)
		if err := applyCredits(doc, u, cost.Neg(), now); err != nil {
			return err
		}
		start := now
		if u.RoleID == roleID && u.RoleExpiryDate != nil && u.RoleExpiryDate.After(now) {
			start = *u.RoleExpiryDate
		}
		u.RoleID = roleID
		u.RoleExpiryDate = timePtr(start.AddDate(0, 0, days))
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("membership purchased", "user", userID, "role", roleID, "days", days)
	return nil
}

func membershipCost(doc *models.Document, roleID int64, days int) (decimal.Decimal, error) {
	role, ok := doc.Roles[roleID]
	if !ok {
		return decimal.Zero, ErrRoleNotFound
	}
	if role.GrantsZCPerDay <= 0 {
		return decimal.Zero, ErrRoleNotPurchasable
	}
	mult, ok := membershipMultipliers[days]
	if !ok {
		return decimal.Zero, ErrInvalidDuration
	}
	return decimal.NewFromInt(int64(role.GrantsZCPerDay) * int64(days)).Mul(mult).Floor(), nil
}
