package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

// ExclusionService manages override slots. A slot moves between Empty and
// Filled; it is never removed and its number is never reused.
type ExclusionService struct {
	store     *database.Store
	slotPrice decimal.Decimal
	editFee   decimal.Decimal
	now       Clock
	log       *slog.Logger
}

func NewExclusionService(store *database.Store, slotPrice, editFee decimal.Decimal, now Clock, log *slog.Logger) *ExclusionService {
	return &ExclusionService{store: store, slotPrice: slotPrice, editFee: editFee, now: now.orDefault(), log: log}
}

func (s *ExclusionService) SlotPrice() decimal.Decimal { return s.slotPrice }

func (s *ExclusionService) EditFee() decimal.Decimal { return s.editFee }

// AddExclusion creates a filled global override with no owner.
func (s *ExclusionService) AddExclusion(ctx context.Context, adminID int64, value, message string) (*models.Exclusion, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrInvalidValue
	}
	var created *models.Exclusion
	err := s.store.Update(ctx, func(doc *models.Document) error {
		if valueTaken(doc, value, 0) {
			return ErrDuplicateValue
		}
		created = newSlot(doc, adminID, true, nil, s.now())
		created.Value = value
		created.Message = message
		created.State = models.ExclusionFilled
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("exclusion added", "no", created.No, "admin", adminID)
	return created, nil
}

// PurchaseSlot debits the slot price and reserves an empty slot for userID.
func (s *ExclusionService) PurchaseSlot(ctx context.Context, userID int64) (int64, error) {
	var no int64
	err := s.store.Update(ctx, func(doc *models.Document) error {
		u, err := findUser(doc, userID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := applyCredits(doc, u, s.slotPrice.Neg(), now); err != nil {
			return err
		}
		no = newSlot(doc, userID, false, int64Ptr(userID), now).No
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("exclusion slot purchased", "no", no, "user", userID)
	return no, nil
}

// FillSlot writes content into an empty slot owned by userID.
func (s *ExclusionService) FillSlot(ctx context.Context, no, userID int64, value, message string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrInvalidValue
	}
	return s.store.Update(ctx, func(doc *models.Document) error {
		e, ok := doc.Exclusions[no]
		if !ok {
			return ErrExclusionNotFound
		}
		if !e.OwnedBy(userID) {
			return ErrNotSlotOwner
		}
		if e.Filled() {
			return ErrSlotNotEmpty
		}
		if valueTaken(doc, value, no) {
			return ErrDuplicateValue
		}
		e.Value = value
		e.Message = message
		e.State = models.ExclusionFilled
		e.Timestamp = s.now()
		return nil
	})
}

// UpdateExclusion edits a filled slot. Non-admin edits cost the edit fee,
// charged in the same transaction as the edit.
func (s *ExclusionService) UpdateExclusion(ctx context.Context, no int64, value, message string, userID int64, isAdmin bool) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrInvalidValue
	}
	return s.store.Update(ctx, func(doc *models.Document) error {
		e, ok := doc.Exclusions[no]
		if !ok {
			return ErrExclusionNotFound
		}
		u, err := findUser(doc, userID)
		if err != nil {
			return err
		}
		if !isAdmin && !e.OwnedBy(userID) {
			return ErrNotSlotOwner
		}
		if err := checkEditable(doc, e, value); err != nil {
			return err
		}
		now := s.now()
		if !isAdmin && s.editFee.IsPositive() {
			if err := applyCredits(doc, u, s.editFee.Neg(), now); err != nil {
				return err
			}
		}
		e.Value = value
		e.Message = message
		e.Timestamp = now
		return nil
	})
}

// PanelUpdateExclusion edits a filled slot from the admin panel, which acts
// without a user record and pays no fee.
func (s *ExclusionService) PanelUpdateExclusion(ctx context.Context, no int64, value, message string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrInvalidValue
	}
	return s.store.Update(ctx, func(doc *models.Document) error {
		e, ok := doc.Exclusions[no]
		if !ok {
			return ErrExclusionNotFound
		}
		if err := checkEditable(doc, e, value); err != nil {
			return err
		}
		e.Value = value
		e.Message = message
		e.Timestamp = s.now()
		return nil
	})
}

func checkEditable(doc *models.Document, e *models.Exclusion, value string) error {
	if !e.Filled() {
		return ErrSlotEmpty
	}
	if valueTaken(doc, value, e.No) {
		return ErrDuplicateValue
	}
	return nil
}

// DeleteExclusion clears a slot back to Empty. The owner keeps the slot and
// may fill it again without paying.
func (s *ExclusionService) DeleteExclusion(ctx context.Context, no, userID int64, isAdmin bool) error {
	return s.store.Update(ctx, func(doc *models.Document) error {
		e, ok := doc.Exclusions[no]
		if !ok {
			return ErrExclusionNotFound
		}
		if !isAdmin && !e.OwnedBy(userID) {
			return ErrNotSlotOwner
		}
		e.Value = ""
		e.Message = ""
		e.State = models.ExclusionEmpty
		e.Timestamp = s.now()
		return nil
	})
}

// GetExclusion finds a filled exclusion whose value equals value, ignoring
// case. It returns nil when nothing matches.
func (s *ExclusionService) GetExclusion(ctx context.Context, value string) (*models.Exclusion, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var found *models.Exclusion
	err := s.store.View(ctx, func(doc *models.Document) error {
		for _, e := range doc.Exclusions {
			if e.Filled() && strings.EqualFold(e.Value, value) {
				cp := *e
				found = &cp
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (s *ExclusionService) Exclusion(ctx context.Context, no int64) (*models.Exclusion, error) {
	var found *models.Exclusion
	err := s.store.View(ctx, func(doc *models.Document) error {
		if e, ok := doc.Exclusions[no]; ok {
			cp := *e
			found = &cp
		}
		return nil
	})
	return found, err
}

// ByOwner lists the slots held by userID, filled or not.
func (s *ExclusionService) ByOwner(ctx context.Context, userID int64) ([]models.Exclusion, error) {
	return s.collect(ctx, func(e *models.Exclusion) bool { return e.OwnedBy(userID) })
}

func (s *ExclusionService) List(ctx context.Context) ([]models.Exclusion, error) {
	return s.collect(ctx, func(*models.Exclusion) bool { return true })
}

func (s *ExclusionService) collect(ctx context.Context, keep func(*models.Exclusion) bool) ([]models.Exclusion, error) {
	out := make([]models.Exclusion, 0)
	err := s.store.View(ctx, func(doc *models.Document) error {
		for _, e := range doc.Exclusions {
			if keep(e) {
				out = append(out, *e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].No < out[j].No })
	return out, err
}

func newSlot(doc *models.Document, addedBy int64, byAdmin bool, owner *int64, now time.Time) *models.Exclusion {
	e := &models.Exclusion{
		No:           doc.NextExclusionNo,
		AddedBy:      addedBy,
		AddedByAdmin: byAdmin,
		Timestamp:    now,
		SlotOwner:    owner,
		State:        models.ExclusionEmpty,
	}
	doc.Exclusions[e.No] = e
	doc.NextExclusionNo++
	return e
}

// valueTaken reports whether another filled exclusion already uses value.
func valueTaken(doc *models.Document, value string, self int64) bool {
	for no, e := range doc.Exclusions {
		if no != self && e.Filled() && strings.EqualFold(e.Value, value) {
			return true
		}
	}
	return false
}
