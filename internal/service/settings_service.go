package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

// SettingsPatch changes only the fields that are set.
type SettingsPatch struct {
	MaintenanceMode   *bool
	WelcomeBonus      *decimal.Decimal
	ReferralBonus     *decimal.Decimal
	MaxRequestsPerDay *int
	CooldownPeriod    *int
}

type SettingsService struct {
	store *database.Store
	log   *slog.Logger
}

func NewSettingsService(store *database.Store, log *slog.Logger) *SettingsService {
	return &SettingsService{store: store, log: log}
}

func (s *SettingsService) Get(ctx context.Context) (models.Settings, error) {
	var out models.Settings
	err := s.store.View(ctx, func(doc *models.Document) error {
		out = doc.Settings
		return nil
	})
	return out, err
}

func (s *SettingsService) Update(ctx context.Context, p SettingsPatch) (models.Settings, error) {
	if (p.WelcomeBonus != nil && p.WelcomeBonus.IsNegative()) ||
		(p.ReferralBonus != nil && p.ReferralBonus.IsNegative()) ||
		(p.MaxRequestsPerDay != nil && *p.MaxRequestsPerDay < 0) ||
		(p.CooldownPeriod != nil && *p.CooldownPeriod < 0) {
		return models.Settings{}, ErrInvalidAmount
	}
	var out models.Settings
	err := s.store.Update(ctx, func(doc *models.Document) error {
		st := &doc.Settings
		if p.MaintenanceMode != nil {
			st.MaintenanceMode = *p.MaintenanceMode
		}
		if p.WelcomeBonus != nil {
			st.WelcomeBonus = p.WelcomeBonus.Round(2)
		}
		if p.ReferralBonus != nil {
			st.ReferralBonus = p.ReferralBonus.Round(2)
		}
		if p.MaxRequestsPerDay != nil {
			st.MaxRequestsPerDay = *p.MaxRequestsPerDay
		}
		if p.CooldownPeriod != nil {
			st.CooldownPeriod = *p.CooldownPeriod
		}
		out = *st
		return nil
	})
	if err != nil {
		return models.Settings{}, err
	}
	s.log.Info("settings updated", "maintenance", out.MaintenanceMode)
	return out, nil
}

func (s *SettingsService) SetMaintenance(ctx context.Context, on bool) error {
	_, err := s.Update(ctx, SettingsPatch{MaintenanceMode: &on})
	return err
}
