package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/models"
)

// PaymentService collects money for shop orders through Telegram Payments.
// Without a provider token orders stay pending until an admin completes them.
type PaymentService struct {
	providerToken string
	currency      string
	shop          *ShopService
	catalog       *catalog.Catalog
	log           *slog.Logger
}

func NewPaymentService(providerToken, currency string, shop *ShopService, cat *catalog.Catalog, log *slog.Logger) *PaymentService {
	if currency == "" {
		currency = "INR"
	}
	return &PaymentService{providerToken: providerToken, currency: currency, shop: shop, catalog: cat, log: log}
}

// Enabled reports whether invoices can be sent.
func (s *PaymentService) Enabled() bool {
	return s.providerToken != ""
}

type invoicePayload struct {
	OrderID int64 `json:"order_id"`
}

// SendInvoice sends a Telegram invoice for a pending order.
func (s *PaymentService) SendInvoice(bot *tgbotapi.BotAPI, order *models.Order, chatID int64) error {
	item, ok := s.catalog.Item(order.ItemID)
	if !ok {
		return ErrUnknownItem
	}
	amount := decimal.NewFromFloat(item.PriceINR).Mul(decimal.NewFromInt(100)).IntPart()
	prices := []tgbotapi.LabeledPrice{
		{Label: item.Name, Amount: int(amount)},
	}
	payload, _ := json.Marshal(invoicePayload{OrderID: order.ID})

	description := item.Description
	if description == "" {
		description = item.Name
	}
	invoice := tgbotapi.NewInvoice(chatID,
		item.Name,
		description,
		string(payload),
		s.providerToken,
		fmt.Sprintf("order-%d", order.ID),
		s.currency,
		prices,
	)
	if _, err := bot.Send(invoice); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	return nil
}

// HandlePreCheckout accepts the checkout only for orders that are still pending.
func (s *PaymentService) HandlePreCheckout(ctx context.Context, bot *tgbotapi.BotAPI, query *tgbotapi.PreCheckoutQuery) error {
	response := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: query.ID, OK: true}

	order, err := s.orderFromPayload(ctx, query.InvoicePayload)
	if err != nil || order == nil || order.Status != models.OrderPending || order.UserID != query.From.ID {
		response.OK = false
		response.ErrorMessage = "This order can no longer be paid."
	}
	if _, err := bot.Request(response); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return nil
}

// HandleSuccessfulPayment completes the paid order and grants its item.
func (s *PaymentService) HandleSuccessfulPayment(ctx context.Context, userID int64, payment *tgbotapi.SuccessfulPayment) (*models.Order, error) {
	order, err := s.orderFromPayload(ctx, payment.InvoicePayload)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d belongs to another user", order.ID)
	}
	if err := s.shop.CompleteOrder(ctx, order.ID); err != nil {
		return nil, err
	}
	s.log.Info("payment received", "order", order.ID, "user", userID, "charge", payment.TelegramPaymentChargeID)
	return order, nil
}

func (s *PaymentService) orderFromPayload(ctx context.Context, raw string) (*models.Order, error) {
	var payload invoicePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("parse payment payload: %w", err)
	}
	return s.shop.Order(ctx, payload.OrderID)
}
