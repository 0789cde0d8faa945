package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/config"
	"github.com/digkill/TGLookupBot/internal/models"
	"github.com/digkill/TGLookupBot/internal/service"
)

const historyPageSize = 10

// Services bundles the core operations the chat binding calls.
type Services struct {
	Catalog    *catalog.Catalog
	Users      *service.UserService
	Exclusions *service.ExclusionService
	History    *service.HistoryService
	Shop       *service.ShopService
	Query      *service.QueryService
	Payments   *service.PaymentService
}

type Bot struct {
	cfg   config.Config
	api   *tgbotapi.BotAPI
	log   *slog.Logger
	svc   Services
	state *StateManager
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, svc Services) *Bot {
	return &Bot{
		cfg:   cfg,
		api:   api,
		log:   log,
		svc:   svc,
		state: NewStateManager(),
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", "username", b.api.Self.UserName)

	for {
		select {
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// SendText delivers a plain message; broadcasts use it through service.Sender.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			b.log.Error("update handler panicked", "err", err, "stack", string(debug.Stack()))
			if chat := update.FromChat(); chat != nil {
				b.reportError(ctx, chat.ID, err, "update")
			}
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.PreCheckoutQuery != nil:
		if err := b.svc.Payments.HandlePreCheckout(ctx, b.api, update.PreCheckoutQuery); err != nil {
			b.log.Error("pre-checkout failed", "err", err)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	session := b.state.Get(msg.Chat.ID)
	text := strings.TrimSpace(msg.Text)
	switch session.State {
	case StateAwaitingQuery:
		b.state.Reset(msg.Chat.ID)
		b.runQuery(ctx, msg.Chat.ID, msg.From.ID, session.ServiceKey, text)
	case StateAwaitingSlotValue, StateAwaitingEditValue:
		if text == "" {
			b.sendText(msg.Chat.ID, "The value cannot be empty. Send the value to exclude.")
			return
		}
		session.Value = text
		if session.State == StateAwaitingSlotValue {
			session.State = StateAwaitingSlotMessage
		} else {
			session.State = StateAwaitingEditMessage
		}
		b.state.Set(msg.Chat.ID, session)
		b.sendText(msg.Chat.ID, "Now send the message shown to anyone who searches for it.")
	case StateAwaitingSlotMessage:
		b.state.Reset(msg.Chat.ID)
		b.finishFill(ctx, msg.Chat.ID, msg.From.ID, session, text)
	case StateAwaitingEditMessage:
		b.state.Reset(msg.Chat.ID)
		b.finishEdit(ctx, msg.Chat.ID, msg.From.ID, session, text)
	default:
		b.sendText(msg.Chat.ID, "Use /services to pick a lookup tool or /help for all commands.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	if msg.Command() != "start" {
		if _, ok := b.ensureUser(ctx, msg.From, chatID); !ok {
			return
		}
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg, args)
	case "help":
		b.sendText(chatID, helpText)
	case "cancel":
		b.state.Reset(chatID)
		b.sendText(chatID, "Cancelled.")
	case "balance":
		b.handleBalance(ctx, msg)
	case "referral":
		b.sendText(chatID, fmt.Sprintf("Invite friends with your link and you both get a bonus:\nhttps://t.me/%s?start=%d", b.api.Self.UserName, msg.From.ID))
	case "services", "tools":
		b.sendServices(chatID)
	case "lookup":
		if len(args) < 2 {
			b.sendText(chatID, "Usage: /lookup <service> <query>")
			return
		}
		b.runQuery(ctx, chatID, msg.From.ID, args[0], strings.Join(args[1:], " "))
	case "history":
		page := 1
		if len(args) > 0 {
			if p, err := strconv.Atoi(args[0]); err == nil && p > 0 {
				page = p
			}
		}
		b.sendHistory(ctx, chatID, msg.From.ID, page)
	case "buyslot":
		b.handleBuySlot(ctx, chatID, msg.From.ID)
	case "myslots":
		b.handleMySlots(ctx, chatID, msg.From.ID)
	case "fill":
		b.startSlotFlow(ctx, chatID, msg.From.ID, args, false)
	case "editex":
		b.startSlotFlow(ctx, chatID, msg.From.ID, args, true)
	case "delex":
		b.handleDeleteSlot(ctx, chatID, msg.From.ID, args)
	case "shop":
		b.sendShop(chatID)
	case "buy":
		if len(args) == 0 {
			b.sendText(chatID, "Usage: /buy <item id>. See /shop for the list.")
			return
		}
		itemID, err := strconv.Atoi(args[0])
		if err != nil {
			b.sendText(chatID, "Item id must be a number.")
			return
		}
		b.handleBuy(ctx, chatID, msg.From.ID, itemID)
	case "membership":
		b.handleMembership(ctx, chatID, msg.From.ID, args)
	default:
		b.sendText(chatID, "Unknown command. Use /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, args []string) {
	var referrer *int64
	if len(args) > 0 {
		if id, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			referrer = &id
		}
	}
	user, created, err := b.svc.Users.CreateUser(ctx, msg.From.ID, msg.From.UserName, referrer)
	if err != nil {
		b.reportError(ctx, msg.Chat.ID, err, "start")
		return
	}
	b.sendText(msg.Chat.ID, formatWelcome(user, msg.From.FirstName, created))
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.svc.Users.GetUser(ctx, msg.From.ID)
	if err != nil || user == nil {
		b.reportError(ctx, msg.Chat.ID, errOrNotFound(err), "balance")
		return
	}
	roles, err := b.svc.Users.Roles(ctx)
	if err != nil {
		b.reportError(ctx, msg.Chat.ID, err, "balance")
		return
	}
	b.sendText(msg.Chat.ID, formatBalance(user, roles))
}

func (b *Bot) sendServices(chatID int64) {
	services := b.svc.Catalog.Services()
	if len(services) == 0 {
		b.sendText(chatID, "No lookup tools are available right now.")
		return
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(services))
	for _, svc := range services {
		label := svc.Label()
		if svc.Price().IsPositive() {
			label = fmt.Sprintf("%s (%s ZC)", label, svc.Price().StringFixed(2))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "svc:"+svc.Key),
		))
	}
	msg := tgbotapi.NewMessage(chatID, "Select a lookup tool:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send keyboard", "err", err)
	}
}

func (b *Bot) sendShop(chatID int64) {
	items := b.svc.Shop.Items()
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items))
	for _, item := range items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s - %.0f %s", item.Name, item.PriceINR, b.cfg.PaymentCurrency), "buy:"+strconv.Itoa(item.ID)),
		))
	}
	msg := tgbotapi.NewMessage(chatID, formatShop(items, b.cfg.PaymentCurrency))
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send shop", "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	ack := "OK"
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
			b.log.Error("callback ack", "err", err)
		}
	}()

	if _, ok := b.ensureUser(ctx, cb.From, chatID); !ok {
		return
	}

	kind, value, _ := strings.Cut(cb.Data, ":")
	switch kind {
	case "svc":
		svc, ok := b.svc.Catalog.Service(value)
		if !ok || !svc.Enabled {
			ack = "Unknown tool"
			return
		}
		b.state.Set(chatID, Session{State: StateAwaitingQuery, ServiceKey: svc.Key})
		b.sendText(chatID, formatServicePrompt(svc))
	case "buy":
		itemID, err := strconv.Atoi(value)
		if err != nil {
			ack = "Unknown item"
			return
		}
		b.handleBuy(ctx, chatID, cb.From.ID, itemID)
	case "hist":
		page, err := strconv.Atoi(value)
		if err != nil || page < 1 {
			page = 1
		}
		b.sendHistory(ctx, chatID, cb.From.ID, page)
	default:
		ack = "Unknown choice"
	}
}

func (b *Bot) runQuery(ctx context.Context, chatID, userID int64, serviceKey, text string) {
	if text == "" {
		b.sendText(chatID, "The query cannot be empty.")
		return
	}
	b.sendText(chatID, "Searching...")

	result, err := b.svc.Query.Handle(ctx, userID, serviceKey, text)
	if err != nil {
		b.replyQueryError(ctx, chatID, err)
		return
	}
	if result.Excluded {
		b.sendText(chatID, result.Message)
		return
	}
	b.sendText(chatID, formatResult(result))
}

func (b *Bot) replyQueryError(ctx context.Context, chatID int64, err error) {
	var (
		rl *service.RateLimitError
		le *service.LookupError
	)
	switch {
	case errors.As(err, &rl):
		b.sendText(chatID, rl.Reason)
	case errors.As(err, &le):
		b.sendText(chatID, fmt.Sprintf("The lookup failed. Please try again later.\nError ID: %s", le.ID))
	case errors.Is(err, service.ErrInsufficientCredits):
		b.sendText(chatID, "Insufficient credits for this tool. Use /shop to buy more.")
	case errors.Is(err, service.ErrUnknownService):
		b.sendText(chatID, "Unknown tool. Use /services to see what is available.")
	case errors.Is(err, service.ErrUserBanned):
		b.sendText(chatID, "Your account has been suspended.")
	case errors.Is(err, service.ErrMaintenance):
		b.sendText(chatID, "The bot is under maintenance. Please try again later.")
	case errors.Is(err, service.ErrUserNotFound):
		b.sendText(chatID, "User not found. Please use /start first.")
	default:
		b.reportError(ctx, chatID, err, "query")
	}
}

func (b *Bot) sendHistory(ctx context.Context, chatID, userID int64, page int) {
	entries, total, err := b.svc.History.Query(ctx, service.HistoryFilter{UserID: &userID, Page: page, PerPage: historyPageSize})
	if err != nil {
		b.reportError(ctx, chatID, err, "history")
		return
	}
	pages := (total + historyPageSize - 1) / historyPageSize
	if pages == 0 {
		pages = 1
	}
	msg := tgbotapi.NewMessage(chatID, formatHistory(entries, page, pages, total))
	var row []tgbotapi.InlineKeyboardButton
	if page > 1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Previous", fmt.Sprintf("hist:%d", page-1)))
	}
	if page < pages {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Next", fmt.Sprintf("hist:%d", page+1)))
	}
	if len(row) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send history", "err", err)
	}
}

func (b *Bot) handleBuySlot(ctx context.Context, chatID, userID int64) {
	no, err := b.svc.Exclusions.PurchaseSlot(ctx, userID)
	switch {
	case errors.Is(err, service.ErrInsufficientCredits):
		b.sendText(chatID, fmt.Sprintf("An exclusion slot costs %s ZC. Your balance is too low.", b.svc.Exclusions.SlotPrice().StringFixed(2)))
	case err != nil:
		b.reportError(ctx, chatID, err, "buy slot")
	default:
		b.sendText(chatID, fmt.Sprintf("Slot #%d purchased. Use /fill %d to set its value.", no, no))
	}
}

func (b *Bot) handleMySlots(ctx context.Context, chatID, userID int64) {
	slots, err := b.svc.Exclusions.ByOwner(ctx, userID)
	if err != nil {
		b.reportError(ctx, chatID, err, "my slots")
		return
	}
	b.sendText(chatID, formatSlots(slots, b.svc.Exclusions.SlotPrice(), b.svc.Exclusions.EditFee()))
}

// startSlotFlow checks the slot up front so the user is not asked for a
// value that would be rejected anyway.
func (b *Bot) startSlotFlow(ctx context.Context, chatID, userID int64, args []string, edit bool) {
	no, ok := b.slotArg(chatID, args)
	if !ok {
		return
	}
	ex, err := b.svc.Exclusions.Exclusion(ctx, no)
	if err != nil {
		b.reportError(ctx, chatID, err, "slot flow")
		return
	}
	isAdmin := b.cfg.IsAdmin(userID)
	switch {
	case ex == nil:
		b.sendText(chatID, "Slot not found.")
		return
	case !isAdmin && !ex.OwnedBy(userID):
		b.sendText(chatID, "You do not own this slot.")
		return
	case !edit && ex.Filled():
		b.sendText(chatID, fmt.Sprintf("Slot #%d is already filled. Use /editex %d to change it.", no, no))
		return
	case edit && !ex.Filled():
		b.sendText(chatID, fmt.Sprintf("Slot #%d is empty. Use /fill %d first.", no, no))
		return
	}

	state := StateAwaitingSlotValue
	prompt := "Send the value to exclude, for example a phone number or email."
	if edit {
		state = StateAwaitingEditValue
		if !isAdmin {
			prompt = fmt.Sprintf("Editing costs %s ZC. %s", b.svc.Exclusions.EditFee().StringFixed(2), prompt)
		}
	}
	b.state.Set(chatID, Session{State: state, SlotNo: no})
	b.sendText(chatID, prompt+"\nUse /cancel to stop.")
}

func (b *Bot) finishFill(ctx context.Context, chatID, userID int64, session Session, message string) {
	err := b.svc.Exclusions.FillSlot(ctx, session.SlotNo, userID, session.Value, message)
	if err != nil {
		b.replySlotError(ctx, chatID, err)
		return
	}
	b.sendText(chatID, fmt.Sprintf("Slot #%d now excludes %q.", session.SlotNo, session.Value))
}

func (b *Bot) finishEdit(ctx context.Context, chatID, userID int64, session Session, message string) {
	err := b.svc.Exclusions.UpdateExclusion(ctx, session.SlotNo, session.Value, message, userID, b.cfg.IsAdmin(userID))
	if err != nil {
		b.replySlotError(ctx, chatID, err)
		return
	}
	b.sendText(chatID, fmt.Sprintf("Slot #%d updated.", session.SlotNo))
}

func (b *Bot) handleDeleteSlot(ctx context.Context, chatID, userID int64, args []string) {
	no, ok := b.slotArg(chatID, args)
	if !ok {
		return
	}
	if err := b.svc.Exclusions.DeleteExclusion(ctx, no, userID, b.cfg.IsAdmin(userID)); err != nil {
		b.replySlotError(ctx, chatID, err)
		return
	}
	b.sendText(chatID, fmt.Sprintf("Slot #%d cleared. You can fill it again with /fill %d.", no, no))
}

func (b *Bot) slotArg(chatID int64, args []string) (int64, bool) {
	if len(args) == 0 {
		b.sendText(chatID, "Please pass the slot number, see /myslots.")
		return 0, false
	}
	no, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		b.sendText(chatID, "Slot number must be a number.")
		return 0, false
	}
	return no, true
}

func (b *Bot) replySlotError(ctx context.Context, chatID int64, err error) {
	switch {
	case errors.Is(err, service.ErrExclusionNotFound):
		b.sendText(chatID, "Slot not found.")
	case errors.Is(err, service.ErrNotSlotOwner):
		b.sendText(chatID, "You do not own this slot.")
	case errors.Is(err, service.ErrSlotNotEmpty):
		b.sendText(chatID, "This slot is already filled.")
	case errors.Is(err, service.ErrSlotEmpty):
		b.sendText(chatID, "This slot is empty.")
	case errors.Is(err, service.ErrDuplicateValue):
		b.sendText(chatID, "That value is already excluded.")
	case errors.Is(err, service.ErrInvalidValue):
		b.sendText(chatID, "The value cannot be empty.")
	case errors.Is(err, service.ErrInsufficientCredits):
		b.sendText(chatID, "Insufficient credits for this change.")
	default:
		b.reportError(ctx, chatID, err, "exclusion")
	}
}

func (b *Bot) handleBuy(ctx context.Context, chatID, userID int64, itemID int) {
	order, err := b.svc.Shop.CreateOrder(ctx, userID, itemID)
	if errors.Is(err, service.ErrUnknownItem) {
		b.sendText(chatID, "Unknown item. See /shop for the list.")
		return
	}
	if err != nil {
		b.reportError(ctx, chatID, err, "create order")
		return
	}
	if !b.svc.Payments.Enabled() {
		b.sendText(chatID, fmt.Sprintf("Order #%d created. An admin will confirm it once payment is received.", order.ID))
		return
	}
	if err := b.svc.Payments.SendInvoice(b.api, order, chatID); err != nil {
		b.reportError(ctx, chatID, err, "send invoice")
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	order, err := b.svc.Payments.HandleSuccessfulPayment(ctx, msg.From.ID, msg.SuccessfulPayment)
	if err != nil {
		b.reportError(ctx, msg.Chat.ID, err, "successful payment")
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Payment received, order #%d is complete. Check /balance.", order.ID))
}

func (b *Bot) handleMembership(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 2 {
		b.sendMembershipOffers(ctx, chatID)
		return
	}
	roleID, err1 := strconv.ParseInt(args[0], 10, 64)
	days, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		b.sendText(chatID, "Usage: /membership <role id> <days>")
		return
	}
	err := b.svc.Shop.PurchaseMembership(ctx, userID, roleID, days)
	switch {
	case errors.Is(err, service.ErrInvalidDuration):
		b.sendText(chatID, "Unsupported duration. Use /membership to see the options.")
	case errors.Is(err, service.ErrRoleNotPurchasable), errors.Is(err, service.ErrRoleNotFound):
		b.sendText(chatID, "That membership cannot be bought with ZC.")
	case errors.Is(err, service.ErrInsufficientCredits):
		b.sendText(chatID, "Insufficient credits for this membership.")
	case err != nil:
		b.reportError(ctx, chatID, err, "membership")
	default:
		b.sendText(chatID, fmt.Sprintf("Membership active for %d days. Check /balance.", days))
	}
}

func (b *Bot) sendMembershipOffers(ctx context.Context, chatID int64) {
	roles, err := b.svc.Users.Roles(ctx)
	if err != nil {
		b.reportError(ctx, chatID, err, "membership offers")
		return
	}
	var sb strings.Builder
	sb.WriteString("Memberships payable with ZC:\n")
	for _, role := range roles {
		if role.GrantsZCPerDay <= 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n%s (id %d): %d requests/day, %ds cooldown, %d ZC/day\n", role.Name, role.ID, role.RateLimit, role.Cooldown, role.GrantsZCPerDay))
		for _, days := range service.MembershipDurations() {
			cost, err := b.svc.Shop.MembershipCost(ctx, role.ID, days)
			if err != nil {
				continue
			}
			sb.WriteString(fmt.Sprintf("  %d days: %s ZC\n", days, cost.StringFixed(0)))
		}
	}
	sb.WriteString("\nBuy with /membership <role id> <days>")
	b.sendText(chatID, sb.String())
}

// ensureUser registers unknown senders so every command works without /start.
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, bool) {
	if from == nil {
		return nil, false
	}
	user, _, err := b.svc.Users.CreateUser(ctx, from.ID, from.UserName, nil)
	if err != nil {
		b.reportError(ctx, chatID, err, "ensure user")
		return nil, false
	}
	if user.Banned {
		b.sendText(chatID, "Your account has been suspended.")
		return nil, false
	}
	return user, true
}

// reportError records err in the error log and shows the user its id.
func (b *Bot) reportError(ctx context.Context, chatID int64, err error, where string) {
	id, logErr := b.svc.History.LogError(ctx, err, where)
	if logErr != nil {
		id = service.ErrorID(err)
		b.log.Error("log error", "err", logErr)
	}
	b.log.Error("chat handler error", "where", where, "error_id", id, "err", err)
	b.sendText(chatID, fmt.Sprintf("Something went wrong. Please try again later.\nError ID: %s", id))
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func errOrNotFound(err error) error {
	if err != nil {
		return err
	}
	return service.ErrUserNotFound
}
