package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/models"
	"github.com/digkill/TGLookupBot/internal/service"
)

// panelUserID marks records created from the admin panel rather than chat.
const panelUserID int64 = 0

// Services bundles what the admin API operates on.
type Services struct {
	Users      *service.UserService
	Credits    *service.CreditService
	Exclusions *service.ExclusionService
	History    *service.HistoryService
	Shop       *service.ShopService
	Settings   *service.SettingsService
	Broadcast  *service.BroadcastService
}

type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	svc      Services
	validate *validator.Validate
	router   *chi.Mux
	baseCtx  context.Context
}

func NewServer(addr, username, password string, log *slog.Logger, svc Services) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   r,
		baseCtx:  context.Background(),
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Post("/giveaway", s.handleGiveaway)
		protected.Get("/roles", s.handleRoles)
		protected.Get("/stats", s.handleStats)
		protected.Get("/history", s.handleHistory)
		protected.Get("/settings", s.handleGetSettings)
		protected.Put("/settings", s.handleUpdateSettings)
		protected.Get("/errors", s.handleListErrors)
		protected.Delete("/errors", s.handleClearErrors)
		protected.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Get("/search", s.handleSearchUsers)
			r.Get("/top", s.handleTopUsers)
			r.Get("/{id}", s.handleGetUser)
			r.Post("/{id}/promote", s.handlePromote)
			r.Post("/{id}/credits", s.handleCredits)
			r.Put("/{id}/balance", s.handleBalance)
			r.Post("/{id}/ban", s.handleBan)
		})
		protected.Route("/exclusions", func(r chi.Router) {
			r.Get("/", s.handleListExclusions)
			r.Post("/", s.handleAddExclusion)
			r.Get("/{id}", s.handleGetExclusion)
			r.Put("/{id}", s.handleUpdateExclusion)
			r.Delete("/{id}", s.handleDeleteExclusion)
		})
		protected.Route("/orders", func(r chi.Router) {
			r.Get("/pending", s.handlePendingOrders)
			r.Get("/{id}", s.handleGetOrder)
			r.Post("/{id}/complete", s.handleCompleteOrder)
			r.Put("/{id}/status", s.handleOrderStatus)
		})
	})
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type broadcastRequest struct {
	Message string `json:"message" validate:"required"`
	RoleID  int64  `json:"role_id" validate:"gte=0"`
}

// handleBroadcast answers immediately and delivers in the background; the
// outcome is logged when the run finishes.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ids, err := s.svc.Broadcast.Recipients(r.Context(), req.RoleID)
	if err != nil {
		s.internalError(w, err)
		return
	}

	go func() {
		res, err := s.svc.Broadcast.Send(s.baseCtx, ids, req.Message)
		if err != nil {
			s.log.Error("broadcast interrupted", "err", err, "sent", res.Sent, "total", res.Total)
			return
		}
		s.log.Info("broadcast finished", "sent", res.Sent, "failed", res.Failed, "total", res.Total)
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{"total": len(ids)})
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"omitempty,max=200"`
}

func (s *Server) handleGiveaway(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	count, err := s.svc.Credits.Giveaway(r.Context(), req.Amount)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"users": count, "amount": req.Amount})
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.svc.Users.Roles(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, roles)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.History.Stats(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.HistoryFilter{
		Service: q.Get("service"),
		Period:  service.Period(q.Get("period")),
		Page:    queryInt(q.Get("page"), 1),
		PerPage: queryInt(q.Get("per_page"), 20),
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		filter.UserID = &id
	}
	entries, total, err := s.svc.History.Query(r.Context(), filter)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"total": total, "entries": entries})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.Settings.Get(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	MaintenanceMode   *bool            `json:"maintenance_mode"`
	WelcomeBonus      *decimal.Decimal `json:"welcome_bonus"`
	ReferralBonus     *decimal.Decimal `json:"referral_bonus"`
	MaxRequestsPerDay *int             `json:"max_requests_per_day" validate:"omitempty,gte=0"`
	CooldownPeriod    *int             `json:"cooldown_period" validate:"omitempty,gte=0"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	settings, err := s.svc.Settings.Update(r.Context(), service.SettingsPatch{
		MaintenanceMode:   req.MaintenanceMode,
		WelcomeBonus:      req.WelcomeBonus,
		ReferralBonus:     req.ReferralBonus,
		MaxRequestsPerDay: req.MaxRequestsPerDay,
		CooldownPeriod:    req.CooldownPeriod,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleListErrors(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.History.Errors(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.History.ClearErrors(r.Context()); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, total, err := s.svc.Users.List(r.Context(), queryInt(q.Get("page"), 1), queryInt(q.Get("per_page"), 20))
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"total": total, "users": users})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "q required", http.StatusBadRequest)
		return
	}
	users, err := s.svc.Users.Search(r.Context(), query)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleTopUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Users.TopByCredits(r.Context(), queryInt(r.URL.Query().Get("n"), 10))
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	user, err := s.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type promoteRequest struct {
	RoleID       int64 `json:"role_id" validate:"required,gt=0"`
	DurationDays int   `json:"duration_days" validate:"gte=0"`
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req promoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Users.PromoteUser(r.Context(), id, req.RoleID, req.DurationDays); err != nil {
		s.serviceError(w, err)
		return
	}
	s.respondUser(w, r, id)
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "admin adjustment"
	}
	if err := s.svc.Credits.UpdateCredits(r.Context(), id, req.Amount, reason); err != nil {
		s.serviceError(w, err)
		return
	}
	s.respondUser(w, r, id)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Users.SetBalance(r.Context(), id, req.Amount); err != nil {
		s.serviceError(w, err)
		return
	}
	s.respondUser(w, r, id)
}

type banRequest struct {
	Banned *bool `json:"banned" validate:"required"`
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req banRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Users.SetBanned(r.Context(), id, *req.Banned); err != nil {
		s.serviceError(w, err)
		return
	}
	s.respondUser(w, r, id)
}

func (s *Server) handleListExclusions(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Exclusion
		err  error
	)
	if raw := r.URL.Query().Get("owner"); raw != "" {
		owner, perr := parseID(raw)
		if perr != nil {
			http.Error(w, "invalid owner", http.StatusBadRequest)
			return
		}
		list, err = s.svc.Exclusions.ByOwner(r.Context(), owner)
	} else {
		list, err = s.svc.Exclusions.List(r.Context())
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

type exclusionRequest struct {
	Value   string `json:"value" validate:"required,max=256"`
	Message string `json:"message" validate:"max=1024"`
}

func (s *Server) handleAddExclusion(w http.ResponseWriter, r *http.Request) {
	var req exclusionRequest
	if !s.decode(w, r, &req) {
		return
	}
	ex, err := s.svc.Exclusions.AddExclusion(r.Context(), panelUserID, req.Value, req.Message)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ex)
}

func (s *Server) handleGetExclusion(w http.ResponseWriter, r *http.Request) {
	no, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ex, err := s.svc.Exclusions.Exclusion(r.Context(), no)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if ex == nil {
		http.Error(w, "exclusion not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, ex)
}

func (s *Server) handleUpdateExclusion(w http.ResponseWriter, r *http.Request) {
	no, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req exclusionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Exclusions.PanelUpdateExclusion(r.Context(), no, req.Value, req.Message); err != nil {
		s.serviceError(w, err)
		return
	}
	s.handleGetExclusion(w, r)
}

func (s *Server) handleDeleteExclusion(w http.ResponseWriter, r *http.Request) {
	no, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Exclusions.DeleteExclusion(r.Context(), no, panelUserID, true); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.svc.Shop.PendingOrders(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	order, err := s.svc.Shop.Order(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if order == nil {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Shop.CompleteOrder(r.Context(), id); err != nil {
		s.serviceError(w, err)
		return
	}
	s.handleGetOrder(w, r)
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req orderStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Shop.UpdateOrderStatus(r.Context(), id, models.OrderStatus(req.Status)); err != nil {
		s.serviceError(w, err)
		return
	}
	s.handleGetOrder(w, r)
}

func (s *Server) respondUser(w http.ResponseWriter, r *http.Request, id int64) {
	user, err := s.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="lookupbot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.badRequest(w, err)
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// serviceError maps domain sentinels to status codes.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrRoleNotFound),
		errors.Is(err, service.ErrExclusionNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrUnknownItem):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrDuplicateValue),
		errors.Is(err, service.ErrOrderCompleted),
		errors.Is(err, service.ErrSlotNotEmpty),
		errors.Is(err, service.ErrSlotEmpty):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInsufficientCredits),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidValue),
		errors.Is(err, service.ErrInvalidDuration):
		s.badRequest(w, err)
	default:
		s.internalError(w, err)
	}
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func queryInt(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
