package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// DocumentVersion is written into every freshly initialised document.
const DocumentVersion = "2.3"

// DateLayout is the calendar-date format used for daily counters and grants.
const DateLayout = "2006-01-02"

// Document is the whole persisted state. It is stored as a single JSON file.
type Document struct {
	Version         string               `json:"version"`
	Users           map[int64]*User      `json:"users"`
	Roles           map[int64]*Role      `json:"roles"`
	Exclusions      map[int64]*Exclusion `json:"exclusions"`
	NextExclusionNo int64                `json:"next_exclusion_no"`
	Orders          map[int64]*Order     `json:"orders"`
	NextOrderID     int64                `json:"next_order_id"`
	Settings        Settings             `json:"settings"`
	Stats           Stats                `json:"stats"`
	Analytics       Analytics            `json:"analytics"`
	QueryHistory    []QueryEntry         `json:"query_history"`
}

type User struct {
	ID              int64           `json:"user_id"`
	Username        string          `json:"username"`
	Credits         decimal.Decimal `json:"credits"`
	JoinedAt        time.Time       `json:"joined_at"`
	Banned          bool            `json:"banned"`
	Referrer        *int64          `json:"referrer"`
	Referrals       []int64         `json:"referrals"`
	LastActive      time.Time       `json:"last_active"`
	TotalRequests   int             `json:"total_requests"`
	DailyRequests   int             `json:"daily_requests"`
	LastRequestDate string          `json:"last_request_date"`
	RoleID          int64           `json:"role_id"`
	CooldownUntil   *time.Time      `json:"cooldown_until"`
	RoleExpiryDate  *time.Time      `json:"role_expiry_date"`
	LastZCGrantDate string          `json:"last_zc_grant_date"`
}

type Role struct {
	ID             int64  `json:"role_id"`
	Name           string `json:"name"`
	RateLimit      int    `json:"rate_limit"`
	Cooldown       int    `json:"cooldown"`
	GrantsZCPerDay int    `json:"grants_zc_per_day"`
}

// ExclusionState tags a slot as reserved-but-empty or carrying a value.
type ExclusionState string

const (
	ExclusionEmpty  ExclusionState = "empty"
	ExclusionFilled ExclusionState = "filled"
)

type Exclusion struct {
	No           int64          `json:"exclusion_no"`
	Value        string         `json:"value"`
	Message      string         `json:"message"`
	AddedBy      int64          `json:"added_by"`
	AddedByAdmin bool           `json:"added_by_admin"`
	Timestamp    time.Time      `json:"timestamp"`
	SlotOwner    *int64         `json:"slot_owner"`
	State        ExclusionState `json:"state"`

	// LegacyPlaceholder is only read from documents written before State existed.
	LegacyPlaceholder *bool `json:"is_placeholder,omitempty"`
}

func (e *Exclusion) Filled() bool {
	return e.State == ExclusionFilled
}

// OwnedBy reports whether userID holds this slot.
func (e *Exclusion) OwnedBy(userID int64) bool {
	return e.SlotOwner != nil && *e.SlotOwner == userID
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID          int64       `json:"order_id"`
	UserID      int64       `json:"user_id"`
	ItemID      int         `json:"item_id"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at"`
}

// Settings are operational values that admins may change at runtime.
type Settings struct {
	MaintenanceMode   bool            `json:"maintenance_mode"`
	WelcomeBonus      decimal.Decimal `json:"welcome_bonus"`
	ReferralBonus     decimal.Decimal `json:"referral_bonus"`
	MaxRequestsPerDay int             `json:"max_requests_per_day"`
	CooldownPeriod    int             `json:"cooldown_period"`
}

type Stats struct {
	TotalRequests           int64           `json:"total_requests"`
	DailyRequests           int64           `json:"daily_requests"`
	SuccessfulRequests      int64           `json:"successful_requests"`
	FailedRequests          int64           `json:"failed_requests"`
	LastReset               string          `json:"last_reset"`
	PeakUsers               int             `json:"peak_users"`
	TotalCreditsDistributed decimal.Decimal `json:"total_credits_distributed"`
}

type Analytics struct {
	PopularTools map[string]int   `json:"popular_tools"`
	ErrorLogs    []ErrorEntry     `json:"error_logs"`
	DailyStats   map[string]int64 `json:"daily_stats"`
}

type QueryEntry struct {
	UserID    int64     `json:"user_id"`
	Service   string    `json:"service"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorEntry struct {
	ID        string    `json:"error_id"`
	Message   string    `json:"message"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}
