package service

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrRoleNotFound        = errors.New("role not found")
	ErrExclusionNotFound   = errors.New("exclusion not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnknownService      = errors.New("unknown or disabled service")
	ErrUnknownItem         = errors.New("unknown shop item")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDuplicateValue      = errors.New("exclusion value already exists")
	ErrInvalidValue        = errors.New("exclusion value is empty")
	ErrNotSlotOwner        = errors.New("not the owner of this slot")
	ErrSlotNotEmpty        = errors.New("slot is already filled")
	ErrSlotEmpty           = errors.New("slot is empty")
	ErrOrderCompleted      = errors.New("order already completed")
	ErrInvalidDuration     = errors.New("invalid membership duration")
	ErrRoleNotPurchasable  = errors.New("role cannot be purchased")
	ErrUserBanned          = errors.New("user is banned")
	ErrMaintenance         = errors.New("bot is under maintenance")
)

// RateLimitError is returned when a query is refused by the cooldown or the
// daily quota. Reason is safe to show to the user.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Reason)
}

// ErrorID derives a short opaque identifier from an error's text so that a
// message shown to a user can be matched with server logs.
func ErrorID(err error) string {
	if err == nil {
		return ""
	}
	sum := md5.Sum([]byte(err.Error()))
	return hex.EncodeToString(sum[:])[:8]
}

// Clock returns the current time. Tests replace it with a fixed source.
type Clock func() time.Time

func (c Clock) orDefault() Clock {
	if c == nil {
		return time.Now
	}
	return c
}
