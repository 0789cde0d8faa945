package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/shopspring/decimal"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/metrics"
	"github.com/digkill/TGLookupBot/internal/models"
)

// Lookuper calls an external lookup tool.
type Lookuper interface {
	Lookup(ctx context.Context, svc catalog.Service, input string) (map[string]any, error)
}

// QueryResult is what the chat layer formats for the user. When Excluded is
// set only Message is meaningful.
type QueryResult struct {
	Excluded bool
	Message  string
	Service  catalog.Service
	Data     map[string]any
	Charged  decimal.Decimal
}

// LookupError reports a failed external lookup. ID matches the entry written
// to the error log.
type LookupError struct {
	Service string
	ID      string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s: %v", e.Service, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// QueryService runs one inbound user query through the exclusion gate, the
// rate limiter, the affordability check, the lookup and the charge.
type QueryService struct {
	catalog    *catalog.Catalog
	users      *UserService
	credits    *CreditService
	exclusions *ExclusionService
	history    *HistoryService
	settings   *SettingsService
	lookup     Lookuper
	stats      statsd.ClientInterface
	now        Clock
	log        *slog.Logger

	// one query per user runs at a time
	mu       sync.Mutex
	inflight map[int64]struct{}
}

func NewQueryService(cat *catalog.Catalog, users *UserService, credits *CreditService, exclusions *ExclusionService, history *HistoryService, settings *SettingsService, lookup Lookuper, stats statsd.ClientInterface, now Clock, log *slog.Logger) *QueryService {
	if stats == nil {
		stats = &statsd.NoOpClient{}
	}
	return &QueryService{
		catalog:    cat,
		users:      users,
		credits:    credits,
		exclusions: exclusions,
		history:    history,
		settings:   settings,
		lookup:     lookup,
		stats:      stats,
		now:        now.orDefault(),
		log:        log,
		inflight:   make(map[int64]struct{}),
	}
}

func (s *QueryService) acquire(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[userID]; busy {
		return false
	}
	s.inflight[userID] = struct{}{}
	return true
}

func (s *QueryService) release(userID int64) {
	s.mu.Lock()
	delete(s.inflight, userID)
	s.mu.Unlock()
}

func (s *QueryService) Handle(ctx context.Context, userID int64, serviceKey, rawText string) (*QueryResult, error) {
	input := strings.TrimSpace(rawText)

	excl, err := s.exclusions.GetExclusion(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("check exclusion: %w", err)
	}
	if excl != nil {
		_ = s.stats.Incr("query.excluded", nil, 1)
		return &QueryResult{Excluded: true, Message: excl.Message}, nil
	}

	if !s.acquire(userID) {
		_ = s.stats.Incr("query.rate_limited", nil, 1)
		return nil, &RateLimitError{Reason: "Your previous request is still being processed."}
	}
	defer s.release(userID)

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Banned {
		return nil, ErrUserBanned
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if settings.MaintenanceMode && user.RoleID != database.RoleAdmin {
		return nil, ErrMaintenance
	}

	decision, err := s.users.CheckRateLimit(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check rate limit: %w", err)
	}
	if !decision.Allowed {
		_ = s.stats.Incr("query.rate_limited", nil, 1)
		return nil, &RateLimitError{Reason: decision.Reason, RetryAfter: decision.RetryAfter}
	}

	svc, ok := s.catalog.Service(serviceKey)
	if !ok || !svc.Enabled {
		return nil, ErrUnknownService
	}
	enough, err := s.credits.HasEnoughCredits(ctx, userID, svc.Key)
	if err != nil {
		return nil, fmt.Errorf("check credits: %w", err)
	}
	if !enough {
		return nil, ErrInsufficientCredits
	}

	tags := []string{metrics.Tag("service", svc.Key)}
	started := time.Now()
	data, lookupErr := s.lookup.Lookup(ctx, svc, input)
	_ = s.stats.Timing("lookup.latency", time.Since(started), tags, 1)
	if lookupErr != nil {
		id := s.recordFailure(ctx, svc, lookupErr, tags)
		return nil, &LookupError{Service: svc.Key, ID: id, Err: lookupErr}
	}

	if err := s.credits.DeductForService(ctx, userID, svc.Key, input); err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			return nil, ErrInsufficientCredits
		}
		return nil, err
	}
	if err := s.history.RecordOutcome(ctx, true); err != nil {
		s.log.Warn("record query outcome", "err", err)
	}
	s.history.ArchiveQuery(ctx, models.QueryEntry{UserID: userID, Service: svc.Key, Query: input, Timestamp: s.now()})
	_ = s.stats.Incr("query.completed", tags, 1)

	return &QueryResult{Service: svc, Data: data, Charged: svc.Price()}, nil
}

func (s *QueryService) recordFailure(ctx context.Context, svc catalog.Service, cause error, tags []string) string {
	_ = s.stats.Incr("query.failed", tags, 1)
	if err := s.history.RecordOutcome(ctx, false); err != nil {
		s.log.Warn("record query outcome", "err", err)
	}
	id, err := s.history.LogError(ctx, cause, "lookup:"+svc.Key)
	if err != nil {
		s.log.Warn("log lookup error", "err", err)
	}
	if id == "" {
		id = ErrorID(cause)
	}
	s.log.Error("lookup failed", "service", svc.Key, "error_id", id, "err", cause)
	return id
}
