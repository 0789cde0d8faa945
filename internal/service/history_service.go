package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

// Archiver stores history entries beyond the bounded in-document logs.
type Archiver interface {
	ArchiveQuery(ctx context.Context, entry models.QueryEntry) error
	ArchiveError(ctx context.Context, entry models.ErrorEntry) error
}

type Period string

const (
	PeriodAll       Period = ""
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodWeek      Period = "week"
)

type HistoryFilter struct {
	Service string
	UserID  *int64
	Period  Period
	Page    int
	PerPage int
}

// StatsReport is a read-only snapshot of the aggregate counters.
type StatsReport struct {
	Stats        models.Stats     `json:"stats"`
	TotalUsers   int              `json:"total_users"`
	PopularTools []ToolUsage      `json:"popular_tools"`
	DailyStats   map[string]int64 `json:"daily_stats"`
}

type ToolUsage struct {
	Service string `json:"service"`
	Count   int    `json:"count"`
}

type HistoryService struct {
	store      *database.Store
	archive    Archiver
	errorLimit int
	now        Clock
	log        *slog.Logger
}

// NewHistoryService builds the service; archive may be nil.
func NewHistoryService(store *database.Store, archive Archiver, errorLimit int, now Clock, log *slog.Logger) *HistoryService {
	if errorLimit <= 0 {
		errorLimit = 50
	}
	return &HistoryService{store: store, archive: archive, errorLimit: errorLimit, now: now.orDefault(), log: log}
}

// Query returns matching history entries, newest first, and the total number
// of matches before pagination.
func (s *HistoryService) Query(ctx context.Context, f HistoryFilter) ([]models.QueryEntry, int, error) {
	from, to, err := s.periodBounds(f.Period)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]models.QueryEntry, 0)
	err = s.store.View(ctx, func(doc *models.Document) error {
		for _, e := range doc.QueryHistory {
			if f.Service != "" && e.Service != f.Service {
				continue
			}
			if f.UserID != nil && e.UserID != *f.UserID {
				continue
			}
			if !from.IsZero() && (e.Timestamp.Before(from) || !e.Timestamp.Before(to)) {
				continue
			}
			matched = append(matched, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return paginate(matched, f.Page, f.PerPage), len(matched), nil
}

func (s *HistoryService) periodBounds(p Period) (time.Time, time.Time, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch p {
	case PeriodAll:
		return time.Time{}, time.Time{}, nil
	case PeriodToday:
		return start, start.AddDate(0, 0, 1), nil
	case PeriodYesterday:
		return start.AddDate(0, 0, -1), start, nil
	case PeriodWeek:
		return start.AddDate(0, 0, -6), start.AddDate(0, 0, 1), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", p)
	}
}

// LogError records err in the bounded error log and returns its id.
func (s *HistoryService) LogError(ctx context.Context, cause error, where string) (string, error) {
	entry := models.ErrorEntry{
		ID:        ErrorID(cause),
		Message:   cause.Error(),
		Context:   where,
		Timestamp: s.now(),
	}
	err := s.store.Update(ctx, func(doc *models.Document) error {
		doc.Analytics.ErrorLogs = appendBounded(doc.Analytics.ErrorLogs, entry, s.errorLimit)
		return nil
	})
	if err != nil {
		return entry.ID, err
	}
	if s.archive != nil {
		if err := s.archive.ArchiveError(ctx, entry); err != nil {
			s.log.Warn("archive error entry", "error_id", entry.ID, "err", err)
		}
	}
	return entry.ID, nil
}

// Errors returns the error log, newest first.
func (s *HistoryService) Errors(ctx context.Context) ([]models.ErrorEntry, error) {
	var out []models.ErrorEntry
	err := s.store.View(ctx, func(doc *models.Document) error {
		out = make([]models.ErrorEntry, 0, len(doc.Analytics.ErrorLogs))
		for i := len(doc.Analytics.ErrorLogs) - 1; i >= 0; i-- {
			out = append(out, doc.Analytics.ErrorLogs[i])
		}
		return nil
	})
	return out, err
}

func (s *HistoryService) ClearErrors(ctx context.Context) error {
	return s.store.Update(ctx, func(doc *models.Document) error {
		doc.Analytics.ErrorLogs = make([]models.ErrorEntry, 0)
		return nil
	})
}

// RecordOutcome counts a finished lookup as successful or failed.
func (s *HistoryService) RecordOutcome(ctx context.Context, success bool) error {
	return s.store.Update(ctx, func(doc *models.Document) error {
		if success {
			doc.Stats.SuccessfulRequests++
		} else {
			doc.Stats.FailedRequests++
		}
		return nil
	})
}

// ArchiveQuery forwards a history entry to the archive when one is set.
func (s *HistoryService) ArchiveQuery(ctx context.Context, entry models.QueryEntry) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveQuery(ctx, entry); err != nil {
		s.log.Warn("archive query entry", "user", entry.UserID, "err", err)
	}
}

func (s *HistoryService) Stats(ctx context.Context) (StatsReport, error) {
	var report StatsReport
	err := s.store.View(ctx, func(doc *models.Document) error {
		report.Stats = doc.Stats
		report.TotalUsers = len(doc.Users)
		report.PopularTools = make([]ToolUsage, 0, len(doc.Analytics.PopularTools))
		for svc, n := range doc.Analytics.PopularTools {
			report.PopularTools = append(report.PopularTools, ToolUsage{Service: svc, Count: n})
		}
		report.DailyStats = make(map[string]int64, len(doc.Analytics.DailyStats))
		for day, n := range doc.Analytics.DailyStats {
			report.DailyStats[day] = n
		}
		return nil
	})
	sort.Slice(report.PopularTools, func(i, j int) bool {
		if report.PopularTools[i].Count != report.PopularTools[j].Count {
			return report.PopularTools[i].Count > report.PopularTools[j].Count
		}
		return report.PopularTools[i].Service < report.PopularTools[j].Service
	})
	return report, err
}
