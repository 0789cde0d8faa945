package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Sender delivers a text message to one chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type BroadcastResult struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// BroadcastService sends announcements in batches, pausing between batches
// and pacing individual messages with a token bucket.
type BroadcastService struct {
	users     *UserService
	sender    Sender
	batchSize int
	pause     time.Duration
	perSecond float64
	log       *slog.Logger
}

func NewBroadcastService(users *UserService, sender Sender, batchSize int, pause time.Duration, perSecond float64, log *slog.Logger) *BroadcastService {
	if batchSize <= 0 {
		batchSize = 500
	}
	if perSecond <= 0 {
		perSecond = 25
	}
	return &BroadcastService{users: users, sender: sender, batchSize: batchSize, pause: pause, perSecond: perSecond, log: log}
}

// Recipients resolves the target audience. roleID 0 means every user.
func (s *BroadcastService) Recipients(ctx context.Context, roleID int64) ([]int64, error) {
	if roleID == 0 {
		return s.users.IDs(ctx)
	}
	return s.users.IDsByRole(ctx, roleID)
}

// Send delivers text to ids and stops early when ctx is cancelled.
func (s *BroadcastService) Send(ctx context.Context, ids []int64, text string) (BroadcastResult, error) {
	res := BroadcastResult{Total: len(ids)}
	limiter := rate.NewLimiter(rate.Limit(s.perSecond), 1)

	for start := 0; start < len(ids); start += s.batchSize {
		if start > 0 && s.pause > 0 {
			select {
			case <-time.After(s.pause):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			if err := limiter.Wait(ctx); err != nil {
				return res, err
			}
			if err := s.sender.SendText(ctx, id, text); err != nil {
				s.log.Warn("broadcast send failed", "user", id, "err", err)
				res.Failed++
				continue
			}
			res.Sent++
		}
		s.log.Info("broadcast batch sent", "done", end, "total", len(ids))
	}
	return res, nil
}
