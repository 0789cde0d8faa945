package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGLookupBot/internal/database"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []int64
	failOn map[int64]bool
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[chatID] {
		return errors.New("chat not found")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func TestBroadcastService_Recipients(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")
	env.newUser(2, "0")
	env.newUser(3, "0")
	require.NoError(t, env.users.SetBanned(ctx, 2, true))
	require.NoError(t, env.users.PromoteUser(ctx, 3, database.RolePro, 0))
	b := NewBroadcastService(env.users, &fakeSender{}, 2, 0, 1000, discardLogger())

	all, err := b.Recipients(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, all)

	pro, err := b.Recipients(ctx, database.RolePro)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, pro)
}

func TestBroadcastService_SendCountsFailures(t *testing.T) {
	sender := &fakeSender{failOn: map[int64]bool{4: true}}
	b := NewBroadcastService(nil, sender, 2, 0, 1000, discardLogger())

	res, err := b.Send(context.Background(), []int64{1, 2, 3, 4, 5}, "hello")
	require.NoError(t, err)
	assert.Equal(t, BroadcastResult{Total: 5, Sent: 4, Failed: 1}, res)
	assert.Equal(t, []int64{1, 2, 3, 5}, sender.sent)
}

func TestBroadcastService_SendStopsOnCancel(t *testing.T) {
	sender := &fakeSender{}
	b := NewBroadcastService(nil, sender, 2, 0, 1000, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := b.Send(ctx, []int64{1, 2, 3}, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Sent)
	assert.Empty(t, sender.sent)
}
