package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/models"
)

func TestShopService_CreateOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")

	_, err := env.shop.CreateOrder(ctx, 1, 999)
	assert.ErrorIs(t, err, ErrUnknownItem)
	_, err = env.shop.CreateOrder(ctx, 2, 1)
	assert.ErrorIs(t, err, ErrUserNotFound)

	first, err := env.shop.CreateOrder(ctx, 1, 1)
	require.NoError(t, err)
	second, err := env.shop.CreateOrder(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, models.OrderPending, first.Status)

	pending, err := env.shop.PendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, env.shop.UpdateOrderStatus(ctx, second.ID, models.OrderCancelled))
	pending, err = env.shop.PendingOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	missing, err := env.shop.Order(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.ErrorIs(t, env.shop.UpdateOrderStatus(ctx, 42, models.OrderCancelled), ErrOrderNotFound)
}

func TestShopService_CompleteOrderGrantsItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "0")

	pack, err := env.shop.CreateOrder(ctx, 1, 1)
	require.NoError(t, err)
	role, err := env.shop.CreateOrder(ctx, 1, 7)
	require.NoError(t, err)
	slot, err := env.shop.CreateOrder(ctx, 1, 10)
	require.NoError(t, err)

	require.NoError(t, env.shop.CompleteOrder(ctx, pack.ID))
	require.NoError(t, env.shop.CompleteOrder(ctx, role.ID))
	require.NoError(t, env.shop.CompleteOrder(ctx, slot.ID))

	u := env.user(1)
	assert.True(t, u.Credits.Equal(dec("10")), "got %s", u.Credits)
	assert.Equal(t, database.RoleBasic, u.RoleID)
	assert.Nil(t, u.RoleExpiryDate)

	slots, err := env.exclusions.ByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.False(t, slots[0].Filled())

	order, err := env.shop.Order(ctx, pack.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	require.NotNil(t, order.CompletedAt)

	err = env.shop.CompleteOrder(ctx, pack.ID)
	assert.ErrorIs(t, err, ErrOrderCompleted)
	assert.True(t, env.user(1).Credits.Equal(dec("10")))

	assert.ErrorIs(t, env.shop.CompleteOrder(ctx, 42), ErrOrderNotFound)
}

func TestShopService_MembershipCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		role    int64
		days    int
		want    string
		wantErr error
	}{
		{name: "basic two weeks", role: database.RoleBasic, days: 14, want: "280"},
		{name: "pro four weeks", role: database.RolePro, days: 28, want: "2450"},
		{name: "elite twelve weeks", role: database.RoleElite, days: 84, want: "33600"},
		{name: "free tier", role: database.RoleFree, days: 14, wantErr: ErrRoleNotPurchasable},
		{name: "odd duration", role: database.RoleBasic, days: 15, wantErr: ErrInvalidDuration},
		{name: "unknown role", role: 77, days: 14, wantErr: ErrRoleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.shop.MembershipCost(ctx, tt.role, tt.days)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}

	assert.Equal(t, []int{14, 28, 56, 84}, MembershipDurations())
}

func TestShopService_PurchaseMembershipExtendsActiveRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(1, "600")

	require.NoError(t, env.shop.PurchaseMembership(ctx, 1, database.RoleBasic, 14))
	u := env.user(1)
	assert.True(t, u.Credits.Equal(dec("320")), "got %s", u.Credits)
	assert.Equal(t, database.RoleBasic, u.RoleID)
	require.NotNil(t, u.RoleExpiryDate)
	assert.Equal(t, startTime.AddDate(0, 0, 14), *u.RoleExpiryDate)

	// The renewal first collects today's Basic grant of 10.
	require.NoError(t, env.shop.PurchaseMembership(ctx, 1, database.RoleBasic, 14))
	u = env.user(1)
	assert.True(t, u.Credits.Equal(dec("50")), "got %s", u.Credits)
	assert.Equal(t, startTime.AddDate(0, 0, 28), *u.RoleExpiryDate)

	err := env.shop.PurchaseMembership(ctx, 1, database.RolePro, 14)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, database.RoleBasic, env.user(1).RoleID)

	env.advance(30 * 24 * time.Hour)
	got, err := env.users.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, database.DefaultRoleID, got.RoleID)
}
