package repository

import (
	"context"
	"testing"
	"time"

	"qrcollect/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createOrder(t *testing.T, repo *OrderRepository, orderNo, ref string) *model.Order {
	t.Helper()
	order := &model.Order{
		Token:       uuid.NewString(),
		OrderNo:     orderNo,
		Amount:      decimal.RequireFromString("100.50"),
		BusinessRef: ref,
		Status:      model.OrderStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), nil, order))
	return order
}

func TestOrderSubmitOnlyOnce(t *testing.T) {
	repo := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	order := createOrder(t, repo, "20240501-1234", "ref-1")

	backup := int64(2)
	require.NoError(t, repo.AssignChannel(ctx, order.ID, ChannelAssignment{
		ChannelID: "alipay", ChannelName: "支付宝", PrimaryQRID: 1, BackupQRID: &backup,
	}))

	fields := SubmitFields{ActualQRID: 1, ClientAccount: "acc", PaidAt: time.Now()}
	require.NoError(t, repo.MarkSubmitted(ctx, nil, order.ID, fields))
	assert.ErrorIs(t, repo.MarkSubmitted(ctx, nil, order.ID, fields), ErrOrderAlreadyPaid)

	got, err := repo.GetByToken(ctx, order.Token)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, model.OrderStatusPendingReview, got.Status)
	require.NotNil(t, got.ActualQRID)
	assert.EqualValues(t, 1, *got.ActualQRID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("100.5")))

	// 已付款的工单不能再选择通道
	err = repo.AssignChannel(ctx, order.ID, ChannelAssignment{ChannelID: "usdt", PrimaryQRID: 3})
	assert.ErrorIs(t, err, ErrOrderStatusInvalid)
}

func TestOrderAssignChannelClearsFailover(t *testing.T) {
	repo := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	order := createOrder(t, repo, "20240501-1111", "ref")

	backup := int64(2)
	require.NoError(t, repo.AssignChannel(ctx, order.ID, ChannelAssignment{ChannelID: "alipay", PrimaryQRID: 1, BackupQRID: &backup}))
	require.NoError(t, repo.MarkFailover(ctx, nil, order.ID))
	require.NoError(t, repo.MarkFailover(ctx, nil, order.ID))

	got, err := repo.GetByID(ctx, nil, order.ID)
	require.NoError(t, err)
	assert.True(t, got.FailoverUsed)
	assert.EqualValues(t, 2, *got.PaidQRID())

	require.NoError(t, repo.AssignChannel(ctx, order.ID, ChannelAssignment{ChannelID: "usdt", PrimaryQRID: 3}))
	got, err = repo.GetByID(ctx, nil, order.ID)
	require.NoError(t, err)
	assert.False(t, got.FailoverUsed)
	assert.Nil(t, got.BackupQRID)
	assert.ErrorIs(t, repo.MarkFailover(ctx, nil, order.ID), ErrOrderStatusInvalid)
}

func TestOrderUpdateStatusTransitions(t *testing.T) {
	repo := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	order := createOrder(t, repo, "20240501-2222", "ref")

	err := repo.UpdateStatus(ctx, nil, order.ID, model.OrderStatusPending, model.OrderStatusCompleted, nil)
	assert.ErrorIs(t, err, ErrOrderStatusInvalid)

	// from 与当前状态不一致
	err = repo.UpdateStatus(ctx, nil, order.ID, model.OrderStatusPendingReview, model.OrderStatusCompleted, nil)
	assert.ErrorIs(t, err, ErrOrderStatusInvalid)

	require.NoError(t, repo.MarkSubmitted(ctx, nil, order.ID, SubmitFields{ActualQRID: 1, PaidAt: time.Now()}))
	now := time.Now()
	require.NoError(t, repo.UpdateStatus(ctx, nil, order.ID, model.OrderStatusPendingReview, model.OrderStatusCompleted,
		map[string]interface{}{"approved_at": now}))

	got, err := repo.GetByID(ctx, nil, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, got.Status)
	assert.NotNil(t, got.ApprovedAt)
}

func TestOrderOverride(t *testing.T) {
	repo := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	order := createOrder(t, repo, "20240501-3333", "ref")

	require.NoError(t, repo.Override(ctx, nil, order.ID, map[string]interface{}{
		"status":  model.OrderStatusRemitted,
		"is_paid": true,
	}))
	got, err := repo.GetByID(ctx, nil, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRemitted, got.Status)
	assert.True(t, got.IsPaid)

	err = repo.Override(ctx, nil, 9999, map[string]interface{}{"status": model.OrderStatusPending})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderList(t *testing.T) {
	repo := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	a := createOrder(t, repo, "20240501-1000", "tb-001")
	createOrder(t, repo, "20240501-2000", "tb-002")
	createOrder(t, repo, "20240502-3000", "jd-003")
	require.NoError(t, repo.MarkSubmitted(ctx, nil, a.ID, SubmitFields{ActualQRID: 1, ClientAccount: "zhangsan", PaidAt: time.Now()}))

	orders, total, err := repo.List(ctx, ListFilter{Filter: OrderFilterAll, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, orders, 2)
	assert.Equal(t, "20240502-3000", orders[0].OrderNo)

	_, total, err = repo.List(ctx, ListFilter{Filter: OrderFilterUnpaid, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	orders, total, err = repo.List(ctx, ListFilter{Filter: OrderFilterPending, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, a.ID, orders[0].ID)

	_, total, err = repo.List(ctx, ListFilter{Keyword: "tb-", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, total, err = repo.List(ctx, ListFilter{Keyword: "zhang", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, err = repo.GetByToken(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
