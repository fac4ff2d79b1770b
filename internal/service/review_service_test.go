package service

import (
	"context"
	"encoding/json"
	"testing"

	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedQR(t, "x", "usdt", 0, 5, nil)
	order := env.newOrder(t, "100")

	_, err := env.reviews.Approve(ctx, order.ID)
	assert.ErrorIs(t, err, repository.ErrOrderStatusInvalid)

	_, err = env.payments.SelectChannel(ctx, order.Token, testIP, "usdt", "")
	require.NoError(t, err)
	_, err = env.payments.Submit(ctx, env.submitRequest(order))
	require.NoError(t, err)

	_, err = env.reviews.Remit(ctx, order.ID, decimal.NewFromInt(95))
	assert.ErrorIs(t, err, repository.ErrOrderStatusInvalid)

	approved, err := env.reviews.Approve(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)

	_, err = env.reviews.Remit(ctx, order.ID, decimal.Zero)
	assert.ErrorIs(t, err, ErrAmountInvalid)

	remitted, err := env.reviews.Remit(ctx, order.ID, decimal.RequireFromString("95.5"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRemitted, remitted.Status)
	require.True(t, remitted.RemitAmount.Valid)
	assert.True(t, remitted.RemitAmount.Decimal.Equal(decimal.RequireFromString("95.5")))
	assert.NotNil(t, remitted.RemittedAt)

	_, err = env.reviews.Remit(ctx, order.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, repository.ErrOrderStatusInvalid)

	var events []string
	require.NoError(t, env.db.Model(&model.OutboxMessage{}).Order("id ASC").Pluck("event_type", &events).Error)
	assert.Equal(t, []string{model.OrderEventSubmitted, model.OrderEventApproved, model.OrderEventRemitted}, events)

	_, err = env.reviews.Approve(ctx, 9999)
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestOverrideHasNoUsageSideEffects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	x := env.seedQR(t, "x", "usdt", 2, 5, nil)
	order := env.newOrder(t, "100")
	_, err := env.payments.SelectChannel(ctx, order.Token, testIP, "usdt", "")
	require.NoError(t, err)

	paid := true
	got, err := env.reviews.Override(ctx, order.ID, &OverrideRequest{
		Status: model.OrderStatusCompleted,
		IsPaid: &paid,
		Reason: "客户线下已付款",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, got.Status)
	assert.True(t, got.IsPaid)

	assert.Equal(t, 2, env.qr(t, x.ID).UsageCount)
	assert.EqualValues(t, 0, env.count(t, &model.QRUsageRecord{}, "order_id = ?", order.ID))

	var msg model.OutboxMessage
	require.NoError(t, env.db.Where("event_type = ?", model.OrderEventOverridden).First(&msg).Error)
	var event OrderEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, model.OrderStatusCompleted, event.Status)
	assert.Equal(t, "客户线下已付款", event.Reason)

	// 改回待支付后客户不能提交，因为 is_paid 仍为 true
	_, err = env.reviews.Override(ctx, order.ID, &OverrideRequest{Status: model.OrderStatusPending, Reason: "误操作"})
	require.NoError(t, err)
	_, err = env.payments.Submit(ctx, env.submitRequest(order))
	assert.ErrorIs(t, err, repository.ErrOrderAlreadyPaid)
	assert.Equal(t, 2, env.qr(t, x.ID).UsageCount)

	_, err = env.reviews.Override(ctx, order.ID, &OverrideRequest{Status: "refunded", Reason: "x"})
	assert.ErrorIs(t, err, ErrOverrideStatusInvalid)
	_, err = env.reviews.Override(ctx, order.ID, &OverrideRequest{Status: model.OrderStatusPending})
	assert.ErrorIs(t, err, ErrOverrideReasonEmpty)
}

func TestEventsSkippedWhenKafkaDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Kafka.Enabled = false
	reviews := NewReviewService(env.db, env.cfg)
	ctx := context.Background()
	order := env.newOrder(t, "1")

	_, err := reviews.Override(ctx, order.ID, &OverrideRequest{Status: model.OrderStatusPendingReview, Reason: "test"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, env.count(t, &model.OutboxMessage{}, "1 = 1"))
}
