package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderEvent 工单变更事件，经 outbox 投递到 Kafka
type OrderEvent struct {
	Event     string          `json:"event"`
	OrderID   int64           `json:"order_id"`
	OrderNo   string          `json:"order_no"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	AccountID *int64          `json:"account_id,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	At        time.Time       `json:"at"`
}

// eventWriter 与业务变更同事务写入 outbox，Kafka 未启用时不写
type eventWriter struct {
	enabled    bool
	topic      string
	outboxRepo *repository.OutboxRepository
}

func (w *eventWriter) write(ctx context.Context, tx *gorm.DB, event OrderEvent) error {
	if !w.enabled {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := &model.OutboxMessage{
		// 同一工单的事件落在同一分区
		MessageKey: strconv.FormatInt(event.OrderID, 10),
		Topic:      w.topic,
		EventType:  event.Event,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := w.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

func newOrderEvent(event string, order *model.Order, status string, at time.Time) OrderEvent {
	return OrderEvent{
		Event:     event,
		OrderID:   order.ID,
		OrderNo:   order.OrderNo,
		Amount:    order.Amount,
		Status:    status,
		AccountID: order.ActualQRID,
		At:        at,
	}
}
