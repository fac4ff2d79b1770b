package job

import (
	"context"
	"time"

	"qrcollect/internal/config"
	"qrcollect/internal/logger"
	"qrcollect/internal/metrics"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"gorm.io/gorm"
)

// MessageSender 消息投递，由 mq.Producer 实现
type MessageSender interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 轮询本地消息表，把工单事件投递到 Kafka
//
// 投递成功后标记 SENT；失败累加重试次数，达到 business.max_retry_count 后标记 FAILED。
// 同一批内按 id 顺序串行发送，某条失败不影响后续消息。
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	sender     MessageSender
	maxRetry   int
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, sender MessageSender) *OutboxSender {
	maxRetry := cfg.Business.MaxRetryCount
	if maxRetry <= 0 {
		maxRetry = 1
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		sender:     sender,
		maxRetry:   maxRetry,
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logger.Infow("[OutboxSender] 消息发送任务启动", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infow("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logger.Infow("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
			s.refreshBacklog(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 处理一批待投递消息，返回成功条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		logger.Errorw("[OutboxSender] 查询消息失败", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			logger.Errorw("[OutboxSender] 更新消息状态失败", "id", msg.ID, "error", updateErr)
			return false
		}
		logger.Debugw("[OutboxSender] 消息发送成功", "id", msg.ID, "topic", msg.Topic, "event", msg.EventType, "key", msg.MessageKey)
		return true
	}

	logger.Warnw("[OutboxSender] 消息发送失败", "id", msg.ID, "retry", msg.RetryCount+1, "error", err)

	if err := s.outboxRepo.RecordFailure(ctx, msg, s.maxRetry); err != nil {
		logger.Errorw("[OutboxSender] 记录失败次数失败", "id", msg.ID, "error", err)
		return false
	}
	if msg.RetryCount+1 >= s.maxRetry {
		logger.Errorw("[OutboxSender] 消息超过最大重试次数，标记为失败", "id", msg.ID, "event", msg.EventType)
	}
	return false
}

// refreshBacklog 更新待发送与已放弃消息数
func (s *OutboxSender) refreshBacklog(ctx context.Context) {
	for _, status := range []string{model.OutboxStatusPending, model.OutboxStatusFailed} {
		n, err := s.outboxRepo.CountByStatus(ctx, status)
		if err != nil {
			logger.Warnw("[OutboxSender] 统计消息失败", "status", status, "error", err)
			continue
		}
		metrics.OutboxMessages.WithLabelValues(status).Set(float64(n))
	}
}
