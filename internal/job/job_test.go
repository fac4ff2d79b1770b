package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"qrcollect/internal/config"
	"qrcollect/internal/infrastructure/database"
	"qrcollect/internal/infrastructure/mq"
	"qrcollect/internal/metrics"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"github.com/IBM/sarama/mocks"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func seedOutbox(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	repo := repository.NewOutboxRepository(db)
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Create(context.Background(), nil, &model.OutboxMessage{
			MessageKey: fmt.Sprintf("%d", i+1),
			Topic:      "qrcollect.order_event",
			EventType:  model.OrderEventSubmitted,
			Payload:    `{"event":"order.submitted"}`,
			Status:     model.OutboxStatusPending,
		}))
	}
}

func countStatus(t *testing.T, db *gorm.DB, status string) int64 {
	t.Helper()
	n, err := repository.NewOutboxRepository(db).CountByStatus(context.Background(), status)
	require.NoError(t, err)
	return n
}

func TestOutboxSenderDelivers(t *testing.T) {
	db := setupTestDB(t)
	seedOutbox(t, db, 2)

	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndSucceed()
	sp.ExpectSendMessageAndSucceed()
	producer := mq.NewProducer(sp)
	defer producer.Close()

	sender := NewOutboxSender(db, &config.Config{Business: config.BusinessConfig{MaxRetryCount: 3}}, producer)
	assert.Equal(t, 2, sender.processPendingMessages(context.Background()))
	assert.EqualValues(t, 2, countStatus(t, db, model.OutboxStatusSent))
	assert.EqualValues(t, 0, countStatus(t, db, model.OutboxStatusPending))
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	db := setupTestDB(t)
	seedOutbox(t, db, 1)

	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(errors.New("broker down"))
	sp.ExpectSendMessageAndFail(errors.New("broker down"))
	producer := mq.NewProducer(sp)
	defer producer.Close()

	sender := NewOutboxSender(db, &config.Config{Business: config.BusinessConfig{MaxRetryCount: 2}}, producer)
	ctx := context.Background()

	assert.Equal(t, 0, sender.processPendingMessages(ctx))
	assert.EqualValues(t, 1, countStatus(t, db, model.OutboxStatusPending))

	assert.Equal(t, 0, sender.processPendingMessages(ctx))
	assert.EqualValues(t, 1, countStatus(t, db, model.OutboxStatusFailed))

	sender.refreshBacklog(ctx)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.OutboxMessages.WithLabelValues(model.OutboxStatusPending)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OutboxMessages.WithLabelValues(model.OutboxStatusFailed)))

	// 已失败的消息不再投递
	assert.Equal(t, 0, sender.processPendingMessages(ctx))
}

type fakeResetter struct {
	mu     sync.Mutex
	scopes []model.ResetScope
}

func (f *fakeResetter) ResetPeriodCounters(_ context.Context, scope model.ResetScope, trigger string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, scope)
	return 1, nil
}

func TestPeriodResetJob(t *testing.T) {
	r := &fakeResetter{}
	j, err := NewPeriodResetJob(&config.BusinessConfig{ResetCron: "0 0 * * *", ResetScope: "all", Timezone: "UTC"}, r)
	require.NoError(t, err)
	require.Len(t, j.cron.Entries(), 1)

	j.run()
	require.Len(t, r.scopes, 1)
	assert.Equal(t, model.ResetAll, r.scopes[0].Kind)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	cancel()
	<-done
}

func TestPeriodResetJobRejectsBadConfig(t *testing.T) {
	r := &fakeResetter{}
	_, err := NewPeriodResetJob(&config.BusinessConfig{ResetCron: "every day"}, r)
	assert.Error(t, err)
	_, err = NewPeriodResetJob(&config.BusinessConfig{ResetCron: "0 0 * * *", Timezone: "Mars/Olympus"}, r)
	assert.Error(t, err)
	_, err = NewPeriodResetJob(&config.BusinessConfig{ResetCron: "0 0 * * *", ResetScope: "single"}, r)
	assert.Error(t, err)
}
