package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"qrcollect/internal/config"
	"qrcollect/internal/infrastructure/database"
	"qrcollect/internal/infrastructure/lock"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memStorage struct {
	mu    sync.Mutex
	saved []string
}

func (m *memStorage) Save(_ context.Context, scene, filename string, r io.Reader) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := fmt.Sprintf("/uploads/%s/%d-%s", scene, len(m.saved), filename)
	m.saved = append(m.saved, url)
	return url, nil
}

type captchaFunc func(id, answer string) error

func (f captchaFunc) Verify(id, answer string) error { return f(id, answer) }

const testIP = "10.0.0.8"

type testEnv struct {
	db        *gorm.DB
	cfg       *config.Config
	clock     *testClock
	storage   *memStorage
	allocator *AllocatorService
	orders    *OrderService
	payments  *PaymentService
	reviews   *ReviewService
	qrcodes   *QRCodeService
	blacklist *BlacklistService
	staff     *StaffService
	qrRepo    *repository.QRCodeRepository
}

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

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{PublicBaseURL: "https://pay.example.com/"},
		Kafka: config.KafkaConfig{
			Enabled: true,
			Topic:   config.KafkaTopicConfig{OrderEvent: "qrcollect.order_event"},
		},
		Channels: []config.ChannelConfig{
			{ID: "alipay", Name: "支付宝", Hint: "alipay hint", Dual: true},
			{ID: "wechat", Name: "微信", Hint: "wechat hint", Dual: true},
			{ID: "usdt", Name: "USDT", Hint: "usdt hint"},
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithCaptcha(t, captchaFunc(func(string, string) error { return nil }))
}

func newTestEnvWithCaptcha(t *testing.T, captcha CaptchaVerifier) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	cfg := testConfig()
	clock := &testClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := &memStorage{}

	alloc := NewAllocatorService(db, cfg)
	alloc.now = clock.Now
	blacklist := NewBlacklistService(db)

	orders := NewOrderService(db, cfg)
	orders.now = clock.Now
	payments := NewPaymentService(db, cfg, alloc, blacklist, captcha, store, lock.NewMemoryFactory())
	payments.now = clock.Now
	reviews := NewReviewService(db, cfg)
	reviews.now = clock.Now

	return &testEnv{
		db:        db,
		cfg:       cfg,
		clock:     clock,
		storage:   store,
		allocator: alloc,
		orders:    orders,
		payments:  payments,
		reviews:   reviews,
		qrcodes:   NewQRCodeService(db, cfg, alloc, store),
		blacklist: blacklist,
		staff:     NewStaffService(db),
		qrRepo:    repository.NewQRCodeRepository(db),
	}
}

func (e *testEnv) seedQR(t *testing.T, name, group string, usage, limit int, last *time.Time) *model.QRCode {
	t.Helper()
	qr := &model.QRCode{
		Name:           name,
		GroupID:        group,
		ImageURL:       "/uploads/qrcode/" + name + ".png",
		DailyLimit:     limit,
		UsageCount:     usage,
		Status:         model.QRCodeStatusActive,
		LastSelectedAt: last,
	}
	require.NoError(t, e.qrRepo.Create(context.Background(), qr))
	return qr
}

func (e *testEnv) qr(t *testing.T, id int64) *model.QRCode {
	t.Helper()
	qr, err := e.qrRepo.GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return qr
}

func (e *testEnv) newOrder(t *testing.T, amount string) *model.Order {
	t.Helper()
	detail, err := e.orders.CreateOrder(context.Background(), &CreateOrderRequest{
		Amount:      decimal.RequireFromString(amount),
		BusinessRef: "ref-" + amount,
	})
	require.NoError(t, err)
	return detail.Order
}

func (e *testEnv) order(t *testing.T, id int64) *model.Order {
	t.Helper()
	order, err := repository.NewOrderRepository(e.db).GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return order
}

func (e *testEnv) submitRequest(order *model.Order) *SubmitRequest {
	return &SubmitRequest{
		Token:          order.Token,
		ClientIP:       testIP,
		CaptchaID:      "cid",
		CaptchaCode:    "7",
		ClientAccount:  "buyer@example.com",
		ClientNickname: "买家",
		ScreenshotName: "pay.png",
		Screenshot:     strings.NewReader("png"),
	}
}

func (e *testEnv) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Where(query, args...).Count(&n).Error)
	return n
}
