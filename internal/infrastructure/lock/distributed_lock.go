package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 工单锁
// ============================================================================
//
// 同一张工单的“切换备用码”和“提交付款”必须串行执行：
//   客户连点两次提交 -> 两个请求都读到 is_paid=false -> 若不加锁，
//   只能依赖数据库条件更新兜底，第二个请求会白白上传一次截图。
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本比较 value 后删除，防止误删别人的锁
//
// ============================================================================

var ErrLockFailed = errors.New("系统繁忙，请稍后重试")

// Lock 互斥锁
type Lock interface {
	TryLock(ctx context.Context) (bool, error)
	Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error
	Unlock(ctx context.Context) error
}

// Factory 按 key 创建锁
type Factory interface {
	New(key, value string, expiration time.Duration) Lock
}

// RedisFactory 基于 Redis 的锁工厂，多实例部署时使用
type RedisFactory struct {
	client *redis.Client
}

func NewRedisFactory(client *redis.Client) *RedisFactory {
	return &RedisFactory{client: client}
}

func (f *RedisFactory) New(key, value string, expiration time.Duration) Lock {
	return NewDistributedLock(f.client, key, value, expiration)
}

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	return retryLock(ctx, l, retryInterval, maxRetries)
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Unlock 释放锁，value 不匹配时不做任何操作
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

func retryLock(ctx context.Context, l Lock, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// NewOrderLock 创建工单锁，value 使用请求 ID 便于追踪持有者
func NewOrderLock(f Factory, orderID int64, requestID string) Lock {
	return f.New(fmt.Sprintf("qrcollect:lock:order:%d", orderID), requestID, 30*time.Second)
}
