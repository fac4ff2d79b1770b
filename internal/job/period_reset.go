package job

import (
	"context"
	"fmt"
	"time"

	"qrcollect/internal/config"
	"qrcollect/internal/logger"
	"qrcollect/internal/model"
	"qrcollect/internal/service"

	"github.com/robfig/cron/v3"
)

// CounterResetter 由 service.AllocatorService 实现
type CounterResetter interface {
	ResetPeriodCounters(ctx context.Context, scope model.ResetScope, trigger string) (int64, error)
}

// PeriodResetJob 按 cron 表达式定时清零收款码计数，默认每天零点
//
// 管理后台的手动重置始终可用，与定时任务互不影响。
type PeriodResetJob struct {
	cron     *cron.Cron
	resetter CounterResetter
	scope    model.ResetScope
	spec     string
}

func NewPeriodResetJob(cfg *config.BusinessConfig, resetter CounterResetter) (*PeriodResetJob, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("加载时区失败: %w", err)
		}
		loc = l
	}

	scope, err := service.ParseResetScope(cfg.ResetScope, 0)
	if err != nil {
		return nil, err
	}
	if scope.Kind == model.ResetSingle {
		return nil, fmt.Errorf("定时重置不支持单个收款码")
	}

	j := &PeriodResetJob{
		cron:     cron.New(cron.WithLocation(loc)),
		resetter: resetter,
		scope:    scope,
		spec:     cfg.ResetCron,
	}
	if _, err := j.cron.AddFunc(cfg.ResetCron, j.run); err != nil {
		return nil, fmt.Errorf("解析 reset_cron 失败: %w", err)
	}
	return j, nil
}

func (j *PeriodResetJob) Start(ctx context.Context) {
	logger.Infow("[PeriodResetJob] 定时重置任务启动", "cron", j.spec, "scope", j.scope.Kind)
	j.cron.Start()
	<-ctx.Done()
	j.Stop()
}

// Stop 等待正在执行的重置完成
func (j *PeriodResetJob) Stop() {
	<-j.cron.Stop().Done()
	logger.Infow("[PeriodResetJob] 任务停止")
}

func (j *PeriodResetJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := j.resetter.ResetPeriodCounters(ctx, j.scope, service.ResetTriggerScheduled); err != nil {
		logger.Errorw("[PeriodResetJob] 重置计数失败", "error", err)
	}
}
