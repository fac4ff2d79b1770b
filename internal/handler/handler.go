package handler

import (
	"errors"
	"strconv"

	"qrcollect/internal/allocator"
	"qrcollect/internal/config"
	"qrcollect/internal/infrastructure/lock"
	"qrcollect/internal/infrastructure/storage"
	"qrcollect/internal/logger"
	"qrcollect/internal/repository"
	"qrcollect/internal/service"
	"qrcollect/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps 构建处理器所需的外部依赖
type Deps struct {
	DB      *gorm.DB
	Config  *config.Config
	Storage storage.ObjectStorage
	Locks   lock.Factory
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg       *config.Config
	auth      *service.AuthService
	captcha   *service.CaptchaService
	allocator *service.AllocatorService
	orders    *service.OrderService
	payments  *service.PaymentService
	reviews   *service.ReviewService
	qrcodes   *service.QRCodeService
	blacklist *service.BlacklistService
	staff     *service.StaffService
}

// NewHandler 创建处理器实例
func NewHandler(deps Deps) (*Handler, error) {
	cfg := deps.Config
	auth, err := service.NewAuthService(cfg.Auth)
	if err != nil {
		return nil, err
	}

	alloc := service.NewAllocatorService(deps.DB, cfg)
	blacklist := service.NewBlacklistService(deps.DB)
	captcha := service.NewCaptchaService(cfg.Captcha)

	return &Handler{
		cfg:       cfg,
		auth:      auth,
		captcha:   captcha,
		allocator: alloc,
		orders:    service.NewOrderService(deps.DB, cfg),
		payments:  service.NewPaymentService(deps.DB, cfg, alloc, blacklist, captcha, deps.Storage, deps.Locks),
		reviews:   service.NewReviewService(deps.DB, cfg),
		qrcodes:   service.NewQRCodeService(deps.DB, cfg, alloc, deps.Storage),
		blacklist: blacklist,
		staff:     service.NewStaffService(deps.DB),
	}, nil
}

// Allocator 供定时重置任务使用
func (h *Handler) Allocator() *service.AllocatorService {
	return h.allocator
}

type errorCode struct {
	err  error
	code int
}

// errorCodes 业务错误到响应码的映射，按顺序匹配
var errorCodes = []errorCode{
	{repository.ErrOrderNotFound, response.CodeOrderNotFound},
	{repository.ErrOrderStatusInvalid, response.CodeOrderStatusInvalid},
	{repository.ErrOrderAlreadyPaid, response.CodeDuplicateSubmit},
	{repository.ErrQRCodeNotFound, response.CodeQRCodeNotFound},
	{repository.ErrStaffNotFound, response.CodeStaffNotFound},
	{repository.ErrStaffExists, response.CodeBusinessError},
	{repository.ErrBlacklistNotFound, response.CodeNotFound},
	{repository.ErrResetScopeInvalid, response.CodeParamError},

	{allocator.ErrInsufficientCapacity, response.CodeInsufficientCapacity},
	{allocator.ErrNoFailoverAvailable, response.CodeNoFailoverAvailable},
	{allocator.ErrCommitConflict, response.CodeCommitConflict},
	{allocator.ErrChannelNotFound, response.CodeChannelNotFound},
	{allocator.ErrInvalidArity, response.CodeServerError},

	{service.ErrIPBlacklisted, response.CodeIPBlacklisted},
	{service.ErrCaptchaInvalid, response.CodeCaptchaInvalid},
	{service.ErrCaptchaRequired, response.CodeCaptchaInvalid},
	{service.ErrChannelNotSelected, response.CodeChannelNotSelected},
	{service.ErrPasswordWrong, response.CodeUnauthorized},
	{service.ErrUnauthorized, response.CodeUnauthorized},

	{service.ErrAmountInvalid, response.CodeParamError},
	{service.ErrBusinessRefRequired, response.CodeParamError},
	{service.ErrOrderFilterInvalid, response.CodeParamError},
	{service.ErrOrderPageSizeTooLarge, response.CodeParamError},
	{service.ErrScreenshotRequired, response.CodeParamError},
	{service.ErrClientFieldRequired, response.CodeParamError},
	{service.ErrOverrideStatusInvalid, response.CodeParamError},
	{service.ErrOverrideReasonEmpty, response.CodeParamError},
	{service.ErrIPInvalid, response.CodeParamError},
	{service.ErrStaffNameRequired, response.CodeParamError},
	{service.ErrQRCodeNameRequired, response.CodeParamError},
	{service.ErrDailyLimitInvalid, response.CodeParamError},
	{service.ErrQRCodeImageMissing, response.CodeParamError},

	{storage.ErrFileTooLarge, response.CodeFileInvalid},
	{storage.ErrFileTypeInvalid, response.CodeFileInvalid},
	{storage.ErrFileEmpty, response.CodeFileInvalid},
	{storage.ErrFileExtInvalid, response.CodeFileInvalid},

	{lock.ErrLockFailed, response.CodeBusy},
}

// writeError 已知业务错误按映射返回原始提示，其余错误记录日志后返回通用提示
func writeError(c *gin.Context, err error) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			response.BusinessError(c, e.code, err.Error())
			return
		}
	}
	logger.Errorw("请求处理失败",
		"request_id", c.GetString(requestIDKey),
		"method", c.Request.Method,
		"path", c.FullPath(),
		"error", err,
	)
	response.ServerError(c, "服务器内部错误，请稍后重试")
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
