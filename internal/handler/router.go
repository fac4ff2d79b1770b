package handler

import (
	"net/http"
	"strings"

	"qrcollect/internal/config"
	"qrcollect/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode == gin.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	// 黑名单与工单 client_ip 都依赖 ClientIP，只有配置过的代理才能改写来源地址
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Warnw("trusted_proxies 配置无效，忽略转发头", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 上传的收款码与截图
	if prefix := strings.TrimRight(cfg.Storage.URLPrefix, "/"); prefix != "" {
		r.Static(prefix, cfg.Storage.Dir)
	}

	api := r.Group("/api/v1")
	{
		// 客户支付页
		pay := api.Group("/pay")
		{
			pay.GET("/captcha", h.GetCaptcha)
			pay.GET("/orders/:token", h.ViewOrder)
			pay.POST("/orders/:token/channel", h.SelectChannel)
			pay.POST("/orders/:token/failover", h.RequestFailover)
			pay.POST("/orders/:token/submit", h.SubmitPayment)
		}

		api.POST("/admin/login", h.Login)

		// 管理后台
		admin := api.Group("/admin", AdminAuthMiddleware(h.auth))
		{
			admin.POST("/orders", h.CreateOrder)
			admin.GET("/orders", h.ListOrders)
			admin.GET("/orders/:id", h.GetOrder)
			admin.POST("/orders/:id/approve", h.ApproveOrder)
			admin.POST("/orders/:id/remit", h.RemitOrder)
			admin.POST("/orders/:id/override", h.OverrideOrder)

			admin.POST("/qrcodes", h.CreateQRCode)
			admin.GET("/qrcodes", h.ListQRCodes)
			admin.POST("/qrcodes/reset", h.ResetQRCodes)
			admin.GET("/qrcodes/:id", h.GetQRCode)
			admin.PUT("/qrcodes/:id", h.UpdateQRCode)
			admin.POST("/qrcodes/:id/toggle", h.ToggleQRCode)
			admin.POST("/qrcodes/:id/reset", h.ResetQRCode)
			admin.DELETE("/qrcodes/:id", h.DeleteQRCode)

			admin.POST("/blacklist", h.BanIP)
			admin.GET("/blacklist", h.ListBlacklist)
			admin.DELETE("/blacklist/:ip", h.UnbanIP)

			admin.POST("/staff", h.AddStaff)
			admin.GET("/staff", h.ListStaff)
			admin.DELETE("/staff/:id", h.DeleteStaff)

			admin.GET("/channels", h.ListChannels)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
