package handler

import (
	"qrcollect/internal/service"
	"qrcollect/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 客户支付页接口，均以工单 token 定位
// ============================================================

// ViewOrder 查看工单与可选通道
// GET /api/v1/pay/orders/:token
func (h *Handler) ViewOrder(c *gin.Context) {
	view, err := h.payments.ViewOrder(c.Request.Context(), c.Param("token"), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"order":           view,
		"captcha_enabled": h.captcha.Enabled(),
	})
}

// GetCaptcha 获取提交付款用的图片验证码
// GET /api/v1/pay/captcha
func (h *Handler) GetCaptcha(c *gin.Context) {
	challenge, err := h.captcha.Generate()
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, challenge)
}

type SelectChannelRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
}

// SelectChannel 选择支付通道
// POST /api/v1/pay/orders/:token/channel
func (h *Handler) SelectChannel(c *gin.Context) {
	var req SelectChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	view, err := h.payments.SelectChannel(c.Request.Context(), c.Param("token"), c.ClientIP(), req.ChannelID, c.GetString(requestIDKey))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, view)
}

// RequestFailover 切换备用收款码
// POST /api/v1/pay/orders/:token/failover
func (h *Handler) RequestFailover(c *gin.Context) {
	view, err := h.payments.RequestFailover(c.Request.Context(), c.Param("token"), c.ClientIP(), c.GetString(requestIDKey))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, view)
}

// SubmitPayment 上传付款截图
// POST /api/v1/pay/orders/:token/submit  multipart/form-data
func (h *Handler) SubmitPayment(c *gin.Context) {
	fh, err := c.FormFile("screenshot")
	if err != nil {
		writeError(c, service.ErrScreenshotRequired)
		return
	}
	file, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer file.Close()

	order, err := h.payments.Submit(c.Request.Context(), &service.SubmitRequest{
		Token:            c.Param("token"),
		ClientIP:         c.ClientIP(),
		RequestID:        c.GetString(requestIDKey),
		CaptchaID:        c.PostForm("captcha_id"),
		CaptchaCode:      c.PostForm("captcha_code"),
		ClientAccount:    c.PostForm("client_account"),
		ClientNickname:   c.PostForm("client_nickname"),
		ClientCredential: c.PostForm("client_credential"),
		ScreenshotName:   fh.Filename,
		Screenshot:       file,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_no": order.OrderNo,
		"status":   order.Status,
		"is_paid":  order.IsPaid,
		"paid_at":  order.PaidAt,
	})
}
