package handler

import (
	"strconv"
	"strings"

	"qrcollect/internal/repository"
	"qrcollect/internal/service"
	"qrcollect/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ============================================================
// 登录
// ============================================================

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login 管理员登录
// POST /api/v1/admin/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	token, expiresAt, err := h.auth.Login(req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// ============================================================
// 工单
// ============================================================

type CreateOrderRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	BusinessRef string          `json:"business_ref" binding:"required"`
	CreatorName string          `json:"creator_name"`
}

// CreateOrder 创建收款工单，返回客户支付链接
// POST /api/v1/admin/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), &service.CreateOrderRequest{
		Amount:      req.Amount,
		BusinessRef: req.BusinessRef,
		CreatorName: req.CreatorName,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 工单列表
// GET /api/v1/admin/orders?filter=all|pending|completed|remitted|unpaid&keyword=&page=1&page_size=20
func (h *Handler) ListOrders(c *gin.Context) {
	f := repository.ListFilter{
		Filter:   c.DefaultQuery("filter", repository.OrderFilterAll),
		Keyword:  c.Query("keyword"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	orders, total, err := h.orders.ListOrders(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	response.SuccessPage(c, orders, total, f.Page, f.PageSize)
}

// GetOrder 工单详情
// GET /api/v1/admin/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

// ApproveOrder 审核通过
// POST /api/v1/admin/orders/:id/approve
func (h *Handler) ApproveOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	order, err := h.reviews.Approve(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

type RemitRequest struct {
	RemitAmount decimal.Decimal `json:"remit_amount"`
}

// RemitOrder 确认回款
// POST /api/v1/admin/orders/:id/remit
func (h *Handler) RemitOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req RemitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.reviews.Remit(c.Request.Context(), id, req.RemitAmount)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

type OverrideRequest struct {
	Status string `json:"status" binding:"required"`
	IsPaid *bool  `json:"is_paid"`
	Reason string `json:"reason" binding:"required"`
}

// OverrideOrder 人工修改工单状态
// POST /api/v1/admin/orders/:id/override
func (h *Handler) OverrideOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.reviews.Override(c.Request.Context(), id, &service.OverrideRequest{
		Status: req.Status,
		IsPaid: req.IsPaid,
		Reason: req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

// ============================================================
// 收款码
// ============================================================

// CreateQRCode 添加收款码
// POST /api/v1/admin/qrcodes  multipart/form-data: name, group_id, daily_limit, image
func (h *Handler) CreateQRCode(c *gin.Context) {
	limit, err := strconv.Atoi(strings.TrimSpace(c.PostForm("daily_limit")))
	if err != nil {
		response.ParamError(c, "daily_limit 参数错误")
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		writeError(c, service.ErrQRCodeImageMissing)
		return
	}
	file, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer file.Close()

	qr, err := h.qrcodes.Create(c.Request.Context(), &service.CreateQRCodeRequest{
		Name:       c.PostForm("name"),
		GroupID:    c.PostForm("group_id"),
		DailyLimit: limit,
		ImageName:  fh.Filename,
		Image:      file,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, qr)
}

// ListQRCodes 收款码列表
// GET /api/v1/admin/qrcodes?group=alipay
func (h *Handler) ListQRCodes(c *gin.Context) {
	qrs, err := h.qrcodes.List(c.Request.Context(), c.Query("group"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, qrs)
}

// GetQRCode 收款码详情，含累计使用次数
// GET /api/v1/admin/qrcodes/:id
func (h *Handler) GetQRCode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	qr, err := h.qrcodes.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, qr)
}

type UpdateQRCodeRequest struct {
	Name       *string `json:"name"`
	GroupID    *string `json:"group_id"`
	DailyLimit *int    `json:"daily_limit"`
}

// UpdateQRCode 修改收款码
// PUT /api/v1/admin/qrcodes/:id
func (h *Handler) UpdateQRCode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateQRCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	qr, err := h.qrcodes.Update(c.Request.Context(), id, &service.UpdateQRCodeRequest{
		Name:       req.Name,
		GroupID:    req.GroupID,
		DailyLimit: req.DailyLimit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, qr)
}

// ToggleQRCode 启用/停用收款码
// POST /api/v1/admin/qrcodes/:id/toggle
func (h *Handler) ToggleQRCode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	qr, err := h.qrcodes.ToggleStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, qr)
}

// ResetQRCode 清零单个收款码计数
// POST /api/v1/admin/qrcodes/:id/reset
func (h *Handler) ResetQRCode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.qrcodes.Reset(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

type ResetRequest struct {
	Scope string `json:"scope"`
}

// ResetQRCodes 批量清零计数
// POST /api/v1/admin/qrcodes/reset  {"scope": "active" | "all"}
func (h *Handler) ResetQRCodes(c *gin.Context) {
	var req ResetRequest
	// 允许空 body，默认 active
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}
	n, err := h.qrcodes.ResetAll(c.Request.Context(), req.Scope)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"affected": n})
}

// DeleteQRCode 删除收款码
// DELETE /api/v1/admin/qrcodes/:id
func (h *Handler) DeleteQRCode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.qrcodes.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListChannels 通道配置
// GET /api/v1/admin/channels
func (h *Handler) ListChannels(c *gin.Context) {
	response.Success(c, h.cfg.Channels)
}

// ============================================================
// 黑名单
// ============================================================

type BanRequest struct {
	IP     string `json:"ip" binding:"required"`
	Reason string `json:"reason"`
}

// BanIP POST /api/v1/admin/blacklist
func (h *Handler) BanIP(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.blacklist.Ban(c.Request.Context(), req.IP, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListBlacklist GET /api/v1/admin/blacklist
func (h *Handler) ListBlacklist(c *gin.Context) {
	entries, err := h.blacklist.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entries)
}

// UnbanIP DELETE /api/v1/admin/blacklist/:ip
func (h *Handler) UnbanIP(c *gin.Context) {
	if err := h.blacklist.Unban(c.Request.Context(), c.Param("ip")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ============================================================
// 客服
// ============================================================

type AddStaffRequest struct {
	Name string `json:"name" binding:"required"`
}

// AddStaff POST /api/v1/admin/staff
func (h *Handler) AddStaff(c *gin.Context) {
	var req AddStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	staff, err := h.staff.Add(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, staff)
}

// ListStaff GET /api/v1/admin/staff
func (h *Handler) ListStaff(c *gin.Context) {
	staff, err := h.staff.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, staff)
}

// DeleteStaff DELETE /api/v1/admin/staff/:id
func (h *Handler) DeleteStaff(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.staff.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}
