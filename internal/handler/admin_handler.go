package handler

import (
	"ethpoint/internal/service"
	"ethpoint/pkg/response"

	"github.com/gin-gonic/gin"
)

type UpdateAccountRequest struct {
	PlanID         *string `json:"plan_id"`
	Balance        *int64  `json:"balance"`
	QuotaRemaining *int64  `json:"quota_remaining"`
	CashBalance    *int64  `json:"cash_balance"`
	Role           *string `json:"role"`
}

type TransitionPaymentRequest struct {
	Status               string  `json:"status"`
	TransactionReference *string `json:"transaction_reference"`
	Notes                *string `json:"notes"`
}

// AdminListUsers GET /api/admin/users?search=&page=&page_size=
func (h *Handler) AdminListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)
	users, total, err := h.adminService.ListAccounts(c.Request.Context(), c.Query("search"), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"users": users,
		"total": total,
	})
}

// AdminGetUser GET /api/admin/users/:id
func (h *Handler) AdminGetUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.adminService.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, user)
}

// AdminUpdateUser PATCH /api/admin/users/:id
func (h *Handler) AdminUpdateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Invalid request body.")
		return
	}

	user, err := h.adminService.UpdateAccount(c.Request.Context(), id, service.AccountPatch{
		PlanID:         req.PlanID,
		Balance:        req.Balance,
		QuotaRemaining: req.QuotaRemaining,
		CashBalance:    req.CashBalance,
		Role:           req.Role,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"user": user})
}

// AdminListUserTransactions GET /api/admin/users/:id/transactions
func (h *Handler) AdminListUserTransactions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	transactions, total, err := h.adminService.Transactions(c.Request.Context(), id, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"transactions": transactions,
		"total":        total,
	})
}

// AdminListPayments GET /api/admin/payments?status=&page=&page_size=
func (h *Handler) AdminListPayments(c *gin.Context) {
	page, pageSize := pageParams(c)
	payments, total, err := h.paymentService.ListRequests(c.Request.Context(), service.PaymentFilter{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"payments": payments,
		"total":    total,
	})
}

// AdminUpdatePayment PATCH /api/admin/payments/:payment_no
func (h *Handler) AdminUpdatePayment(c *gin.Context) {
	var req TransitionPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Invalid request body.")
		return
	}

	payment, err := h.paymentService.TransitionRequest(c.Request.Context(), c.Param("payment_no"), service.TransitionInput{
		Status:               req.Status,
		TransactionReference: req.TransactionReference,
		Notes:                req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"payment": payment})
}
