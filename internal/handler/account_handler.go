package handler

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"ethpoint/pkg/response"

	"github.com/gin-gonic/gin"
)

// TapRequest takes amount as a number or a numeric string.
type TapRequest struct {
	Amount json.RawMessage `json:"amount"`
}

type UpgradeRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type CryptoUpgradeRequest struct {
	PlanID     string `json:"plan_id" binding:"required"`
	CurrencyID string `json:"currency_id" binding:"required"`
}

type CashOutRequest struct {
	Amount int64 `json:"amount"`
}

// GetState GET /api/state
func (h *Handler) GetState(c *gin.Context) {
	state, err := h.accountService.State(c.Request.Context(), currentAccountID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, state)
}

// Tap POST /api/tap
func (h *Handler) Tap(c *gin.Context) {
	var req TapRequest
	// an unreadable body taps nothing
	_ = c.ShouldBindJSON(&req)

	state, err := h.accountService.Tap(c.Request.Context(), currentAccountID(c), tapAmount(req.Amount))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, state)
}

// Upgrade POST /api/upgrade
func (h *Handler) Upgrade(c *gin.Context) {
	var req UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Unknown plan selected.")
		return
	}

	view, err := h.accountService.UpgradePlan(c.Request.Context(), currentAccountID(c), req.PlanID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, view)
}

// UpgradeCrypto POST /api/upgrade/crypto
func (h *Handler) UpgradeCrypto(c *gin.Context) {
	var req CryptoUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if req.PlanID != "" {
			response.ParamError(c, "Select a cryptocurrency option.")
			return
		}
		response.ParamError(c, "Unknown plan selected.")
		return
	}

	payment, err := h.paymentService.CreateCryptoUpgradeRequest(c.Request.Context(), currentAccountID(c), req.PlanID, req.CurrencyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{
		"payment":         payment,
		"payment_methods": h.catalog.PaymentMethods(),
	})
}

// ListPayments GET /api/payments
func (h *Handler) ListPayments(c *gin.Context) {
	page, pageSize := pageParams(c)
	payments, total, err := h.paymentService.ListAccountRequests(c.Request.Context(), currentAccountID(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"payments": payments,
		"total":    total,
	})
}

// CashOut POST /api/cashout
func (h *Handler) CashOut(c *gin.Context) {
	var req CashOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Enter a valid amount to cash out.")
		return
	}

	view, err := h.accountService.CashOut(c.Request.Context(), currentAccountID(c), req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, view)
}

// ListTransactions GET /api/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pageParams(c)
	transactions, total, err := h.accountService.Transactions(c.Request.Context(), currentAccountID(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"transactions": transactions,
		"total":        total,
	})
}

// tapAmount truncates a number or the leading integer of a string toward zero.
// Anything else counts as 0.
func tapAmount(raw json.RawMessage) int64 {
	var v interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return 0
	}

	switch amount := v.(type) {
	case float64:
		switch {
		case amount >= math.MaxInt64:
			return math.MaxInt64
		case amount <= math.MinInt64:
			return math.MinInt64
		}
		return int64(amount)
	case string:
		return leadingInt(amount)
	default:
		return 0
	}
}

func leadingInt(s string) int64 {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	// out of range values saturate at the int64 bounds
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	return n
}
