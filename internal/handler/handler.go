package handler

import (
	"net/http"
	"strconv"

	"ethpoint/internal/config"
	"ethpoint/internal/infrastructure/lock"
	"ethpoint/internal/service"
	"ethpoint/pkg/logger"
	"ethpoint/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	ctxAccountID = "account_id"
	ctxAccount   = "account"
)

// Handler holds every service the HTTP API needs.
type Handler struct {
	catalog        *service.Catalog
	tokens         *service.TokenIssuer
	accountService *service.AccountService
	paymentService *service.PaymentService
	adminService   *service.AdminService
}

func NewHandler(db *gorm.DB, guard lock.Guard, catalog *service.Catalog, hasher *service.Hasher, tokens *service.TokenIssuer, cfg *config.Config) *Handler {
	return &Handler{
		catalog:        catalog,
		tokens:         tokens,
		accountService: service.NewAccountService(db, guard, catalog, hasher, cfg),
		paymentService: service.NewPaymentService(db, guard, catalog, cfg),
		adminService:   service.NewAdminService(db, guard, catalog, cfg),
	}
}

// ListPlans GET /api/plans
func (h *Handler) ListPlans(c *gin.Context) {
	response.Success(c, gin.H{
		"plans":           h.catalog.Plans(),
		"payment_methods": h.catalog.PaymentMethods(),
	})
}

// fail writes err as the envelope. Domain errors keep their message; anything else
// is logged and answered with a generic 500.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(service.KindOf(err))
	if status == http.StatusInternalServerError {
		logger.Log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		response.ServerError(c)
		return
	}
	response.Error(c, status, err.Error())
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation,
		service.KindInsufficientFunds,
		service.KindInvalidAmount,
		service.KindNoOp,
		service.KindInvalidPlan,
		service.KindInvalidCurrency,
		service.KindPaymentMethodUnavailable,
		service.KindInvalidTransition:
		return http.StatusBadRequest
	case service.KindAuth:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func currentAccountID(c *gin.Context) int64 {
	return c.GetInt64(ctxAccountID)
}

// pageParams reads ?page=&page_size=; invalid values fall back to the service defaults.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	return page, pageSize
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.NotFound(c, "User not found.")
		return 0, false
	}
	return id, true
}
