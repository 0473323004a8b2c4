package handler

import (
	"time"

	"ethpoint/internal/model"
	"ethpoint/internal/service"
	"ethpoint/pkg/response"

	"github.com/gin-gonic/gin"
)

type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SessionResponse struct {
	Token     string               `json:"token"`
	ExpiresAt time.Time            `json:"expires_at"`
	User      service.Profile      `json:"user"`
	State     service.AccountState `json:"state"`
}

// Register POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Username and password are required.")
		return
	}

	account, err := h.accountService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	session, err := h.session(account)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, session)
}

// Login POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Username and password are required.")
		return
	}

	account, err := h.accountService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	session, err := h.session(account)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, session)
}

// Me GET /api/auth/me
func (h *Handler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := currentAccountID(c)

	state, err := h.accountService.State(ctx, accountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	account, err := h.accountService.GetAccount(ctx, accountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, service.AccountView{
		User:  h.accountService.Profile(account),
		State: *state,
	})
}

func (h *Handler) session(account *model.Account) (*SessionResponse, error) {
	token, expiresAt, err := h.tokens.Issue(account.ID)
	if err != nil {
		return nil, err
	}
	view := h.accountService.Describe(account)
	return &SessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      view.User,
		State:     view.State,
	}, nil
}
