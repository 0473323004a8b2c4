package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"ethpoint/internal/config"
	"ethpoint/pkg/response"

	"github.com/gin-gonic/gin"
)

func SetupRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware(cfg.CORSOrigin))

	api := r.Group("/api")
	{
		api.GET("/plans", h.ListPlans)

		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
			auth.GET("/me", h.RequireAuth(), h.Me)
		}

		user := api.Group("", h.RequireAuth())
		{
			user.GET("/state", h.GetState)
			user.POST("/tap", h.Tap)
			user.POST("/upgrade", h.Upgrade)
			user.POST("/upgrade/crypto", h.UpgradeCrypto)
			user.GET("/payments", h.ListPayments)
			user.POST("/cashout", h.CashOut)
			user.GET("/transactions", h.ListTransactions)
		}

		admin := api.Group("/admin", h.RequireAuth(), h.RequireAdmin())
		{
			admin.GET("/users", h.AdminListUsers)
			admin.GET("/users/:id", h.AdminGetUser)
			admin.PATCH("/users/:id", h.AdminUpdateUser)
			admin.GET("/users/:id/transactions", h.AdminListUserTransactions)
			admin.GET("/payments", h.AdminListPayments)
			admin.PATCH("/payments/:payment_no", h.AdminUpdatePayment)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.NoRoute(staticFallback(cfg.StaticRoot))

	return r
}

// staticFallback answers unknown /api paths with a JSON 404 and serves everything else
// from root, falling back to index.html for client-side routes.
func staticFallback(root string) gin.HandlerFunc {
	var files http.Handler
	if root != "" {
		files = http.FileServer(http.Dir(root))
	}

	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if files == nil || p == "/api" || strings.HasPrefix(p, "/api/") {
			response.NotFound(c, "Not found")
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			response.NotFound(c, "Not found")
			return
		}

		name := filepath.Join(root, filepath.FromSlash(path.Clean("/"+p)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			files.ServeHTTP(c.Writer, c.Request)
			return
		}

		index := filepath.Join(root, "index.html")
		if _, err := os.Stat(index); err != nil {
			response.NotFound(c, "Not found")
			return
		}
		c.File(index)
	}
}
