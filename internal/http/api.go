package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"advisor-twin/internal/auth"
	"advisor-twin/internal/domain"
	"advisor-twin/internal/ratelimit"
	"advisor-twin/internal/service"
)

// Assistant produces chat replies.
type Assistant interface {
	Complete(ctx context.Context, message string, history []domain.ChatMessage) (string, error)
}

// Deps are the collaborators the handler routes to. Limiters and Assistant
// may be nil.
type Deps struct {
	Auth           service.AuthService
	Chats          service.ChatService
	Tokens         *auth.TokenManager
	Assistant      Assistant
	LoginLimiter   *ratelimit.Limiter
	ForgotLimiter  *ratelimit.Limiter
	AllowedOrigins []string
	Logger         *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth          service.AuthService
	chats         service.ChatService
	tokens        *auth.TokenManager
	assistant     Assistant
	loginLimiter  *ratelimit.Limiter
	forgotLimiter *ratelimit.Limiter
	origins       []string
	logger        *logrus.Logger
}

func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		auth:          deps.Auth,
		chats:         deps.Chats,
		tokens:        deps.Tokens,
		assistant:     deps.Assistant,
		loginLimiter:  deps.LoginLimiter,
		forgotLimiter: deps.ForgotLimiter,
		origins:       deps.AllowedOrigins,
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger), corsMiddleware(h.origins))

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/chat", h.chat)

		authGroup := api.Group("/auth")
		authGroup.POST("/login", h.limit(h.loginLimiter), h.login)
		authGroup.POST("/forgot-password", h.limit(h.forgotLimiter), h.forgotPassword)
		authGroup.POST("/reset-password", h.resetPassword)
		authGroup.POST("/change-password", h.requireAuth(), h.changePassword)
		authGroup.GET("/verify", h.requireAuth(), h.verify)

		chat := api.Group("/chat")
		chat.POST("/save", h.saveChat)
		chat.GET("/sessions", h.requireAuth(), h.listSessions)
		// unauthenticated, transcripts readable by id
		chat.GET("/sessions/:id", h.getSession)
		chat.POST("/sessions/delete-multiple", h.requireAuth(), h.deleteSessions)
		chat.DELETE("/sessions", h.requireAuth(), h.deleteAllSessions)
	}
}

func (h *Handler) limit(l *ratelimit.Limiter) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return l.Middleware(h.logger)
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && originAllowed(allowed, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowed []string, origin string) bool {
	origin = strings.TrimRight(origin, "/")
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return true
		}
	}
	return false
}
