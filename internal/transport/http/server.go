package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/auth"
	"github.com/talkwire/talkwire-server/internal/config"
	"github.com/talkwire/talkwire-server/internal/core"
	"github.com/talkwire/talkwire-server/internal/service/messaging"
	"github.com/talkwire/talkwire-server/internal/store"
)

// NewServer builds the HTTP server with all routes registered.
func NewServer(cfg *config.Config, authService *auth.Service, st store.Store, svc *messaging.Service, router *core.Router, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(logger))

	api := NewAPIHandlers(authService, logger)
	convs := NewConversationHandlers(st, svc, logger)
	ws := NewWSHandler(router, svc, authService, st, logger)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
	})

	engine.POST("/api/register", api.Register)
	engine.POST("/api/login", api.Login)

	authorized := engine.Group("/api", AuthMiddleware(authService, logger))
	{
		authorized.POST("/conversations", convs.Create)
		authorized.GET("/conversations", convs.List)
		authorized.GET("/conversations/:id", convs.Get)
		authorized.DELETE("/conversations/:id", convs.Delete)
		authorized.GET("/conversations/:id/messages", convs.Messages)
	}

	engine.GET("/ws/conversations/:id", ws.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
