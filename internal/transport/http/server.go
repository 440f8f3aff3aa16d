package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vibechat/relay/internal/auth"
	"github.com/vibechat/relay/internal/config"
	"github.com/vibechat/relay/internal/core"
	"github.com/vibechat/relay/internal/store"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Store store.Store
	Auth  *auth.Service

	// RoomGateway admits anyone; InboxGateway requires an access token.
	// Both share one registry, so a publish on either reaches every
	// subscriber of the channel.
	RoomGateway  *core.Gateway
	InboxGateway *core.Gateway
	Registry     *core.Registry

	// Ready reports storage readiness for /health/ready.
	Ready func(context.Context) error

	Cfg config.Config
	Log *zerolog.Logger
}

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(deps.Log))
	router.Use(SecurityHeadersMiddleware())

	api := NewAPIHandlers(deps.Auth, deps.Store, deps.Log)
	messages := NewMessageHandlers(deps.Store, deps.RoomGateway, deps.Cfg.HistoryLimit, deps.Log)
	dms := NewDMHandlers(deps.Store, deps.InboxGateway, deps.Registry, deps.Cfg.HistoryLimit, deps.Log)
	contacts := NewContactHandlers(deps.Store, deps.Log)
	keys := NewKeyHandlers(deps.Store, deps.Log)

	authRequired := AuthMiddleware(deps.Auth, deps.Log)

	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{"status": "alive"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(c.Request.Context()); err != nil {
				c.JSON(stdhttp.StatusServiceUnavailable, gin.H{"status": "not ready"})
				return
			}
		}
		c.JSON(stdhttp.StatusOK, gin.H{"status": "ready"})
	})

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/register", api.Register)
		apiGroup.POST("/auth/login", api.Login)
		apiGroup.POST("/auth/refresh", api.Refresh)
		apiGroup.GET("/auth/me", authRequired, api.Me)

		// Room messaging is open: no account needed to post or read.
		apiGroup.POST("/rooms/:slug/messages", messages.Send)
		apiGroup.GET("/rooms/:slug/messages", messages.List)
		apiGroup.DELETE("/rooms/:slug/messages", authRequired, messages.Clear)

		apiGroup.POST("/dm", authRequired, dms.Send)
		apiGroup.GET("/dm/:username", authRequired, dms.List)
		apiGroup.POST("/dm/:id/read", authRequired, dms.MarkRead)

		apiGroup.GET("/contacts", authRequired, contacts.List)
		apiGroup.POST("/contacts", authRequired, contacts.Add)
		apiGroup.DELETE("/contacts/:id", authRequired, contacts.Remove)

		apiGroup.POST("/keys", authRequired, keys.Upload)
		apiGroup.GET("/keys/:username", authRequired, keys.Get)
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(deps.RoomGateway, wsOptions{
		RateLimit: deps.Cfg.WSMessageRateLimit,
	}, deps.Log)))
	router.GET("/ws/inbox", gin.WrapH(NewWSHandler(deps.InboxGateway, wsOptions{
		RateLimit:    deps.Cfg.WSMessageRateLimit,
		RequireToken: true,
	}, deps.Log)))

	return router
}

// NewServer wraps the router into an http.Server.
func NewServer(deps Deps) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              deps.Cfg.Addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: deps.Cfg.ReadHeaderTimeout,
	}
}
