package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/relaychat/relaychat-server/internal/auth"
	"github.com/relaychat/relaychat-server/internal/config"
	"github.com/relaychat/relaychat-server/internal/core"
	"github.com/relaychat/relaychat-server/internal/store"
)

// NewServer builds the HTTP server: REST endpoints plus the /ws upgrade
// route that feeds the event router.
func NewServer(router *core.Router, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, st, logger)
	roomHandlers := NewRoomHandlers(router.Membership(), st, cfg.HistoryLimit, logger)
	wsHandler := NewWSHandler(router, logger, cfg.AuthTimeout)

	engine.GET("/health", healthHandler)
	engine.GET("/ws", gin.WrapH(wsHandler))

	engine.POST("/api/register", apiHandlers.Register)
	engine.POST("/api/login", apiHandlers.Login)

	authorized := engine.Group("/api")
	authorized.Use(AuthMiddleware(authService, logger))
	{
		authorized.GET("/me", apiHandlers.Me)
		authorized.GET("/rooms", roomHandlers.ListRooms)
		authorized.POST("/rooms", roomHandlers.CreateRoom)
		authorized.POST("/rooms/direct", roomHandlers.CreateDirectRoom)
		authorized.GET("/rooms/:id/messages", roomHandlers.ListMessages)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
