package http

import (
	"pebble-sync/internal/config"
	"pebble-sync/internal/handlers"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/middleware"
	"pebble-sync/internal/services"

	"github.com/gin-gonic/gin"
)

func NewRouter(cfg config.Config, logger *logging.Logger, history *services.HistoryService, keys *services.KeyService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	sh := handlers.NewSyncHandler(history, logger)
	kh := handlers.NewKeyHandler(keys, logger)

	sync := r.Group("/sync")
	{
		sync.POST("/push", middleware.Auth(keys, cfg.RequireAuth), sh.Push)
		sync.GET("/fetch", middleware.Auth(keys, cfg.RequireAuth), sh.Fetch)
		sync.GET("/history", middleware.Auth(keys, true), sh.History)
	}

	admin := r.Group("/keys")
	admin.Use(middleware.AdminToken(cfg.AdminToken))
	{
		admin.POST("/create", kh.Create)
		admin.GET("/list", kh.List)
		admin.POST("/revoke", kh.Revoke)
	}
	return r
}
