package webhook

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("webhook.service",
	fx.Provide(
		NewVerifier,
		NewStore,
		NewDispatcher,
		NewHandler,
	),
	fx.Invoke(
		autoMigrate,
		registerRoutes,
	),
)

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&InboundEvent{})
}

func registerRoutes(router *gin.Engine, handler *Handler) {
	router.POST("/webhook", handler.Ingest)
	router.GET("/events/stuck", handler.Stuck)
}
