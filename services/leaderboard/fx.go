package leaderboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("leaderboard.service",
	fx.Provide(
		NewService,
		NewScheduler,
	),
	fx.Invoke(
		autoMigrate,
		registerRoutes,
		StartScheduler,
	),
)

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&SnapshotEntry{})
}

func registerRoutes(router *gin.Engine, svc *Service) {
	router.GET("/leaderboard", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		focus := c.Query("account_id")

		board, err := svc.GetLeaderboard(c.Request.Context(), limit, offset, focus)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, board)
	})

	router.POST("/snapshot", func(c *gin.Context) {
		result, err := svc.CreateSnapshot(c.Request.Context())
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}
