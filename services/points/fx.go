package points

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("points.service",
	fx.Provide(NewService),
	fx.Invoke(
		autoMigrate,
		registerRoutes,
	),
)

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&CooldownReservation{},
		&LedgerEntry{},
		&StreamStatus{},
	)
}

func registerRoutes(router *gin.Engine, svc *Service) {
	router.GET("/accounts/:id/audit", func(c *gin.Context) {
		if err := svc.VerifyBalance(c.Request.Context(), c.Param("id")); err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true})
	})
}
