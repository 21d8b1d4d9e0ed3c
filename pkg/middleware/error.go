package middleware

import (
	"net/http"

	"streampoints-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error converts domain errors attached to the gin context into structured
// JSON responses. Non-BaseError failures surface as plain 500s so the sender
// retries and the idempotency gate absorbs the redelivery.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": err.Error(),
			},
		})
	}
}
