package handler

import (
	"context"
	"net/http"
	"time"

	"GreenChat/global"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Healthz answers 200 when every check passes and 503 naming the failing
// ones otherwise.
func Healthz(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, &global.Msg{Code: http.StatusServiceUnavailable, Msg: "unhealthy", Data: failed})
			return
		}
		c.JSON(http.StatusOK, global.Success(gin.H{"status": "SERVING"}))
	}
}
