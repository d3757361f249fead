package middleware

import (
	"example.com/procurement/services/match/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// Tracing returns a gin middleware that names New Relic transactions after
// the matched route. A disabled tracer yields a pass-through handler.
func Tracing(tracer tracing.Tracer) gin.HandlerFunc {
	app := tracer.App()
	if app == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return nrgin.Middleware(app)
}
