package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// fullPath labels requests by route template so path parameters do not
// explode the url label.
func fullPath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// Module registers the recorder and HTTP collectors on the default registry.
var Module = fx.Options(
	fx.Provide(func() *Recorder { return NewRecorder(prometheus.DefaultRegisterer) }),
	fx.Provide(func() *HTTP { return NewHTTP(prometheus.DefaultRegisterer, fullPath) }),
)
