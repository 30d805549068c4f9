package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestCounterURLLabelMappingFn controls the cardinality of the "url" label,
// e.g. by returning c.FullPath() instead of the raw path.
type RequestCounterURLLabelMappingFn func(c *gin.Context) string

// HTTP collects request count and latency for a gin engine.
type HTTP struct {
	reqCnt  *prometheus.CounterVec
	reqDur  *prometheus.HistogramVec
	urlFunc RequestCounterURLLabelMappingFn
}

func NewHTTP(reg prometheus.Registerer, urlFunc RequestCounterURLLabelMappingFn) *HTTP {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if urlFunc == nil {
		urlFunc = func(c *gin.Context) string { return c.Request.URL.Path }
	}
	return &HTTP{
		reqCnt: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "req_total",
			Help:      "How many HTTP requests processed, partitioned by status code and HTTP method.",
		}, []string{"code", "method", "url", "ref"})),
		reqDur: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "req_dur_ms",
			Help:      "The HTTP request latencies in milliseconds.",
			Buckets:   HistogramBuckets,
		}, []string{"code", "method", "url", "ref"})),
		urlFunc: urlFunc,
	}
}

// HandlerFunc is the gin middleware recording every request.
func (h *HTTP) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := h.urlFunc(c)
		ref := c.Request.Header.Get(RefererKey)
		h.reqCnt.WithLabelValues(status, c.Request.Method, url, ref).Inc()
		h.reqDur.WithLabelValues(status, c.Request.Method, url, ref).Observe(MillisecondsSince(start))
	}
}

// Handler serves the default registry, for mounting on a separate listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
