// Package httpapi serves the operational HTTP surface: health, status and
// Prometheus metrics. It is optional and only started when an address is
// configured.
package httpapi

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource is the subset of the broker the status endpoints read.
type StatusSource interface {
	OnlineCount() int
	TLSEnabled() bool
}

// API is the status HTTP server.
type API struct {
	serverName string
	version    string
	src        StatusSource
}

// New builds the status API.
func New(serverName, version string, src StatusSource) *API {
	return &API{
		serverName: serverName,
		version:    version,
		src:        src,
	}
}

// Handler builds the gin router.
func (a *API) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/statusz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"server_name": a.serverName,
			"version":     a.version,
			"online":      a.src.OnlineCount(),
			"tls":         a.src.TLSEnabled(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Start serves on addr. Intended to run in its own goroutine.
func (a *API) Start(addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: a.Handler(),
	}
	return srv.ListenAndServe()
}
