package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/connprov/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.appeared).Truncate(time.Second).String(),
			"service": a.name,
			"version": Version,
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		if !a.src.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true})
	})

	guarded := a.router.Group("/")
	if a.token != nil {
		guarded.Use(a.requireToken)
	}

	guarded.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded.GET("/providers", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.src.Status())
	})

	guarded.GET("/providers/:name", func(c *gin.Context) {
		st, ok := a.src.ProviderStatus(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider", "name": c.Param("name")})
			return
		}
		c.JSON(http.StatusOK, st)
	})
}

func (a *Admin) requireToken(c *gin.Context) {
	err := auth.Check(a.token, c.GetHeader("Authorization"))
	if err == nil {
		c.Next()
		return
	}
	if errors.Is(err, auth.ErrMissingToken) {
		c.Header("WWW-Authenticate", `Bearer realm="connprovd"`)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
