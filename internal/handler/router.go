package handler

import (
	"github.com/gin-gonic/gin"
)

// Routes groups the handlers served under the API prefix.
type Routes struct {
	Auth    *AuthHandler
	Sync    *SyncHandler
	Metrics *MetricsHandler
	// RequireAuth guards routes that need an access token.
	RequireAuth gin.HandlerFunc
}

// Register mounts operational endpoints at the root and the API under prefix.
func (r Routes) Register(engine *gin.Engine, prefix string) {
	engine.GET("/health", r.Metrics.Health)
	engine.GET("/ready", r.Metrics.Ready)
	engine.GET("/metrics", r.Metrics.Prometheus)

	api := engine.Group(prefix)

	auth := api.Group("/auth")
	auth.POST("/register", r.Auth.Register)
	auth.POST("/login", r.Auth.Login)
	auth.POST("/refresh", r.Auth.Refresh)
	auth.POST("/logout", r.RequireAuth, r.Auth.Logout)
	auth.GET("/me", r.RequireAuth, r.Auth.Me)

	accounts := api.Group("/accounts", r.RequireAuth)
	accounts.POST("/sync", r.Sync.Sync)
}
