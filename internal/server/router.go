// Package server assembles the gin engine and its routes.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neilnvaidya/owlby-api/internal/config"
	"github.com/neilnvaidya/owlby-api/internal/handler"
	"github.com/neilnvaidya/owlby-api/internal/server/middleware"
)

// SetupRouter builds the engine with the shared middleware chain and all
// public routes.
func SetupRouter(cfg *config.Config, gen *handler.GenerateHandler, auth *middleware.AuthVerifier) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(auth.Middleware())
	{
		v1.POST("/generate/chat", gen.Chat)
		v1.POST("/generate/lesson", gen.Lesson)
		v1.POST("/generate/story", gen.Story)
		v1.GET("/limits", gen.Limits)
	}

	return r
}
