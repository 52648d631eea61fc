package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/adapters/signal"
	"github.com/dkeye/parley/internal/app/orch"
	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/persona"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParleySessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	ctrl := signal.NewSignalWSController(o, cfg)
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Rooms.List())
	})

	api.GET("/presets", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Catalog.List())
	})

	registerProfileRoutes(api, o)

	return r
}

type profileRequest struct {
	Name    string `json:"name" binding:"required,max=36"`
	Payload string `json:"payload" binding:"required"`
}

// Profiles are written over plain HTTP; the session protocol only ever
// reads them when materializing a twin.
func registerProfileRoutes(api *gin.RouterGroup, o *orch.Orchestrator) {
	api.POST("/profiles", func(c *gin.Context) {
		var req profileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid profile fields"})
			return
		}
		p := persona.Profile{
			ID:      uuid.NewString(),
			Owner:   c.GetString("client_token"),
			Name:    req.Name,
			Payload: req.Payload,
		}
		if err := o.Profiles.Save(c.Request.Context(), p); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save profile"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": p.ID})
	})

	api.GET("/profiles", func(c *gin.Context) {
		owner := c.GetString("client_token")
		list, err := o.Profiles.List(c.Request.Context(), owner)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("list profiles")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list profiles"})
			return
		}
		c.JSON(http.StatusOK, list)
	})
}
