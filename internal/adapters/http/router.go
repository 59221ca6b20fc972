package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/adapters/signal"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app/orch"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/config"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
)

// ClientTokenMiddleware gives every browser a stable opaque identity;
// it doubles as the signaling session id.
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
	r.Use(sessions.Sessions("OceanAcademySessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// GET /api/rooms/:id — lightweight room info for lobby pages.
	api.GET("/rooms/:id", func(c *gin.Context) {
		id := domain.RoomID(c.Param("id"))
		room, ok := o.Rooms.Room(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"roomId":       room.ID(),
			"participants": room.Participants(),
			"producers":    room.Producers(),
		})
	})

	ctrl := signal.NewSignalWSController(o)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
