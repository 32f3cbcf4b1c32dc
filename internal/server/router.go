// Package server assembles the site backend's HTTP surface.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaani-voice/backend/internal/contact"
	"github.com/vaani-voice/backend/internal/livekit"
	"github.com/vaani-voice/backend/internal/middleware"
	"github.com/vaani-voice/backend/pkg/response"
	"github.com/vaani-voice/backend/pkg/rtcproto"
)

// healthTimeFormat matches JavaScript's Date.toISOString.
const healthTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Deps are the handlers mounted by NewRouter. Relay may be nil.
type Deps struct {
	Contact        *contact.Handler
	LiveKit        *livekit.Handler
	Relay          gin.HandlerFunc
	AllowedOrigins string
	Logger         *zap.Logger
	Now            func() time.Time
}

// HealthBody is the GET /api/health response.
type HealthBody struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewRouter builds the gin engine. Health has no dependencies and is always mounted.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.AllowedOrigins))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(d.Logger))

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			response.OK(c, HealthBody{Status: "ok", Timestamp: d.Now().UTC().Format(healthTimeFormat)})
		})
		if d.Contact != nil {
			api.POST("/contact", d.Contact.Create)
		}
		if d.LiveKit != nil {
			api.GET("/connection-details", d.LiveKit.GetConnectionDetails)
		}
	}

	// Dev relay (token in query; the browser websocket API cannot set headers)
	if d.Relay != nil {
		router.GET(rtcproto.Path, d.Relay)
	}
	return router
}
