package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/hostelpass/internal/api/handlers"
	"github.com/your-org/hostelpass/internal/api/ws"
	"github.com/your-org/hostelpass/internal/auth"
	"github.com/your-org/hostelpass/internal/capture"
	"github.com/your-org/hostelpass/internal/session"
	"github.com/your-org/hostelpass/internal/upstream"
)

type RouterConfig struct {
	APIKey   string
	Manager  *capture.Manager
	Upstream *upstream.Client
	Store    session.Store
	Models   handlers.ModelUnit
	Snapshot handlers.Pinger // nil when archiving is disabled
	Hub      *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Models, cfg.Upstream, cfg.Snapshot)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket display feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Device session
	authH := handlers.NewAuthHandler(cfg.Upstream, cfg.Store)
	v1.POST("/auth/login", authH.Login)
	v1.POST("/auth/logout", authH.Logout)
	v1.GET("/auth/session", authH.Session)
	v1.POST("/auth/register", authH.Register)

	// Capture flows
	captureH := handlers.NewCaptureHandler(cfg.Manager)
	v1.POST("/capture", captureH.Start)
	v1.GET("/capture", captureH.Status)
	v1.POST("/capture/frame", captureH.Capture)
	v1.GET("/capture/frame", captureH.Frame)
	v1.POST("/capture/retake", captureH.Retake)
	v1.POST("/capture/confirm", captureH.Confirm)
	v1.DELETE("/capture", captureH.Cancel)

	// Student directory & profile
	studentH := handlers.NewStudentHandler(cfg.Upstream, cfg.Store)
	v1.GET("/profile", studentH.Profile)
	v1.POST("/profile/image", studentH.UploadProfileImage)
	v1.GET("/registration/:rollNo", studentH.Registration)
	v1.GET("/incharges", studentH.Incharges)
	v1.GET("/roomies", studentH.Roomies)

	// Requests & complaints
	requestH := handlers.NewRequestHandler(cfg.Upstream, cfg.Store)
	v1.GET("/requests", requestH.List)
	v1.POST("/requests", requestH.Create)
	v1.GET("/complaints", requestH.RoomComplaints)
	v1.POST("/complaints", requestH.CreateComplaint)

	return r
}
