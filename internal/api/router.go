package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/doorgate/internal/api/handlers"
	"github.com/your-org/doorgate/internal/api/ws"
	"github.com/your-org/doorgate/internal/auth"
	"github.com/your-org/doorgate/internal/gate"
	"github.com/your-org/doorgate/internal/notify"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/internal/visit"
)

type RouterConfig struct {
	APIKey string
	// Tokens issues and verifies owner tokens; nil disables owner login tokens.
	Tokens *auth.TokenIssuer
	DB     storage.Store
	Images storage.ImageStore
	Visits *visit.Lifecycle
	// Gate and Enroller are nil when the vision models could not be loaded.
	Gate     *gate.Service
	Enroller *gate.Enroller
	Fanout   *notify.Fanout
	Hub      *ws.Hub
	Checks   []handlers.Check
	// FilesDir, when set, is served under /files for the local image store.
	FilesDir       string
	MaxUploadBytes int64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.FilesDir != "" {
		r.Static("/files", cfg.FilesDir)
	}

	// Owner accounts (no auth)
	ownerH := handlers.NewOwnerHandler(cfg.DB, cfg.Tokens)
	r.POST("/v1/auth/register", ownerH.Register)
	r.POST("/v1/auth/login", ownerH.Login)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.Middleware(cfg.APIKey, cfg.Tokens))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Recognition
	recH := handlers.NewRecognitionHandler(cfg.Gate, cfg.DB, cfg.MaxUploadBytes)
	v1.POST("/recognitions/burst", recH.Burst)
	v1.POST("/recognitions/detect", recH.Detect)

	// Visits
	visitH := handlers.NewVisitHandler(cfg.Visits, notify.NewVisitNotifier(cfg.Fanout))
	v1.GET("/visits", visitH.List)
	v1.GET("/visits/:id", visitH.Get)
	v1.GET("/visits/:id/status", visitH.Status)
	v1.PUT("/visits/:id/status", visitH.UpdateStatus)
	v1.GET("/visits/:id/unlock", visitH.UnlockStatus)
	v1.POST("/visits/:id/unlock", visitH.ClaimUnlock)
	v1.POST("/visits/:id/notify", visitH.Notify)
	v1.GET("/owners/:id/stats", visitH.Stats)

	// Devices & notifications
	deviceH := handlers.NewDeviceHandler(cfg.DB, cfg.Fanout)
	v1.POST("/devices", deviceH.Register)
	v1.DELETE("/devices", deviceH.Unregister)
	v1.GET("/owners/:id/devices", deviceH.List)
	v1.POST("/notify/owners/:id", deviceH.NotifyOwner)

	// Visitors & faces: the gallery is shared by every door; devices only.
	visitorH := handlers.NewVisitorHandler(cfg.DB, cfg.Enroller, cfg.MaxUploadBytes)
	visitors := v1.Group("/visitors", auth.RequireDevice())
	visitors.POST("", visitorH.Create)
	visitors.GET("", visitorH.List)
	visitors.GET("/:id", visitorH.Get)
	visitors.PUT("/:id", visitorH.Update)
	visitors.DELETE("/:id", visitorH.Delete)
	visitors.POST("/:id/faces", visitorH.AddFace)

	// Uploads
	uploadH := handlers.NewUploadHandler(cfg.Images, cfg.MaxUploadBytes)
	v1.POST("/uploads", uploadH.Upload)
	v1.GET("/images/*key", uploadH.Image)

	return r
}
