package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/config"
	"github.com/stemsi/proctorexam/internal/handler"
	"github.com/stemsi/proctorexam/internal/middleware"
	"github.com/stemsi/proctorexam/internal/response"
	"github.com/stemsi/proctorexam/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Exam          *handler.ExamHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// frameLimiter may be nil to disable frame upload throttling.
func SetupRouter(
	tokens *service.TokenService,
	handlers *Handlers,
	frameLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))

	// Apply brotli middleware globally. Streams opt out inside the middleware.
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	frameLimit := func(c *gin.Context) { c.Next() }
	if frameLimiter != nil {
		frameLimit = frameLimiter.Middleware()
	}
	frameBody := func(c *gin.Context) { c.Next() }
	if cfg.MaxFrameBytes > 0 {
		frameBody = middleware.BodyLimit(middleware.FrameBodyLimit(cfg.MaxFrameBytes))
	}

	// ─── 1. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.Authenticate(tokens),
		middleware.RequireStudent(),
		middleware.NoStore(),
	)
	{
		studentAPI.POST("/exams/:exam_id/attempt", handlers.StudentPortal.StartAttempt)
		studentAPI.GET("/exams/:exam_id/state", handlers.StudentPortal.GetState)
		studentAPI.GET("/exams/:exam_id/paper", handlers.StudentPortal.GetPaper)

		studentAPI.PUT("/attempts/:attempt_id/answers/:question_id", handlers.StudentPortal.SaveAnswer)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.StudentPortal.SubmitAttempt)
		studentAPI.GET("/attempts/:attempt_id/result", handlers.StudentPortal.GetResult)

		// Proctoring
		studentAPI.POST("/attempts/:attempt_id/tab-switch", handlers.StudentPortal.RecordTabSwitch)
		studentAPI.POST("/attempts/:attempt_id/webcam/status", handlers.StudentPortal.UpdateWebcamStatus)
		studentAPI.POST("/attempts/:attempt_id/webcam/consent", handlers.StudentPortal.RecordWebcamConsent)
		studentAPI.POST("/attempts/:attempt_id/webcam/frames", frameLimit, frameBody, handlers.StudentPortal.UploadFrame)
	}

	// ─── 2. WebSocket Group (token may come as ?token=) ────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.Authenticate(tokens), middleware.RequireStudent())
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	// ─── 3. Staff Group ────────────────────────────────────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.Authenticate(tokens), middleware.RequireStaff())
	{
		staffAPI.GET("/exams/:exam_id/status", handlers.Exam.GetStatus)
		staffAPI.GET("/exams/:exam_id/attempts", handlers.Exam.ListAttempts)
		staffAPI.POST("/exams/:exam_id/cache/refresh", handlers.Exam.RefreshCache)
		staffAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)

		staffAPI.GET("/attempts/:attempt_id/score", handlers.Exam.GetScore)
		staffAPI.GET("/attempts/:attempt_id/signals", handlers.Exam.ListSignals)
		staffAPI.GET("/attempts/:attempt_id/events", handlers.Exam.ListEvents)

		staffAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
