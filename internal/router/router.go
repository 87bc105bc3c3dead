package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/examguard-backend/internal/config"
	"github.com/stemsi/examguard-backend/internal/handler"
	"github.com/stemsi/examguard-backend/internal/middleware"
	"github.com/stemsi/examguard-backend/internal/response"
	"github.com/stemsi/examguard-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Attempt     *handler.AttemptHandler
	Exam        *handler.ExamHandler
	Monitor     *handler.MonitorHandler
	StudentMgmt *handler.StudentManagementHandler
	Setting     *handler.SettingHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/proctor/login", handlers.Auth.ProctorLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/proctor/me", middleware.RequireProctorJWT(authService), handlers.Auth.GetProctorProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.POST("/sessions/:session_id/attempts", handlers.Attempt.Enroll)
		studentAPI.GET("/attempts/:attempt_id", handlers.Attempt.GetAttempt)
		studentAPI.POST("/attempts/:attempt_id/start", handlers.Attempt.Start)
		studentAPI.GET("/attempts/:attempt_id/exam", handlers.Attempt.GetExamPayload)
		studentAPI.POST("/attempts/:attempt_id/answers", handlers.Attempt.SubmitAnswer)
		studentAPI.GET("/attempts/:attempt_id/answers", handlers.Attempt.ListResponses)
		studentAPI.POST("/attempts/:attempt_id/violations", handlers.Attempt.RecordViolation)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.Submit)
		studentAPI.GET("/attempts/:attempt_id/time", handlers.Attempt.RemainingTime)
		studentAPI.GET("/attempts/:attempt_id/next-question", handlers.Attempt.NextQuestion)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Proctor Group (JWT) ────────────────────────────────────────
	proctorAPI := router.Group("/api/v1/proctor")
	proctorAPI.Use(middleware.RequireProctorJWT(authService))
	{
		// Exam authoring
		proctorAPI.POST("/exams", handlers.Exam.CreateExam)
		proctorAPI.GET("/exams", handlers.Exam.ListExams)
		proctorAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		proctorAPI.POST("/exams/:exam_id/questions", handlers.Exam.AddQuestion)
		proctorAPI.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
		proctorAPI.POST("/exams/:exam_id/sessions", handlers.Exam.CreateSession)
		proctorAPI.GET("/exams/:exam_id/sessions", handlers.Exam.ListSessions)

		// Live oversight
		proctorAPI.GET("/sessions/:session_id/snapshot", handlers.Monitor.SessionSnapshot)
		proctorAPI.GET("/sessions/:session_id/monitor", handlers.Monitor.MonitorSessionSSE)

		// Attempt interventions
		proctorAPI.GET("/attempts/:attempt_id/violations", handlers.Monitor.ListViolations)
		proctorAPI.DELETE("/attempts/:attempt_id/violations", handlers.Monitor.ClearViolations)
		proctorAPI.POST("/attempts/:attempt_id/pause", handlers.Monitor.PauseAttempt)
		proctorAPI.POST("/attempts/:attempt_id/resume", handlers.Monitor.ResumeAttempt)
		proctorAPI.POST("/attempts/:attempt_id/force-submit", handlers.Monitor.ForceSubmitAttempt)
		proctorAPI.POST("/attempts/:attempt_id/extra-time", handlers.Monitor.GrantExtraTime)

		// Student accounts
		proctorAPI.GET("/students", handlers.StudentMgmt.ListStudents)
		proctorAPI.POST("/students/:student_id/unblock", handlers.StudentMgmt.UnblockStudent)
		proctorAPI.POST("/students/:student_id/reset-session", handlers.StudentMgmt.ResetStudentSession)

		// App settings
		proctorAPI.GET("/settings", handlers.Setting.GetSettings)
		proctorAPI.PUT("/settings", handlers.Setting.UpdateSettings)
	}

	return router
}
