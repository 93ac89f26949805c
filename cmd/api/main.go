package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/exam-portal-api/internal/config"
	"github.com/yourusername/exam-portal-api/internal/handler"
	"github.com/yourusername/exam-portal-api/internal/middleware"
	pgRepo "github.com/yourusername/exam-portal-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/exam-portal-api/internal/repository/redis"
	"github.com/yourusername/exam-portal-api/internal/service"
	ws "github.com/yourusername/exam-portal-api/internal/websocket"
	"github.com/yourusername/exam-portal-api/pkg/auth"
	"github.com/yourusername/exam-portal-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	examRepo := pgRepo.NewExamRepo(db)
	questionRepo := pgRepo.NewQuestionRepo(db)
	accessRepo := pgRepo.NewAccessRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Корневой контекст приложения для фоновых горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// JWT для админ-сессий
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Отправка писем: Resend, если настроен ключ, иначе noop
	var sender service.ReportSender = &service.NoopReportSender{}
	if cfg.Email.ResendAPIKey != "" {
		resendSender, err := service.NewResendReportSender(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Email.AdminEmail)
		if err != nil {
			log.Printf("Failed to initialize Resend sender: %v", err)
			os.Exit(1)
		}
		sender = resendSender
		log.Println("Email: Resend sender configured")
	} else {
		log.Println("Email: API key not set, using noop sender")
	}

	// WebSocket хаб мониторинга
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Инициализируем сервисы
	attemptConfig := service.AttemptConfig{
		GracePeriod:             time.Duration(cfg.Exam.GracePeriodSec) * time.Second,
		SweepGrace:              time.Duration(cfg.Exam.SweepGraceSec) * time.Second,
		DefaultPassThresholdPct: cfg.Exam.PassThresholdPct,
		ContentCacheTTL:         time.Duration(cfg.Exam.ContentCacheTTLSec) * time.Second,
	}

	attemptService := service.NewAttemptService(accessRepo, examRepo, cacheRepo, sender, hub, attemptConfig)
	examService := service.NewExamService(examRepo, questionRepo, attemptService)
	accessService := service.NewAccessService(accessRepo, examRepo)
	authService := service.NewAuthService(userRepo, jwtService)

	// Фоновая очистка брошенных попыток
	sweeper := service.NewAttemptSweeper(attemptService, cacheRepo, time.Duration(cfg.Exam.SweepIntervalSec)*time.Second)
	go sweeper.Run(ctx)

	// Инициализируем обработчики
	authHandler := handler.NewAuthHandler(authService)
	examHandler := handler.NewExamHandler(examService, accessService, attemptService)
	accessHandler := handler.NewAccessHandler(accessService)
	attemptHandler := handler.NewAttemptHandler(attemptService, examService)
	monitorHandler := handler.NewMonitorHandler(hub, jwtService, nil)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode
	if isProduction {
		// Production: не доверять прокси-заголовкам
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		// Аутентификация админа
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", rateLimiter.Limit(middleware.StrictAuthRateLimitConfig()), authHandler.Login)
			authGroup.GET("/me", authMiddleware.RequireAuth(), authHandler.Me)
		}

		// Публичные (студенческие) маршруты
		public := api.Group("")
		public.Use(rateLimiter.LimitByIP(middleware.PublicExamRateLimitConfig()))
		{
			public.GET("/exams", attemptHandler.AvailableExams)

			attempts := public.Group("/attempts")
			{
				attempts.POST("/redeem", rateLimiter.Limit(middleware.RedeemRateLimitConfig()), attemptHandler.Redeem)
				attempts.POST("/submit", attemptHandler.Submit)
				attempts.GET("/:code/content", attemptHandler.Content)
				attempts.GET("/:code/result", attemptHandler.Result)
			}
		}

		// Админские маршруты
		admin := api.Group("/admin")
		admin.Use(authMiddleware.RequireAuth(), authMiddleware.AdminOnly())
		{
			exams := admin.Group("/exams")
			{
				exams.POST("", examHandler.CreateExam)
				exams.GET("", examHandler.ListExams)

				examWithID := exams.Group("/:id")
				examWithID.Use(middleware.ExtractUintParam("id", "examID"))
				{
					examWithID.GET("", examHandler.GetExam)
					examWithID.PUT("", examHandler.UpdateExam)
					examWithID.DELETE("", examHandler.DeleteExam)
					examWithID.POST("/questions", examHandler.AddQuestion)
					examWithID.GET("/questions", examHandler.GetQuestions)
					examWithID.GET("/attempts", examHandler.ListAttempts)
					examWithID.GET("/attempts/export", examHandler.ExportAttempts)
				}
			}

			questions := admin.Group("/questions/:question_id")
			questions.Use(middleware.ExtractUintParam("question_id", "questionID"))
			{
				questions.PUT("", examHandler.UpdateQuestion)
				questions.DELETE("", examHandler.DeleteQuestion)
			}

			attempts := admin.Group("/attempts/:attempt_id")
			attempts.Use(middleware.ExtractUintParam("attempt_id", "attemptID"))
			{
				attempts.GET("/report", examHandler.GetAttemptReport)
			}

			batches := admin.Group("/batches")
			{
				batches.POST("", accessHandler.GenerateBatch)
				batches.GET("", accessHandler.Dashboard)
				batches.GET("/:batch_id/codes", accessHandler.BatchCodes)
				batches.GET("/:batch_id/export", accessHandler.ExportBatch)
				batches.PUT("/:batch_id/company", accessHandler.RenameBatch)
				batches.DELETE("/:batch_id", accessHandler.DeleteBatch)
			}

			codes := admin.Group("/codes/:code_id")
			codes.Use(middleware.ExtractUintParam("code_id", "codeID"))
			{
				codes.POST("/reset", accessHandler.ResetCode)
				codes.POST("/delivered", accessHandler.MarkDelivered)
			}
		}
	}

	// WebSocket мониторинг для админки
	router.GET("/ws/monitor", monitorHandler.Stream)

	// HTTP сервер с тайм-аутами для защиты от slow client attacks
	readTimeout := cfg.Server.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15
	}
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30
	}
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	// Ждем сигнал остановки, затем гасим горутины и сервер
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exited properly")
}
