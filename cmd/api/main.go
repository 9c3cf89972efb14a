package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"battery-soh-api/config"
	"battery-soh-api/handlers"
	"battery-soh-api/middleware"
	"battery-soh-api/models"
	"battery-soh-api/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get sql db handle: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.UploadedFile{},
		&models.BatteryReading{},
		&models.MLModel{},
		&models.Prediction{},
	); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis cache; the API degrades to uncached reads when unavailable
	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("Redis unavailable, running without cache: %v", err)
	}
	defer cache.Close()

	authService := services.NewAuthService(cfg.JWT)

	trainingService := services.NewTrainingService(db, cache, cfg.Upload.ArtifactsDir, cfg.ML.DefaultTestSize)
	trainingService.Start(ctx, cfg.ML.Workers)

	authHandler := handlers.NewAuthHandler(db, authService)
	fileHandler := handlers.NewFileHandler(db, cache, cfg.Upload)
	vehicleHandler := handlers.NewVehicleHandler(db, cache)
	modelHandler := handlers.NewModelHandler(db, cache, trainingService)
	predictionHandler := handlers.NewPredictionHandler(db, cache, cfg.ML.ForecastDays, cfg.ML.ForecastStep)

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "UP",
			"message": "Battery SOH API is running",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := router.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
	}

	api := router.Group("/api")
	api.Use(middleware.RequireAuth(authService))
	{
		api.POST("/files", fileHandler.Upload)
		api.GET("/files", fileHandler.List)
		api.GET("/files/:id", fileHandler.Get)
		api.DELETE("/files/:id", fileHandler.Delete)
		api.POST("/files/:id/preprocess", fileHandler.Preprocess)

		api.POST("/vehicles", vehicleHandler.Create)
		api.GET("/vehicles", vehicleHandler.List)
		api.GET("/vehicles/:id", vehicleHandler.Get)
		api.PUT("/vehicles/:id", vehicleHandler.Update)
		api.DELETE("/vehicles/:id", vehicleHandler.Delete)
		api.POST("/vehicles/:id/readings", vehicleHandler.AddReadings)
		api.POST("/vehicles/:id/readings/import", vehicleHandler.ImportReadings)
		api.GET("/vehicles/:id/readings", vehicleHandler.ListReadings)

		api.GET("/model-types", modelHandler.ModelTypes)
		api.POST("/models", modelHandler.Create)
		api.GET("/models", modelHandler.List)
		api.GET("/models/:id", modelHandler.Get)
		api.DELETE("/models/:id", modelHandler.Delete)
		api.POST("/models/:id/train", modelHandler.Train)
		api.GET("/tasks/:id", modelHandler.TaskStatus)

		api.POST("/predictions/predict", predictionHandler.Predict)
		api.POST("/predictions/forecast", predictionHandler.Forecast)
		api.POST("/predictions/failure-analysis", predictionHandler.FailureAnalysis)
		api.GET("/predictions/history", predictionHandler.History)
	}

	router.GET("/ws/training", handlers.TrainingWebSocket(cache, authService))

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
