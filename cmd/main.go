package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timottowitz/covidvaccinedetox/internal/db"
	"github.com/timottowitz/covidvaccinedetox/internal/handlers"
	"github.com/timottowitz/covidvaccinedetox/internal/knowledge"
	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/server"
	"github.com/timottowitz/covidvaccinedetox/internal/services"
	"github.com/timottowitz/covidvaccinedetox/internal/storage"
	"github.com/timottowitz/covidvaccinedetox/internal/thumbs"
	"github.com/timottowitz/covidvaccinedetox/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	port := utils.GetEnv("PORT", "8080", log)
	corsOrigins := utils.GetEnv("CORS_ORIGINS", "*", log)
	uploadDir := utils.GetEnv("UPLOAD_DIR", "data/uploads", log)
	knowledgeDir := utils.GetEnv("KNOWLEDGE_DIR", "data/knowledge", log)
	publicBase := utils.GetEnv("PUBLIC_BASE_URL", "/uploads", log)
	uploadWorkers := utils.GetEnvAsInt("UPLOAD_WORKERS", 2, log)
	taskRetention := utils.GetEnvAsInt("TASK_RETENTION_SECONDS", 3600, log)
	taskTimeout := utils.GetEnvAsInt("TASK_PROCESSING_TIMEOUT_SECONDS", 1800, log)

	// Database
	dbService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err = dbService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := dbService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	resourceRepo := repos.NewResourceRepo(theDB, log)
	feedItemRepo := repos.NewFeedItemRepo(theDB, log)
	articleRepo := repos.NewArticleRepo(theDB, log)
	statusCheckRepo := repos.NewStatusCheckRepo(theDB, log)

	// Storage
	var blobs storage.BlobStore
	if os.Getenv("GCS_BUCKET_NAME") != "" {
		gcsStore, err := storage.NewGCSStore(log)
		if err != nil {
			log.Error("Could not init GCS store", "error", err)
			os.Exit(1)
		}
		blobs = gcsStore
	} else {
		localStore, err := storage.NewLocalStore(uploadDir, publicBase, log)
		if err != nil {
			log.Error("Could not init local store", "error", err)
			os.Exit(1)
		}
		blobs = localStore
	}

	knowledgeStore, err := knowledge.NewStore(knowledgeDir, log)
	if err != nil {
		log.Error("Could not init knowledge store", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	thumbGen := thumbs.NewGenerator(log)
	contentService := services.NewContentService(theDB, log, resourceRepo, blobs, thumbGen)
	taskStore := services.NewTaskStore(
		time.Duration(taskRetention)*time.Second,
		time.Duration(taskTimeout)*time.Second,
		log,
	)
	defer taskStore.Close()
	ingestService := services.NewIngestService(knowledgeStore, log)
	knowledgeGen := services.NewKnowledgeGenerator(log)
	uploadService, err := services.NewUploadService(log, taskStore, contentService, blobs, ingestService, knowledgeGen, "", uploadWorkers)
	if err != nil {
		log.Error("Could not init upload service", "error", err)
		os.Exit(1)
	}
	defer uploadService.Close()
	reconcileService := services.NewReconcileService(log, knowledgeStore, resourceRepo)

	seedService := services.NewSeedService(log, resourceRepo, feedItemRepo, articleRepo)
	if err := seedService.EnsureSeed(context.Background()); err != nil {
		log.Warn("Seed failed", "error", err)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	resourceHandler := handlers.NewResourceHandler(log, contentService, uploadService)
	knowledgeHandler := handlers.NewKnowledgeHandler(log, knowledgeStore, reconcileService, uploadService)
	feedHandler := handlers.NewFeedHandler(log, feedItemRepo)
	researchHandler := handlers.NewResearchHandler(log, articleRepo)
	statusHandler := handlers.NewStatusHandler(log, statusCheckRepo)
	healthHandler := handlers.NewHealthHandler(theDB)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ResourceHandler:  resourceHandler,
		KnowledgeHandler: knowledgeHandler,
		FeedHandler:      feedHandler,
		ResearchHandler:  researchHandler,
		StatusHandler:    statusHandler,
		HealthHandler:    healthHandler,
		CORSOrigins:      corsOrigins,
		UploadDir:        uploadDir,
	})

	go func() {
		fmt.Printf("Server listening on :%s\n", port)
		if err := router.Run(":" + port); err != nil {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")
}
