package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/timottowitz/covidvaccinedetox/internal/handlers"
)

type RouterConfig struct {
	ResourceHandler  *handlers.ResourceHandler
	KnowledgeHandler *handlers.KnowledgeHandler
	FeedHandler      *handlers.FeedHandler
	ResearchHandler  *handlers.ResearchHandler
	StatusHandler    *handlers.StatusHandler
	HealthHandler    *handlers.HealthHandler

	// CORSOrigins comes from the CORS_ORIGINS env, comma-separated; "*"
	// allows every origin.
	CORSOrigins string
	// UploadDir, when set, is served under /uploads so locally stored
	// files and thumbnails resolve.
	UploadDir string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}
	origins := splitOrigins(cfg.CORSOrigins)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = origins
	}
	router.Use(cors.New(corsCfg))

	if cfg.UploadDir != "" {
		router.Static("/uploads", cfg.UploadDir)
	}

	api := router.Group("/api")
	{
		api.GET("/", cfg.HealthHandler.Root)
		api.GET("/health", cfg.HealthHandler.HealthCheck)

		// Resources
		api.GET("/resources", cfg.ResourceHandler.ListResources)
		api.POST("/resources/upload", cfg.ResourceHandler.UploadResource)
		api.PATCH("/resources/metadata", cfg.ResourceHandler.UpdateMetadata)
		api.DELETE("/resources/delete", cfg.ResourceHandler.DeleteResource)

		// Knowledge
		api.GET("/knowledge/status", cfg.KnowledgeHandler.Status)
		api.GET("/knowledge/task_status", cfg.KnowledgeHandler.TaskStatus)
		api.POST("/knowledge/reconcile", cfg.KnowledgeHandler.Reconcile)

		// Feed / research / status checks
		api.GET("/feed", cfg.FeedHandler.ListFeed)
		api.GET("/research", cfg.ResearchHandler.ListResearch)
		api.POST("/status", cfg.StatusHandler.CreateStatusCheck)
		api.GET("/status", cfg.StatusHandler.ListStatusChecks)
	}

	return router
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
