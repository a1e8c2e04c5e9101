package endpoints

import (
	"time"

	"github.com/gin-gonic/gin"

	"reframe/internal/config"
	"reframe/internal/queue"
	"reframe/internal/ratelimit"
	"reframe/internal/storage"
	"reframe/internal/store"
)

// SetupRoutes configures all API routes.
func SetupRoutes(r *gin.Engine, st *store.Store, q *queue.Queue, backend storage.Backend) {
	limiter := ratelimit.New(config.RateLimitRequests,
		time.Duration(config.RateLimitWindowSeconds)*time.Second)

	api := r.Group("/api")
	api.Use(RequestIDMiddleware())
	api.Use(RateLimitMiddleware(limiter))
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "healthy",
				"service": config.APITitle,
			})
		})
		api.GET("/system/status", HandleSystemStatus(q, backend))
		api.GET("/presets/styles", HandleListStylePresets(st))

		assets := api.Group("/assets")
		{
			assets.POST("", HandleAssetUpload(st, backend))
			assets.GET("", HandleListAssets(st))
			assets.GET("/:id", HandleGetAsset(st))
			assets.DELETE("/:id", HandleDeleteAsset(st))
			assets.GET("/:id/download", HandleDownloadAsset(st, backend))
			assets.GET("/:id/download-url", HandleAssetDownloadURL(st, backend))
		}

		jobs := api.Group("/jobs")
		{
			jobs.GET("", HandleListJobs(st))
			jobs.GET("/:id", HandleGetJob(st))
			jobs.POST("/:id/cancel", HandleCancelJob(st))
			jobs.DELETE("/:id", HandleDeleteJob(st, backend))
			jobs.GET("/:id/bundle", HandleJobBundle(st, backend))
		}

		api.POST("/captions/jobs", HandleCreateCaptionsJob(st, q))
		api.POST("/subtitles/translate", HandleCreateTranslateJob(st, q))
		api.POST("/subtitles/style", HandleCreateStyleJob(st, q))
		api.POST("/shorts/jobs", HandleCreateShortsJob(st, q))

		utilities := api.Group("/utilities")
		{
			utilities.POST("/translate-subtitle", HandleCreateTranslateJob(st, q))
			utilities.POST("/merge-av", HandleCreateMergeJob(st, q))
			utilities.POST("/cut-clip", HandleCreateCutClipJob(st, q))
		}
	}
}
