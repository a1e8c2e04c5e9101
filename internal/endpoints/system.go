package endpoints

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"reframe/internal/config"
	"reframe/internal/queue"
	"reframe/internal/storage"
	"reframe/internal/store"
)

// workerPingBudget bounds how long the status endpoint waits for a worker.
const workerPingBudget = 2 * time.Second

// HandleListStylePresets returns the subtitle style presets.
func HandleListStylePresets(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		presets, err := st.ListPresets(c.Request.Context())
		if err != nil {
			serverError(c, "failed to list presets")
			return
		}
		c.JSON(http.StatusOK, gin.H{"presets": presets})
	}
}

// HandleSystemStatus reports broker endpoints, storage backend, queue depth,
// and whether a worker answers a ping within the budget.
func HandleSystemStatus(q *queue.Queue, backend storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		status := gin.H{
			"service":         config.APITitle,
			"api_version":     config.APIVersion,
			"offline_mode":    config.OfflineMode(),
			"storage_backend": backend.Name(),
			"broker_url":      config.BrokerURL,
			"result_backend":  config.ResolveResultBackend(),
		}

		depth, err := q.QueueLength(ctx)
		if err != nil {
			status["broker"] = gin.H{"connected": false, "error": err.Error()}
		} else {
			status["broker"] = gin.H{"connected": true, "queued_tasks": depth}
		}

		status["worker"] = workerStatus(c, q)
		c.JSON(http.StatusOK, status)
	}
}

// workerStatus pings the worker pool and, when one answers, asks it for its
// system info.
func workerStatus(c *gin.Context, q *queue.Queue) gin.H {
	ctx := c.Request.Context()
	reply, err := q.Call(ctx, queue.TaskPing, nil, workerPingBudget)
	if err != nil || reply == nil {
		worker := gin.H{"ping_ok": false, "workers": []string{}}
		if err != nil {
			worker["error"] = err.Error()
		}
		return worker
	}

	workers := []string{}
	if hostname, ok := reply["hostname"].(string); ok && hostname != "" {
		workers = append(workers, hostname)
	}
	worker := gin.H{"ping_ok": true, "workers": workers}
	if info, err := q.Call(ctx, queue.TaskSystemInfo, nil, workerPingBudget); err == nil && info != nil {
		worker["system_info"] = info
	}
	return worker
}
