package endpoints

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"reframe/internal/storage"
	"reframe/internal/store"
)

// HandleListJobs lists jobs newest first, optionally filtered by status.
func HandleListJobs(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		if status != "" && !store.ValidJobStatus(status) {
			validationError(c, "unknown job status", gin.H{"status": status})
			return
		}
		jobs, err := st.ListJobs(c.Request.Context(), status)
		if err != nil {
			serverError(c, "failed to list jobs")
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

// HandleGetJob fetches one job.
func HandleGetJob(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := st.GetJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			storeError(c, err, "job not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": job})
	}
}

// HandleCancelJob cancels a queued or running job. The worker observes the
// cancelled status at its next checkpoint.
func HandleCancelJob(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := st.CancelJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			storeError(c, err, "job not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": job})
	}
}

// HandleDeleteJob removes a terminal job. With delete_assets=true the job's
// produced assets are removed too, skipping any an other job still uses.
func HandleDeleteJob(st *store.Store, backend storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		job, err := st.GetJob(ctx, c.Param("id"))
		if err != nil {
			storeError(c, err, "job not found")
			return
		}
		assetIDs := producedAssetIDs(job)
		if err := st.DeleteJob(ctx, job.ID); err != nil {
			storeError(c, err, "job not found")
			return
		}
		if c.Query("delete_assets") == "true" {
			for _, id := range assetIDs {
				asset, err := st.GetAsset(ctx, id)
				if err != nil {
					continue
				}
				if err := st.DeleteAsset(ctx, id); err != nil {
					continue
				}
				removeLocalFile(backend, asset.URI)
			}
		}
		c.Status(http.StatusNoContent)
	}
}

// jobAssetIDs collects every asset id a job references: input, output, and
// the clip entries a shorts job records in its payload.
func jobAssetIDs(job store.Job) []string {
	return collectJobAssetIDs(job, true)
}

// producedAssetIDs collects only the assets the job produced. The input
// asset is excluded: it existed before the job and may serve other jobs.
func producedAssetIDs(job store.Job) []string {
	return collectJobAssetIDs(job, false)
}

func collectJobAssetIDs(job store.Job, includeInput bool) []string {
	seen := map[string]bool{}
	ids := []string{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if includeInput {
		add(job.InputAssetID)
	}
	add(job.OutputAssetID)
	if clips, ok := job.Payload["clip_assets"].([]any); ok {
		for _, entry := range clips {
			clip, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"asset_id", "thumbnail_asset_id", "subtitle_asset_id"} {
				if id, ok := clip[key].(string); ok {
					add(id)
				}
			}
		}
	}
	return ids
}

func removeLocalFile(backend storage.Backend, uri string) {
	if storage.IsRemoteURI(uri) {
		return
	}
	if path, err := backend.ResolveLocalPath(uri); err == nil {
		os.Remove(path)
	}
}

// uploadPackage is the manifest bundled alongside a job's artifacts.
type uploadPackage struct {
	JobID   string   `json:"job_id"`
	JobType string   `json:"job_type"`
	Tags    []string `json:"tags"`
	Assets  []string `json:"assets"`
}

// HandleJobBundle streams a zip of the job record, its error (if any), its
// local artifacts, and an upload manifest.
func HandleJobBundle(st *store.Store, backend storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		job, err := st.GetJob(ctx, c.Param("id"))
		if err != nil {
			storeError(c, err, "job not found")
			return
		}

		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "job-"+job.ID+".zip"))
		zw := zip.NewWriter(c.Writer)
		defer zw.Close()

		if err := writeZipJSON(zw, "job.json", job); err != nil {
			return
		}
		if job.Error != "" {
			if w, err := zw.Create("error.txt"); err == nil {
				io.WriteString(w, job.Error)
			}
		}

		bundled := []string{}
		for _, id := range jobAssetIDs(job) {
			asset, err := st.GetAsset(ctx, id)
			if err != nil || storage.IsRemoteURI(asset.URI) {
				continue
			}
			path, err := backend.ResolveLocalPath(asset.URI)
			if err != nil {
				continue
			}
			name := "assets/" + filepath.Base(path)
			if err := writeZipFile(zw, name, path); err != nil {
				continue
			}
			bundled = append(bundled, name)
		}

		writeZipJSON(zw, "upload_package.json", uploadPackage{
			JobID:   job.ID,
			JobType: job.JobType,
			Tags:    []string{"reframe", "shorts"},
			Assets:  bundled,
		})
	}
}

func writeZipJSON(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeZipFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
