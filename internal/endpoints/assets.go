package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reframe/internal/config"
	"reframe/internal/storage"
	"reframe/internal/store"
)

const uploadChunkSize = 1 << 20 // 1 MiB

// uploadMimePrefix maps the uploadable asset kinds to the content-type
// prefix each accepts. Derived kinds (transcription, image, shorts_manifest)
// are worker-produced and cannot be uploaded.
var uploadMimePrefix = map[string]string{
	store.AssetKindVideo:    "video/",
	store.AssetKindAudio:    "audio/",
	store.AssetKindSubtitle: "text/",
}

// HandleAssetUpload accepts a multipart upload and registers the asset.
func HandleAssetUpload(st *store.Store, backend storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := c.PostForm("kind")
		wantPrefix, ok := uploadMimePrefix[kind]
		if !ok {
			validationError(c, "kind must be video, audio or subtitle", gin.H{"kind": kind})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			validationError(c, "missing file part", nil)
			return
		}
		mimeType := fileHeader.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, wantPrefix) {
			validationError(c, "content type does not match kind", gin.H{
				"kind": kind, "content_type": mimeType, "expected_prefix": wantPrefix,
			})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			serverError(c, "failed to read upload")
			return
		}
		defer file.Close()

		tmpPath, size, err := spoolUpload(file, config.MaxUploadBytes)
		if err != nil {
			if err == errUploadTooLarge {
				abortError(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
					"upload exceeds the size limit", gin.H{"max_bytes": config.MaxUploadBytes})
				return
			}
			serverError(c, "failed to spool upload")
			return
		}
		defer os.Remove(tmpPath)

		filename := uuid.NewString() + strings.ToLower(filepath.Ext(fileHeader.Filename))
		uri, err := backend.WriteFile(c.Request.Context(), "tmp", filename, tmpPath, mimeType)
		if err != nil {
			serverError(c, "failed to store upload")
			return
		}

		asset, err := st.CreateAsset(c.Request.Context(), store.MediaAsset{
			Kind:     kind,
			URI:      uri,
			MimeType: mimeType,
		})
		if err != nil {
			serverError(c, "failed to register asset")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"asset": asset, "size_bytes": size})
	}
}

var errUploadTooLarge = fmt.Errorf("upload too large")

// spoolUpload copies the stream to a temp file in fixed chunks, enforcing
// maxBytes. An upload of exactly maxBytes is accepted.
func spoolUpload(src io.Reader, maxBytes int64) (string, int64, error) {
	tmp, err := os.CreateTemp("", "reframe-upload-*")
	if err != nil {
		return "", 0, err
	}
	defer tmp.Close()

	var total int64
	buf := make([]byte, uploadChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			total += int64(n)
			if maxBytes > 0 && total > maxBytes {
				os.Remove(tmp.Name())
				return "", 0, errUploadTooLarge
			}
			if _, err := tmp.Write(buf[:n]); err != nil {
				os.Remove(tmp.Name())
				return "", 0, err
			}
		}
		if readErr == io.EOF {
			return tmp.Name(), total, nil
		}
		if readErr != nil {
			os.Remove(tmp.Name())
			return "", 0, readErr
		}
	}
}

// HandleListAssets lists assets newest first, optionally filtered by kind.
func HandleListAssets(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := c.Query("kind")
		if kind != "" && !store.ValidAssetKind(kind) {
			validationError(c, "unknown asset kind", gin.H{"kind": kind})
			return
		}
		assets, err := st.ListAssets(c.Request.Context(), kind)
		if err != nil {
			serverError(c, "failed to list assets")
			return
		}
		c.JSON(http.StatusOK, gin.H{"assets": assets})
	}
}

// HandleGetAsset fetches one asset.
func HandleGetAsset(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := st.GetAsset(c.Request.Context(), c.Param("id"))
		if err != nil {
			storeError(c, err, "asset not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"asset": asset})
	}
}

// HandleDeleteAsset removes an asset unless a job references it.
func HandleDeleteAsset(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.DeleteAsset(c.Request.Context(), c.Param("id")); err != nil {
			storeError(c, err, "asset not found")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// HandleDownloadAsset streams local assets directly and redirects to the
// backend's download URL for remote ones.
func HandleDownloadAsset(st *store.Store, backend storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := st.GetAsset(c.Request.Context(), c.Param("id"))
		if err != nil {
			storeError(c, err, "asset not found")
			return
		}
		if !storage.IsRemoteURI(asset.URI) {
			path, err := backend.ResolveLocalPath(asset.URI)
			if err != nil {
				serverError(c, "failed to resolve asset path")
				return
			}
			if asset.MimeType != "" {
				c.Header("Content-Type", asset.MimeType)
			}
			c.File(path)
			return
		}
		url, err := backend.DownloadURL(c.Request.Context(), asset.URI)
		if err != nil {
			serverError(c, "failed to build download url")
			return
		}
		c.Redirect(http.StatusFound, url)
	}
}

// HandleAssetDownloadURL returns a fetchable URL for the asset, presigning
// when the backend requires it.
func HandleAssetDownloadURL(st *store.Store, backend storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := st.GetAsset(c.Request.Context(), c.Param("id"))
		if err != nil {
			storeError(c, err, "asset not found")
			return
		}
		url := asset.URI
		if c.Query("presign") != "false" {
			if url, err = backend.DownloadURL(c.Request.Context(), asset.URI); err != nil {
				serverError(c, "failed to build download url")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}
