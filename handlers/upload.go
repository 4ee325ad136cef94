package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/researchlab/labsite/internal/apierror"
	"github.com/researchlab/labsite/internal/content/service"
	"github.com/researchlab/labsite/internal/storage"
	"github.com/researchlab/labsite/pkg/logger"
	"github.com/researchlab/labsite/pkg/metrics"
)

// multipartOverhead is the slack allowed on top of the file limit for form
// boundaries and headers.
const multipartOverhead = 64 << 10

// UploadHandler serves the image upload side channel.
type UploadHandler struct {
	store    storage.Store
	content  *service.Service
	maxBytes int64
}

func NewUploadHandler(store storage.Store, content *service.Service, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = storage.DefaultMaxBytes
	}
	return &UploadHandler{store: store, content: content, maxBytes: maxBytes}
}

// Register mounts /upload. Every endpoint requires the admin.
func (h *UploadHandler) Register(rg gin.IRouter, auth gin.HandlerFunc) {
	u := rg.Group("/upload", auth)
	u.POST("", h.Upload)
	u.DELETE("", h.Delete)
	u.POST("/sweep", h.Sweep)
}

// Upload stores the multipart field "file" and returns {imageUrl}.
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			err = fmt.Errorf("%w: limit is %s", storage.ErrTooLarge, humanize.IBytes(uint64(h.maxBytes)))
		case errors.Is(err, http.ErrMissingFile):
			err = storage.ErrEmpty
		default:
			metrics.UploadRejected.WithLabelValues("malformed").Inc()
			apierror.Handle(c, apierror.BadRequest(err))
			return
		}
		h.reject(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	defer f.Close()
	// one byte past the limit is enough for the gate to reject it
	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		apierror.Handle(c, apierror.Internal(err))
		return
	}

	ref, err := h.store.Put(c.Request.Context(), storage.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.reject(c, err)
		return
	}
	metrics.UploadBytes.Observe(float64(len(data)))
	logger.Infof("stored upload %s (%s)", ref, humanize.IBytes(uint64(len(data))))
	c.JSON(http.StatusOK, gin.H{"imageUrl": ref})
}

// reject counts refused uploads by reason; backend failures pass through uncounted.
func (h *UploadHandler) reject(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		metrics.UploadRejected.WithLabelValues("too_large").Inc()
	case errors.Is(err, storage.ErrInvalidType):
		metrics.UploadRejected.WithLabelValues("invalid_type").Inc()
	case errors.Is(err, storage.ErrEmpty):
		metrics.UploadRejected.WithLabelValues("empty").Inc()
	}
	apierror.Handle(c, err)
}

// Delete removes the blob named by {imageUrl}.
func (h *UploadHandler) Delete(c *gin.Context) {
	var req struct {
		ImageURL string `json:"imageUrl" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Handle(c, apierror.BadRequest(err))
		return
	}
	if err := h.store.Delete(c.Request.Context(), req.ImageURL); err != nil {
		apierror.Handle(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully"})
}

// Sweep reports, and unless dryRun=true deletes, blobs no record references.
// grace (a Go duration, default 1h) protects uploads not yet saved into a record.
func (h *UploadHandler) Sweep(c *gin.Context) {
	dryRun, err := strconv.ParseBool(c.DefaultQuery("dryRun", "false"))
	if err != nil {
		apierror.Handle(c, apierror.BadRequest(err))
		return
	}
	grace := service.DefaultSweepGrace
	if g := c.Query("grace"); g != "" {
		if grace, err = time.ParseDuration(g); err != nil {
			apierror.Handle(c, apierror.BadRequest(err))
			return
		}
	}
	rep, err := h.content.Sweep(c.Request.Context(), dryRun, grace)
	if err != nil {
		apierror.Handle(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
