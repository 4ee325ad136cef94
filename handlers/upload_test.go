package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/researchlab/labsite/internal/admin"
	"github.com/researchlab/labsite/internal/content"
	"github.com/researchlab/labsite/internal/content/repository"
	"github.com/researchlab/labsite/internal/content/service"
	"github.com/researchlab/labsite/internal/storage"
	"github.com/researchlab/labsite/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func png(n int) []byte {
	out := make([]byte, n)
	copy(out, pngHeader)
	return out
}

func allowAdmin(c *gin.Context) {
	c.Request = c.Request.WithContext(admin.WithPrincipal(c.Request.Context(), "admin"))
	c.Next()
}

type uploadFixture struct {
	g     *gin.Engine
	dir   string
	svc   *service.Service
	store *storage.LocalStore
}

func newUploadFixture(t *testing.T, maxBytes int64) uploadFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := filepath.Join(t.TempDir(), "uploads")
	store := storage.NewLocalStore(dir, "/uploads/", maxBytes)
	svc := service.New(repository.NewMemoryRepo(), store)
	g := gin.New()
	NewUploadHandler(store, svc, maxBytes).Register(g, allowAdmin)
	return uploadFixture{g: g, dir: dir, svc: svc, store: store}
}

func multipartBody(t *testing.T, field, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", contentType)
	pw, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = pw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, g *gin.Engine, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "file", name, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestUploadStoresImage(t *testing.T) {
	f := newUploadFixture(t, storage.DefaultMaxBytes)

	w := upload(t, f.g, "team photo.png", "image/png", png(1024))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got struct {
		ImageURL string `json:"imageUrl"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.True(t, strings.HasPrefix(got.ImageURL, "/uploads/"))
	require.True(t, strings.HasSuffix(got.ImageURL, "-team_photo.png"))

	_, err := os.Stat(filepath.Join(f.dir, strings.TrimPrefix(got.ImageURL, "/uploads/")))
	require.NoError(t, err)
}

func TestUploadRejections(t *testing.T) {
	f := newUploadFixture(t, 4096)
	before := testutil.ToFloat64(metrics.UploadRejected.WithLabelValues("invalid_type"))

	// declared non-image, any size
	w := upload(t, f.g, "a.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "only images are allowed")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.UploadRejected.WithLabelValues("invalid_type")))

	// over the limit but inside the multipart slack
	w = upload(t, f.g, "big.png", "image/png", png(8192))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// far over the limit, cut off by the body reader
	w = upload(t, f.g, "huge.png", "image/png", png(1<<20))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// missing file field
	body, ct := multipartBody(t, "other", "a.png", "image/png", png(100))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	f.g.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// nothing was written
	_, err := os.Stat(f.dir)
	assert.True(t, os.IsNotExist(err))
}

func deleteUpload(g *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodDelete, "/upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestDeleteUpload(t *testing.T) {
	f := newUploadFixture(t, storage.DefaultMaxBytes)
	ref, err := f.store.Put(context.Background(), storage.Upload{Name: "a.png", ContentType: "image/png", Data: png(64)})
	require.NoError(t, err)

	w := deleteUpload(f.g, `{"imageUrl":"`+ref+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = deleteUpload(f.g, `{"imageUrl":"`+ref+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// foreign references are ignored
	w = deleteUpload(f.g, `{"imageUrl":"https://cdn.example.org/a.png"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = deleteUpload(f.g, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSweepEndpoint(t *testing.T) {
	f := newUploadFixture(t, storage.DefaultMaxBytes)
	ctx := admin.WithPrincipal(context.Background(), "admin")
	kept, err := f.store.Put(ctx, storage.Upload{Name: "kept.png", ContentType: "image/png", Data: png(64)})
	require.NoError(t, err)
	orphan, err := f.store.Put(ctx, storage.Upload{Name: "orphan.png", ContentType: "image/png", Data: png(64)})
	require.NoError(t, err)
	_, err = f.svc.Append(ctx, "bannerData", content.Record{"title": "b", "image": kept})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/upload/sweep?dryRun=true&grace=0s", nil)
	w := httptest.NewRecorder()
	f.g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rep service.SweepReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, []string{orphan}, rep.Orphans)
	assert.True(t, rep.DryRun)

	req = httptest.NewRequest(http.MethodPost, "/upload/sweep?grace=0s", nil)
	w = httptest.NewRecorder()
	f.g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	refs, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{kept}, refs)

	req = httptest.NewRequest(http.MethodPost, "/upload/sweep?dryRun=maybe", nil)
	w = httptest.NewRecorder()
	f.g.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
