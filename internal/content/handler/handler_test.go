package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/researchlab/labsite/internal/admin"
	"github.com/researchlab/labsite/internal/content/repository"
	"github.com/researchlab/labsite/internal/content/service"
	"github.com/researchlab/labsite/internal/storage"
	"github.com/stretchr/testify/require"
)

// stubAuth admits requests carrying "Bearer ok".
func stubAuth(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer ok" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	c.Request = c.Request.WithContext(admin.WithPrincipal(c.Request.Context(), "admin"))
	c.Next()
}

type nopBlobs struct{ deleted []string }

func (n *nopBlobs) Put(context.Context, storage.Upload) (string, error) { return "", nil }
func (n *nopBlobs) Delete(_ context.Context, ref string) error {
	n.deleted = append(n.deleted, ref)
	return nil
}
func (n *nopBlobs) Owns(string) bool                         { return true }
func (n *nopBlobs) List(context.Context) ([]string, error) { return nil, nil }

func setup(t *testing.T) (*gin.Engine, *nopBlobs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gin.New()
	blobs := &nopBlobs{}
	RegisterContentRoutes(g, service.New(repository.NewMemoryRepo(), blobs), stubAuth)
	return g, blobs
}

func do(g *gin.Engine, method, path, body string, authed bool) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer ok")
	}
	g.ServeHTTP(w, req)
	return w
}

func TestContentHandler_CRUD(t *testing.T) {
	g, blobs := setup(t)

	// list empty
	w := do(g, http.MethodGet, "/data/newsData", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())

	// create
	w = do(g, http.MethodPost, "/data/newsData", `{"title":"A","imageSrc":["/uploads/1-a.png"]}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	var cr struct {
		Record map[string]any `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cr))
	id, _ := cr.Record["id"].(string)
	require.NotEmpty(t, id)

	// get
	w = do(g, http.MethodGet, "/data/newsData/"+id, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"title":"A"`)

	// update
	w = do(g, http.MethodPatch, "/data/newsData/"+id, `{"title":"B","imageSrc":[]}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"updatedData"`)
	require.Equal(t, []string{"/uploads/1-a.png"}, blobs.deleted)

	// delete
	w = do(g, http.MethodDelete, "/data/newsData/"+id, "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(g, http.MethodGet, "/data/newsData/"+id, "", false)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), `"message"`)
}

func TestContentHandler_RequiresAuth(t *testing.T) {
	g, _ := setup(t)

	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodPost, "/data/newsData", `{"title":"A"}`, false).Code)
	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodPatch, "/data/newsData/1", `{}`, false).Code)
	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodDelete, "/data/newsData/1", "", false).Code)

	w := do(g, http.MethodGet, "/data/newsData", "", false)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestContentHandler_Errors(t *testing.T) {
	g, _ := setup(t)

	// section absent
	require.Equal(t, http.StatusNotFound, do(g, http.MethodGet, "/data/newsData/1", "", false).Code)
	require.Equal(t, http.StatusNotFound, do(g, http.MethodPatch, "/data/newsData/1", `{"title":"x"}`, true).Code)

	// body must be an object
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPost, "/data/newsData", `[1,2]`, true).Code)
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPost, "/data/newsData", `not json`, true).Code)

	// variant validation
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPost, "/data/countersData", `{"value":"lots"}`, true).Code)

	// singleton
	w := do(g, http.MethodGet, "/data/logo", "", false)
	require.JSONEq(t, `{}`, w.Body.String())
	require.Equal(t, http.StatusOK, do(g, http.MethodPost, "/data/logo", `{"content":"Lab"}`, true).Code)
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodGet, "/data/logo/1", "", false).Code)
}
