package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/profiles"
	"github.com/sharedcode/profiles/inmemory"
	"github.com/sharedcode/profiles/lockstore"
)

type save struct {
	Coins int `json:"coins"`
	Level int `json:"level"`
}

func newRouter(t *testing.T, validator profiles.Validator) (*gin.Engine, *profiles.Manager[save, lockstore.Metadata]) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := lockstore.New(inmemory.NewLocker(), inmemory.NewBlobStore(), lockstore.Options{})
	mgr, err := profiles.NewManager[save, lockstore.Metadata](store, profiles.ManagerOptions[save]{
		StoreName:  "PlayerData",
		Template:   save{Level: 1},
		RetryDelay: 5 * time.Millisecond,
		Validator:  validator,
	})
	require.NoError(t, err)

	router := gin.New()
	require.NoError(t, Register(router.Group("/api/v1"), mgr, nil))
	return router, mgr
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) ProfileResponse[save, lockstore.Metadata] {
	t.Helper()
	var r ProfileResponse[save, lockstore.Metadata]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func TestProfileLifecycle(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := do(router, http.MethodGet, "/api/v1/profiles/p1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPost, "/api/v1/profiles/p1/load", "")
	require.Equal(t, http.StatusOK, w.Code)
	r := decode(t, w)
	assert.Equal(t, "p1", r.Key)
	assert.Equal(t, save{Level: 1}, r.Data)
	assert.False(t, r.ViewOnly)

	w = do(router, http.MethodPut, "/api/v1/profiles/p1", `{"coins":50,"level":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, save{Coins: 50, Level: 2}, decode(t, w).Data)

	w = do(router, http.MethodPost, "/api/v1/profiles/p1/save", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/profiles", "")
	require.Equal(t, http.StatusOK, w.Code)
	var keys []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	assert.Equal(t, []string{"p1"}, keys)

	w = do(router, http.MethodDelete, "/api/v1/profiles/p1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(router, http.MethodDelete, "/api/v1/profiles/p1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/api/v1/profiles/p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	r = decode(t, w)
	assert.True(t, r.ViewOnly)
	assert.Equal(t, save{Coins: 50, Level: 2}, r.Data)
	assert.Equal(t, int64(2), r.Metadata.Version)
}

func TestNotLoadedConflicts(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := do(router, http.MethodPut, "/api/v1/profiles/p1", `{"coins":1}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(router, http.MethodPost, "/api/v1/profiles/p1/save", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(router, http.MethodPut, "/api/v1/profiles/p1", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveValidationFailure(t *testing.T) {
	router, _ := newRouter(t, profiles.ValidatorFunc(func(payload []byte) error {
		if strings.Contains(string(payload), `"coins":-`) {
			return assert.AnError
		}
		return nil
	}))

	require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/profiles/p1/load", "").Code)
	require.Equal(t, http.StatusOK, do(router, http.MethodPut, "/api/v1/profiles/p1", `{"coins":-5}`).Code)
	w := do(router, http.MethodPost, "/api/v1/profiles/p1/save", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUnloadValidationFailureKeepsProfileLoaded(t *testing.T) {
	router, mgr := newRouter(t, profiles.ValidatorFunc(func(payload []byte) error {
		if strings.Contains(string(payload), `"coins":-`) {
			return assert.AnError
		}
		return nil
	}))

	require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/profiles/p1/load", "").Code)
	require.Equal(t, http.StatusOK, do(router, http.MethodPut, "/api/v1/profiles/p1", `{"coins":-5}`).Code)
	w := do(router, http.MethodDelete, "/api/v1/profiles/p1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"p1"}, mgr.Keys())
}

func TestDeleteAndSessionStatus(t *testing.T) {
	router, _ := newRouter(t, nil)

	session := func() profiles.SessionStatus {
		w := do(router, http.MethodGet, "/api/v1/profiles/p1/session", "")
		require.Equal(t, http.StatusOK, w.Code)
		var st profiles.SessionStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
		return st
	}
	assert.Equal(t, profiles.SessionStatus{}, session())

	w := do(router, http.MethodDelete, "/api/v1/profiles/p1/data", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/profiles/p1/load", "").Code)
	require.Equal(t, http.StatusOK, do(router, http.MethodPut, "/api/v1/profiles/p1", `{"coins":3}`).Code)
	require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/profiles/p1/save", "").Code)
	assert.Equal(t, profiles.SessionStatus{Loaded: true, Owned: true, Locked: true}, session())

	w = do(router, http.MethodDelete, "/api/v1/profiles/p1/data", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, profiles.SessionStatus{}, session())
	w = do(router, http.MethodGet, "/api/v1/profiles/p1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClosedManager(t *testing.T) {
	router, mgr := newRouter(t, nil)
	require.NoError(t, mgr.Close(t.Context()))

	w := do(router, http.MethodPost, "/api/v1/profiles/p1/load", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestVerifyBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	serve := func(cfg Config, header string) int {
		router := gin.New()
		router.GET("/", VerifyBearer(cfg), ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(Config{Env: "DEV"}, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(Config{}, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(Config{}, "Basic Zm9vOmJhcg=="))
	assert.Equal(t, http.StatusOK, serve(Config{Env: "QA", QAToken: "secret"}, "Bearer secret"))
}
