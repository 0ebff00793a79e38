package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/scenequery/api"
	"github.com/aukilabs/scenequery/geom"
	"github.com/aukilabs/scenequery/models"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func unitBox(x, y, z float32) geom.AABB {
	return geom.NewAABB(mgl32.Vec3{x, y, z}, mgl32.Vec3{x + 1, y + 1, z + 1})
}

func TestMetricsPathFormatter(t *testing.T) {
	tests := []struct {
		status int
		path   string
		want   string
	}{
		{http.StatusOK, "/health", "/health"},
		{http.StatusOK, "/scenes", "/scenes"},
		{http.StatusCreated, "/scenes/tedx1/objects", "/scenes/{id}/objects"},
		{http.StatusOK, "/scenes/tedx2a", "/scenes/{id}"},
		{http.StatusNotFound, "/scenes/tedx2a", ""},
		{http.StatusBadRequest, "/scenes/tedx2a/raycast", ""},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			require.Equal(t, test.want, MetricsPathFormatter(test.status, test.path))
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		errType string
		status  int
	}{
		{api.ErrTypeInvalidRequest, http.StatusBadRequest},
		{pruner.ErrTypeInvalidBox, http.StatusBadRequest},
		{models.ErrTypeSceneNotFound, http.StatusNotFound},
		{models.ErrTypeObjectNotFound, http.StatusNotFound},
		{pruner.ErrTypeDuplicatePayload, http.StatusConflict},
		{pruner.ErrTypeCapacityExceeded, http.StatusInsufficientStorage},
		{"", http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.errType, func(t *testing.T) {
			err := errors.New("test").WithType(test.errType)
			require.Equal(t, test.status, StatusCode(err))
		})
	}
}

func TestHandleWithCORS(t *testing.T) {
	var called bool
	h := HandleWithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/scenes", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.False(t, called)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scenes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, called)
}

func TestHandleReadyCheck(t *testing.T) {
	ready := false
	h := HandleReadyCheck(func() bool { return ready })

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	ready = true
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
