package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/coldroom-service/pkg/logging"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	Setup(router, DefaultConfig("coldroom-test", logging.NewNop().Logger))
	router.NoRoute(NoRoute())
	return router
}

func TestCorrelationIDFallsBackToRequestID(t *testing.T) {
	router := newTestRouter()
	var fromCtx string
	router.GET("/ping", func(c *gin.Context) {
		fromCtx = logging.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-1", w.Header().Get(HeaderCorrelationID))
	assert.Equal(t, "req-1", fromCtx)
}

func TestCorrelationIDPropagated(t *testing.T) {
	router := newTestRouter()
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderCorrelationID, "corr-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "corr-7", w.Header().Get(HeaderCorrelationID))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.NotEqual(t, "corr-7", w.Header().Get(HeaderRequestID))
}

func TestLoggerLevelsAndSkipsProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	router := gin.New()
	router.Use(RequestID(), CorrelationID(), Logger(slog.New(slog.NewJSONHandler(&buf, nil))))
	router.GET("/api/cold-room", func(c *gin.Context) { c.Status(http.StatusConflict) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Zero(t, buf.Len())

	req := httptest.NewRequest(http.MethodGet, "/api/cold-room?action=boxes&coldRoomId=coldroom1", nil)
	req.Header.Set(HeaderRequestID, "req-9")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "HTTP request", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "boxes", line["action"])
	assert.Equal(t, "coldroom1", line["coldRoomId"])
	assert.Equal(t, "req-9", line["requestId"])
	assert.Equal(t, "req-9", line["correlationId"])
	assert.EqualValues(t, http.StatusConflict, line["status"])
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	router := newTestRouter()
	router.GET("/boom", func(*gin.Context) { panic("scale offline") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "INTERNAL_ERROR", env.Code)
	assert.NotEmpty(t, env.RequestID)
}

func TestNoRouteEnvelope(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/freezer", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "ROUTE_NOT_FOUND", env.Code)
}

func TestReadinessCheck(t *testing.T) {
	router := newTestRouter()
	storeDown := false
	router.GET("/ready", ReadinessCheck("coldroom-test", time.Second, map[string]func(context.Context) error{
		"store": func(context.Context) error {
			if storeDown {
				return errors.New("no reachable servers")
			}
			return nil
		},
		"locks": func(context.Context) error { return nil },
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	storeDown = true
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Failures map[string]string `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"store": "no reachable servers"}, body.Failures)
}
