package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/hostelpass/internal/observability"
)

func TestLoggingMiddlewareSkipsQuietPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggingMiddleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/metrics", ok)
	r.GET("/healthz", ok)
	r.GET("/v1/echo", ok)

	before := testutil.CollectAndCount(observability.HTTPRequestDuration)

	for _, path := range []string{"/metrics", "/healthz"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, before, testutil.CollectAndCount(observability.HTTPRequestDuration),
		"quiet paths must not land in the histogram")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/echo", nil))
	assert.Equal(t, before+1, testutil.CollectAndCount(observability.HTTPRequestDuration))
}
