package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteRequest struct {
	Symbol string `query:"symbol" validate:"required,upper"`
	Limit  int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

type quotes struct{}

func (quotes) Register(g *echo.Group) {
	g.GET("/quotes", func(c echo.Context) error {
		req := &quoteRequest{}
		if verr := ReadAndValidateRequest(c, req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return ListResponse(c, []string{req.Symbol}, int64(req.Limit))
	})
	g.POST("/jobs", func(c echo.Context) error { return AcceptedResponse(c, "job-1") })
	g.GET("/busy", func(c echo.Context) error {
		return AppErrorResponse(c, RateLimitedError("slow down", 3))
	})
	g.GET("/down", func(c echo.Context) error { return AppErrorResponse(c, UnavailableError("feed disabled")) })
	g.GET("/panic", func(c echo.Context) error { panic("boom") })
}

func init() {
	if err := RegisterValidation("upper", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == strings.ToUpper(s)
	}, "%s must be upper case"); err != nil {
		panic(err)
	}
}

func newTestServer(opts ...ServerOption) *Server {
	return NewServer(Mount("/v1", quotes{}), opts...)
}

func serve(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	var out APIResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestEnvelopeAlwaysHTTP200(t *testing.T) {
	s := newTestServer()

	rec, res := serve(t, s, httptest.NewRequest(http.MethodGet, "/v1/quotes?symbol=AAPL", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"rows":["AAPL"],"total":10}`, mustJSON(t, res.Data))

	rec, res = serve(t, s, httptest.NewRequest(http.MethodPost, "/v1/jobs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.JSONEq(t, `{"job_id":"job-1"}`, mustJSON(t, res.Data))

	_, res = serve(t, s, httptest.NewRequest(http.MethodGet, "/v1/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
}

func TestPanicBecomesEnvelope(t *testing.T) {
	rec, res := serve(t, newTestServer(), httptest.NewRequest(http.MethodGet, "/v1/panic", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "Internal Server Error", res.Message)
}

func TestValidationErrorsUseWireNames(t *testing.T) {
	s := newTestServer()

	_, res := serve(t, s, httptest.NewRequest(http.MethodGet, "/v1/quotes?symbol=aapl&limit=500", nil))
	require.Equal(t, http.StatusBadRequest, res.Status)
	var errs []ValidationError
	require.NoError(t, json.Unmarshal([]byte(mustJSON(t, res.Data)), &errs))
	require.Len(t, errs, 2)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "ERR_UPPER", byField["symbol"].Code)
	assert.Equal(t, "symbol must be upper case", byField["symbol"].Message)
	assert.Equal(t, "ERR_LTE", byField["limit"].Code)
	assert.Equal(t, "100", byField["limit"].Params["max"])
}

func TestRateLimitedSetsRetryAfter(t *testing.T) {
	rec, res := serve(t, newTestServer(), httptest.NewRequest(http.MethodGet, "/v1/busy", nil))
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "3", rec.Header().Get(echo.HeaderRetryAfter))
}

func TestCORS(t *testing.T) {
	s := newTestServer(WithCORSOrigins([]string{"https://app.example"}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/quotes", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec, _ := serve(t, s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPatch)
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))

	req = httptest.NewRequest(http.MethodGet, "/v1/quotes?symbol=AAPL", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec, _ = serve(t, s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))
}

func TestUnmatchedRouteIs404(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartBindsAndStops(t *testing.T) {
	s := newTestServer(WithAddr("127.0.0.1", 0), WithTimeouts(time.Second, time.Second, time.Second))
	assert.Nil(t, s.Addr())
	require.NoError(t, s.Start())

	url := "http://" + s.Addr().String() + "/v1/quotes?symbol=AAPL"
	require.Eventually(t, func() bool {
		res, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))

	taken := newTestServer(WithAddr("127.0.0.1", 0))
	require.NoError(t, taken.Start())
	defer taken.Stop(context.Background())
	port := taken.Addr().(*net.TCPAddr).Port
	assert.Error(t, newTestServer(WithAddr("127.0.0.1", port)).Start())
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
