package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-peak-window/internal/batch"
	"go-peak-window/internal/errs"
	"go-peak-window/internal/metrics"
	"go-peak-window/internal/model"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeAnalyzer struct {
	gotSubject string
	gotDays    int
	err        error
}

func sunday2PM() model.AnalysisResult {
	return model.AnalysisResult{
		Heatmap:   []model.HeatmapPoint{{DayIndex: 0, Day: "Sunday", Hour: 14, AverageScore: 17.5, FormattedTime: "Sunday 2PM"}},
		BestTimes: []model.RankedWindow{{DayIndex: 0, Day: "Sunday", Hour: 14, AverageScore: 17.5, FormattedTime: "Sunday 2PM"}},
		ItemCount: 2,
	}
}

func (f *fakeAnalyzer) AnalyzeOne(_ context.Context, subject string, days int) (model.AnalysisResult, error) {
	f.gotSubject, f.gotDays = subject, days
	if f.err != nil {
		return model.AnalysisResult{}, f.err
	}
	return sunday2PM(), nil
}

func (f *fakeAnalyzer) AnalyzeBatch(_ context.Context, subjects []string, days int) (model.BatchResult, error) {
	f.gotDays = days
	cleaned, err := batch.New(nil, batch.Options{}).Validate(subjects, days)
	if err != nil {
		return model.BatchResult{}, err
	}
	out := model.BatchResult{ID: "b", Days: days}
	for _, s := range cleaned {
		if s == "broken" {
			out.Results = append(out.Results, model.SubjectResult{Subject: s, Error: "upstream status 500", ErrorKind: errs.KindUpstream})
			continue
		}
		res := sunday2PM()
		out.Results = append(out.Results, model.SubjectResult{Subject: s, Result: &res})
	}
	return out, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestAnalyzeOne(t *testing.T) {
	fa := &fakeAnalyzer{}
	h := New(fa, Options{}).Handler()

	code, env := do(t, h, http.MethodGet, "/api/analyze?subreddit=golang", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "golang", fa.gotSubject)
	assert.Equal(t, DefaultDays, fa.gotDays)
	var res model.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "Sunday 2PM", res.BestTimes[0].FormattedTime)

	code, env = do(t, h, http.MethodGet, "/api/analyze?subreddit=golang&days=7&tz=America/New_York", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 7, fa.gotDays)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "Sunday 9AM EST", res.BestTimes[0].FormattedTime)
}

func TestAnalyzeOne_BadInput(t *testing.T) {
	h := New(&fakeAnalyzer{}, Options{}).Handler()
	for _, target := range []string{
		"/api/analyze",
		"/api/analyze?subreddit=golang&days=0",
		"/api/analyze?subreddit=golang&days=-3",
		"/api/analyze?subreddit=golang&days=abc",
	} {
		code, env := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, code, target)
		assert.Equal(t, errs.KindValidation, env.Kind, target)
	}
}

func TestAnalyzeOne_ErrorMapping(t *testing.T) {
	cases := map[error]int{
		errs.ErrNoData:                    http.StatusNotFound,
		errs.Upstream(403, nil):           http.StatusBadGateway,
		errs.ErrTimeout:                   http.StatusGatewayTimeout,
		context.Canceled:                  http.StatusInternalServerError,
		errs.Validation("subject empty"): http.StatusBadRequest,
	}
	for err, want := range cases {
		h := New(&fakeAnalyzer{err: err}, Options{}).Handler()
		code, env := do(t, h, http.MethodGet, "/api/analyze?subreddit=x", "")
		assert.Equal(t, want, code, err.Error())
		assert.Equal(t, want, env.Code)
		assert.NotEmpty(t, env.Message)
	}
}

func TestAnalyzeBatch(t *testing.T) {
	fa := &fakeAnalyzer{}
	h := New(fa, Options{}).Handler()

	code, env := do(t, h, http.MethodPost, "/api/bulk-analyze", `{"subreddits":["Golang","broken","golang"],"days":14}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 14, fa.gotDays)
	var b model.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &b))
	require.Len(t, b.Results, 2)
	assert.Equal(t, "golang", b.Results[0].Subject)
	assert.NotNil(t, b.Results[0].Result)
	assert.Equal(t, errs.KindUpstream, b.Results[1].ErrorKind)

	_, _ = do(t, h, http.MethodPost, "/api/bulk-analyze", `{"subreddits":["a"]}`)
	assert.Equal(t, DefaultDays, fa.gotDays)
}

func TestAnalyzeBatch_BadInput(t *testing.T) {
	h := New(&fakeAnalyzer{}, Options{}).Handler()
	for _, body := range []string{
		`{"subreddits":[]}`,
		`{"subreddits":["a","b","c","d","e","f","g","h","i","j","k"]}`,
		`{"subreddits":["a"],"days":0}`,
		`not json`,
	} {
		code, env := do(t, h, http.MethodPost, "/api/bulk-analyze", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.Equal(t, errs.KindValidation, env.Kind, body)
	}
}

func TestRateLimit(t *testing.T) {
	h := New(&fakeAnalyzer{}, Options{RateLimit: 2, RateWindow: time.Minute}).Handler()
	for i := 0; i < 2; i++ {
		code, _ := do(t, h, http.MethodGet, "/api/analyze?subreddit=a", "")
		assert.Equal(t, http.StatusOK, code)
	}
	code, env := do(t, h, http.MethodGet, "/api/analyze?subreddit=a", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)

	code, _ = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code, "health is not rate limited")
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }
	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"))
	now = now.Add(time.Second)
	assert.True(t, rl.allow("1.1.1.1"))
	now = now.Add(2 * time.Second)
	rl.sweep()
	assert.Empty(t, rl.requests)
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := New(&fakeAnalyzer{}, Options{Metrics: m}).Handler()
	code, _ := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	_, _ = do(t, h, http.MethodGet, "/api/analyze?subreddit=golang", "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `peak_window_http_requests_total{route="/api/analyze",status="200"} 1`)
}

func TestParseDays(t *testing.T) {
	n, err := parseDays("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDays, n)
	n, err = parseDays(" 90 ")
	require.NoError(t, err)
	assert.Equal(t, 90, n)
	_, err = parseDays("1.5")
	assert.ErrorIs(t, err, errs.ErrValidation)
}
