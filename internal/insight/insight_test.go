package insight_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-peak-window/internal/errs"
	"go-peak-window/internal/fetch"
	"go-peak-window/internal/insight"
	"go-peak-window/internal/model"
)

func sampleRequest() insight.Request {
	return insight.Request{
		Subject:    "golang",
		WindowDays: 30,
		Top: []model.RankedWindow{
			{Day: "Sunday", Hour: 14, AverageScore: 22.5, FormattedTime: "Sunday 2PM"},
			{Day: "Monday", Hour: 9, AverageScore: 10, FormattedTime: "Monday 9AM"},
		},
		Summary: []model.HeatmapPoint{
			{Day: "Sunday", Hour: 14, AverageScore: 22.5, FormattedTime: "Sunday 2PM"},
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	p := insight.BuildPrompt(sampleRequest())
	assert.Contains(t, p, "community golang over the past 30 days")
	assert.Contains(t, p, "- Sunday 2PM: 22.50 avg score\n- Monday 9AM: 10.00 avg score")
	assert.Contains(t, p, "Sunday 2PM: 22.50")
}

func TestNop(t *testing.T) {
	text, err := insight.Nop{}.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, text)
}

func newClient(t *testing.T) *fetch.Client {
	t.Helper()
	cl, err := fetch.New(fetch.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	return cl
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Temperature float64 `json:"temperature"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4", body.Model)
		assert.InDelta(t, 0.7, body.Temperature, 1e-9)
		if assert.Len(t, body.Messages, 1) {
			assert.Contains(t, body.Messages[0].Content, "golang")
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Post on Sunday afternoons.\n"}}]}`))
	}))
	defer srv.Close()

	g, err := insight.NewOpenAI(newClient(t), insight.OpenAIConfig{URL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	text, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Post on Sunday afternoons.", text)
}

func TestOpenAI_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	for _, path := range []string{"/empty", "/limited"} {
		g, err := insight.NewOpenAI(newClient(t), insight.OpenAIConfig{URL: srv.URL + path, APIKey: "k"})
		require.NoError(t, err)
		_, err = g.Generate(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, errs.ErrInsightUnavailable, path)
	}
}

func TestOpenAI_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := insight.NewOpenAI(newClient(t), insight.OpenAIConfig{})
	assert.Error(t, err)
}

func TestGemini_RequiresKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := insight.NewGemini(context.Background(), insight.GeminiConfig{})
	assert.Error(t, err)
}
