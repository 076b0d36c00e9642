package export_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-peak-window/internal/export"
	"go-peak-window/internal/model"
)

func sample() model.AnalysisResult {
	return model.AnalysisResult{
		Heatmap: []model.HeatmapPoint{
			{Day: "Sunday", DayIndex: 0, Hour: 14, AverageScore: 17.5, FormattedTime: "Sunday 2PM"},
			{Day: "Monday", DayIndex: 1, Hour: 9, AverageScore: 3, FormattedTime: "Monday 9AM"},
			{Day: "Friday", DayIndex: 5, Hour: 0, AverageScore: 20, FormattedTime: "Friday 12AM"},
		},
		BestTimes: []model.RankedWindow{
			{Day: "Friday", DayIndex: 5, Hour: 0, AverageScore: 20, FormattedTime: "Friday 12AM"},
			{Day: "Sunday", DayIndex: 0, Hour: 14, AverageScore: 17.5, FormattedTime: "Sunday 2PM"},
		},
		Insight:     "Post late on Thursdays.",
		ItemCount:   1234,
		GeneratedAt: time.Now().Add(-time.Hour),
	}
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestResultCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.ResultCSV(&buf, "golang", sample()))
	rows := readCSV(t, buf.String())
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"subject", "day", "hour", "average_score", "formatted_time", "rank"}, rows[0])
	assert.Equal(t, []string{"golang", "Sunday", "14", "17.50", "Sunday 2PM", "2"}, rows[1])
	assert.Equal(t, "", rows[2][5])
	assert.Equal(t, "1", rows[3][5])
}

func TestBatchCSV(t *testing.T) {
	res := sample()
	b := model.BatchResult{ID: "b1", Days: 30, Results: []model.SubjectResult{
		{Subject: "golang", Result: &res},
		{Subject: "private", Error: "upstream status 403: Forbidden", ErrorKind: "upstream"},
	}}
	var buf bytes.Buffer
	require.NoError(t, export.BatchCSV(&buf, b))
	rows := readCSV(t, buf.String())
	require.Len(t, rows, 5)
	assert.Equal(t, "error", rows[0][6])
	assert.Equal(t, "", rows[1][6])
	assert.Equal(t, []string{"private", "", "", "", "", "", "upstream status 403: Forbidden"}, rows[4])
}

func TestJSONIndented(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.JSON(&buf, sample()))
	assert.Contains(t, buf.String(), "\n  \"heatmap\": [")
	var back model.AnalysisResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "Sunday 2PM", back.Heatmap[0].FormattedTime)
}

func TestToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, export.ToFile(path, func(w io.Writer) error { return export.JSON(w, map[string]int{"a": 1}) }))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	assert.Error(t, export.ToFile(filepath.Join(t.TempDir(), "missing", "x.json"), func(io.Writer) error { return nil }))
}

func TestTables(t *testing.T) {
	var buf bytes.Buffer
	export.ResultTable(&buf, "golang", sample())
	out := buf.String()
	assert.Contains(t, out, "Friday 12AM")
	assert.Contains(t, out, "1,234 items")
	assert.Contains(t, out, "Post late on Thursdays.")
	assert.Contains(t, out, "1 hour ago")

	res := sample()
	buf.Reset()
	export.BatchTable(&buf, model.BatchResult{ID: "b1", Days: 7, Results: []model.SubjectResult{
		{Subject: "golang", Result: &res},
		{Subject: "empty", Error: "no data", ErrorKind: "no_data"},
	}})
	out = buf.String()
	assert.Contains(t, out, "golang")
	assert.Contains(t, out, "no data")
	assert.Contains(t, out, "1 failed")
}
