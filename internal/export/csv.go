package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"go-peak-window/internal/model"
)

var resultHeader = []string{"subject", "day", "hour", "average_score", "formatted_time", "rank"}

// ResultCSV 每个热力图时段一行；rank 为该时段在最佳时段中的名次（1 起），不在其中则为空。
func ResultCSV(w io.Writer, subject string, res model.AnalysisResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultHeader); err != nil {
		return err
	}
	if err := writeRows(cw, subject, res, nil); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// BatchCSV 在 ResultCSV 的列之后追加 error 列；失败的主体输出一行仅含 subject 与 error。
func BatchCSV(w io.Writer, b model.BatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, resultHeader...), "error")); err != nil {
		return err
	}
	for _, r := range b.Results {
		if r.Result == nil {
			if err := cw.Write([]string{r.Subject, "", "", "", "", "", r.Error}); err != nil {
				return err
			}
			continue
		}
		if err := writeRows(cw, r.Subject, *r.Result, []string{""}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeRows(cw *csv.Writer, subject string, res model.AnalysisResult, tail []string) error {
	ranks := rankIndex(res)
	for _, p := range res.Heatmap {
		rank := ""
		if n, ok := ranks[[2]int{p.DayIndex, p.Hour}]; ok {
			rank = strconv.Itoa(n)
		}
		row := []string{
			subject,
			p.Day,
			strconv.Itoa(p.Hour),
			strconv.FormatFloat(p.AverageScore, 'f', 2, 64),
			p.FormattedTime,
			rank,
		}
		if err := cw.Write(append(row, tail...)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	return nil
}

func rankIndex(res model.AnalysisResult) map[[2]int]int {
	m := make(map[[2]int]int, len(res.BestTimes))
	for i, w := range res.BestTimes {
		m[[2]int{w.DayIndex, w.Hour}] = i + 1
	}
	return m
}
