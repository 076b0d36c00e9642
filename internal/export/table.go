package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"go-peak-window/internal/model"
)

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Format.Footer = text.FormatDefault
	return tbl
}

// ResultTable 输出最佳时段表格、样本统计与洞察文本。
func ResultTable(w io.Writer, subject string, res model.AnalysisResult) {
	tbl := newTable(w)
	tbl.SetTitle(fmt.Sprintf("%s: best times to post", subject))
	tbl.AppendHeader(table.Row{"#", "Time", "Avg score"})
	for i, bt := range res.BestTimes {
		tbl.AppendRow(table.Row{i + 1, bt.FormattedTime, strconv.FormatFloat(bt.AverageScore, 'f', 2, 64)})
	}
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%s items", humanize.Comma(int64(res.ItemCount))),
		fmt.Sprintf("%d slots", len(res.Heatmap))})
	tbl.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	tbl.Render()
	if res.Insight != "" {
		fmt.Fprintf(w, "\n%s\n", res.Insight)
	}
	if !res.GeneratedAt.IsZero() {
		fmt.Fprintf(w, "generated %s\n", humanize.Time(res.GeneratedAt))
	}
}

// BatchTable 每个主体一行：最佳时段或错误。
func BatchTable(w io.Writer, b model.BatchResult) {
	tbl := newTable(w)
	tbl.SetTitle(fmt.Sprintf("batch %s (%d days)", b.ID, b.Days))
	tbl.AppendHeader(table.Row{"Subject", "#1", "#2", "#3", "Items", "Error"})
	for _, r := range b.Results {
		row := table.Row{r.Subject, "", "", "", "", r.Error}
		if r.Result != nil {
			for i, bt := range r.Result.BestTimes {
				if i < 3 {
					row[i+1] = bt.FormattedTime
				}
			}
			row[4] = humanize.Comma(int64(r.Result.ItemCount))
		}
		tbl.AppendRow(row)
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d subjects", len(b.Results)), "", "", "", "", fmt.Sprintf("%d failed", b.Failed())})
	tbl.Render()
}
