// 包 heatmap 将原始条目按 UTC 的 (星期,小时) 分桶，生成热力图与最佳时段排行。
// 纯函数实现：无 I/O、无状态。
package heatmap

import (
	"fmt"
	"sort"
	"time"

	"go-peak-window/internal/model"
)

// TopN 为最佳时段排行保留的条数。
const TopN = 3

// DayNames 按 time.Weekday 顺序（周日为 0）。
var DayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Slot 为聚合键：UTC 星期 (0..6) 与小时 (0..23)。
type Slot struct {
	Day  int
	Hour int
}

// Bucket 为单个时段的累加器，Count 恒 >= 1（首次观测时才创建）。
type Bucket struct {
	Slot  Slot
	Total float64
	Count int
}

// Average 返回平均互动分。
func (b Bucket) Average() float64 { return b.Total / float64(b.Count) }

// Result 为聚合输出。
type Result struct {
	Heatmap   []model.HeatmapPoint
	BestTimes []model.RankedWindow
}

// SlotOf 计算时间戳（秒）所在的 UTC 时段。
func SlotOf(epochSeconds int64) Slot {
	t := time.Unix(epochSeconds, 0).UTC()
	return Slot{Day: int(t.Weekday()), Hour: t.Hour()}
}

// Engagement 返回条目互动值 score + comments。
func Engagement(it model.RawItem) float64 { return it.Score + it.Comments }

// Buckets 按首次出现的顺序返回所有已观测时段的累加器。
func Buckets(items []model.RawItem) []Bucket {
	index := make(map[Slot]int)
	var out []Bucket
	for _, it := range items {
		s := SlotOf(it.CreatedAt)
		i, ok := index[s]
		if !ok {
			i = len(out)
			index[s] = i
			out = append(out, Bucket{Slot: s})
		}
		out[i].Total += Engagement(it)
		out[i].Count++
	}
	return out
}

// Aggregate 生成热力图（每个已观测时段一个点，按首次出现顺序）与前 TopN 最佳时段。
// 空输入返回空结果，而非错误。
func Aggregate(items []model.RawItem) Result {
	buckets := Buckets(items)
	res := Result{
		Heatmap:   make([]model.HeatmapPoint, 0, len(buckets)),
		BestTimes: []model.RankedWindow{},
	}
	for _, b := range buckets {
		res.Heatmap = append(res.Heatmap, model.HeatmapPoint{
			Hour:          b.Slot.Hour,
			DayIndex:      b.Slot.Day,
			Day:           DayNames[b.Slot.Day],
			AverageScore:  b.Average(),
			FormattedTime: Label(b.Slot.Day, b.Slot.Hour),
		})
	}
	res.BestTimes = Rank(res.Heatmap, TopN)
	return res
}

// Rank 返回按平均分降序的前 n 个时段；同分保持原有顺序。不修改入参。
func Rank(points []model.HeatmapPoint, n int) []model.RankedWindow {
	sorted := TopPoints(points, n)
	out := make([]model.RankedWindow, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, model.RankedWindow{
			Day:           p.Day,
			DayIndex:      p.DayIndex,
			Hour:          p.Hour,
			AverageScore:  p.AverageScore,
			FormattedTime: p.FormattedTime,
		})
	}
	return out
}

// TopPoints 返回按平均分降序（稳定）的前 n 个热力图点副本；n <= 0 表示全部。
func TopPoints(points []model.HeatmapPoint, n int) []model.HeatmapPoint {
	cp := make([]model.HeatmapPoint, len(points))
	copy(cp, points)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].AverageScore > cp[j].AverageScore })
	if n > 0 && len(cp) > n {
		cp = cp[:n]
	}
	return cp
}

// HourLabel 以 12 小时制格式化：0 → "12AM"，13 → "1PM"。
func HourLabel(hour int) string {
	h := hour % 12
	if h == 0 {
		h = 12
	}
	if hour < 12 {
		return fmt.Sprintf("%dAM", h)
	}
	return fmt.Sprintf("%dPM", h)
}

// Label 返回 "Sunday 2PM" 形式的时段标签，热力图与排行共用。
func Label(day, hour int) string {
	return DayNames[day] + " " + HourLabel(hour)
}
