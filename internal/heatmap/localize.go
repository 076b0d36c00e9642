package heatmap

import (
	"time"
	_ "time/tzdata" // 容器内常缺少系统时区库

	"go-peak-window/internal/model"
)

// referenceSunday 为换算基准周的周日（UTC 零点）。
var referenceSunday = time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC)

// ToLocal 将 UTC 时段换算到 loc 下的 (星期,小时)；loc 为空时原样返回。
func ToLocal(day, hour int, loc *time.Location) (int, int) {
	t := inZone(day, hour, loc)
	return int(t.Weekday()), t.Hour()
}

func inZone(day, hour int, loc *time.Location) time.Time {
	t := referenceSunday.Add(time.Duration(day)*24*time.Hour + time.Duration(hour)*time.Hour)
	if loc == nil {
		return t
	}
	return t.In(loc)
}

// LocalLabel 返回 loc 下的标签并附带时区缩写，如 "Saturday 9PM EST"。
func LocalLabel(day, hour int, loc *time.Location) string {
	t := inZone(day, hour, loc)
	d, h := int(t.Weekday()), t.Hour()
	if loc == nil || loc == time.UTC {
		return Label(d, h)
	}
	return Label(d, h) + " " + t.Format("MST")
}

// Localize 返回换算到 loc 并重新生成标签的副本，仅用于展示；聚合始终基于 UTC。
func Localize(res model.AnalysisResult, loc *time.Location) model.AnalysisResult {
	if loc == nil || loc == time.UTC {
		return res
	}
	out := res
	out.Heatmap = make([]model.HeatmapPoint, len(res.Heatmap))
	for i, p := range res.Heatmap {
		label := LocalLabel(p.DayIndex, p.Hour, loc)
		d, h := ToLocal(p.DayIndex, p.Hour, loc)
		p.DayIndex, p.Hour, p.Day, p.FormattedTime = d, h, DayNames[d], label
		out.Heatmap[i] = p
	}
	out.BestTimes = make([]model.RankedWindow, len(res.BestTimes))
	for i, w := range res.BestTimes {
		label := LocalLabel(w.DayIndex, w.Hour, loc)
		d, h := ToLocal(w.DayIndex, w.Hour, loc)
		w.DayIndex, w.Hour, w.Day, w.FormattedTime = d, h, DayNames[d], label
		out.BestTimes[i] = w
	}
	return out
}

// LoadLocation 解析时区名；空串或解析失败时回退到 UTC。
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
