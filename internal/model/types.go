// 包 model 定义分析流程中流转的数据模型（原始条目/热力图/排行/批量结果）。
// 所有类型均为可直接 JSON 序列化的纯数据。
package model

import "time"

// RawItem 为数据源返回的单个内容条目，仅保留聚合所需字段。
// 缺失的 Score/Comments 以 0 处理。
type RawItem struct {
	CreatedAt int64   `json:"created_utc"`
	Score     float64 `json:"score"`
	Comments  float64 `json:"num_comments"`
}

// Page 为数据源的一页结果；Next 为空表示没有下一页。
type Page struct {
	Items []RawItem `json:"items"`
	Next  string    `json:"next,omitempty"`
}

// HeatmapPoint 为一个已观测时段 (day,hour) 的平均互动分。
type HeatmapPoint struct {
	Hour          int     `json:"hour"`
	DayIndex      int     `json:"day_index"`
	Day           string  `json:"day"`
	AverageScore  float64 `json:"average_score"`
	FormattedTime string  `json:"formatted_time"`
}

// RankedWindow 为按平均分降序排列后的时段。
type RankedWindow struct {
	Day           string  `json:"day"`
	DayIndex      int     `json:"day_index"`
	Hour          int     `json:"hour"`
	AverageScore  float64 `json:"average_score"`
	FormattedTime string  `json:"formatted_time"`
}

// AnalysisResult 为单个主体的分析结果，创建后不再修改。
type AnalysisResult struct {
	Heatmap     []HeatmapPoint `json:"heatmap"`
	BestTimes   []RankedWindow `json:"best_times"`
	Insight     string         `json:"insight,omitempty"`
	ItemCount   int            `json:"item_count"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// SubjectResult 为批量任务中单个主体的结果：Result 与 Error 二者恰有其一。
type SubjectResult struct {
	Subject   string          `json:"subject"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// OK 表示该主体分析成功。
func (r SubjectResult) OK() bool { return r.Result != nil && r.Error == "" }

// BatchResult 为一次批量请求的结果，Results 顺序与清洗后的输入顺序一致。
type BatchResult struct {
	ID      string          `json:"id"`
	Days    int             `json:"days"`
	Results []SubjectResult `json:"results"`
}

// Failed 统计失败的主体数量。
func (b BatchResult) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK() {
			n++
		}
	}
	return n
}
