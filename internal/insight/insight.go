// 包 insight 提供洞察生成协作者：把最佳时段与热力图摘要交给 LLM，返回自由文本。
// 洞察为尽力而为，失败由调用方降级为占位文本。
package insight

import (
	"context"
	"fmt"
	"strings"

	"go-peak-window/internal/model"
)

// SummaryLimit 为提示词中热力图摘要保留的点数（按平均分降序）。
const SummaryLimit = 50

// Unavailable 为洞察失败时的占位文本。
const Unavailable = "Insight unavailable."

// Request 为一次洞察生成的输入。
type Request struct {
	Subject    string
	WindowDays int
	Top        []model.RankedWindow
	Summary    []model.HeatmapPoint
}

// Generator 为洞察生成契约。
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Nop 不生成洞察，结果中 insight 字段缺省。
type Nop struct{}

func (Nop) Generate(context.Context, Request) (string, error) { return "", nil }

// Func 将普通函数适配为 Generator。
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// BuildPrompt 渲染发送给模型的提示词。
func BuildPrompt(req Request) string {
	var top, summary strings.Builder
	for i, w := range req.Top {
		if i > 0 {
			top.WriteByte('\n')
		}
		fmt.Fprintf(&top, "- %s: %.2f avg score", w.FormattedTime, w.AverageScore)
	}
	for i, p := range req.Summary {
		if i > 0 {
			summary.WriteByte('\n')
		}
		fmt.Fprintf(&summary, "%s: %.2f", p.FormattedTime, p.AverageScore)
	}
	return fmt.Sprintf(`
Analyze posting patterns for the community %s over the past %d days.

Data:
Top 3 time windows:
%s

Engagement by time (z = avg score):
%s

Based on this data, provide a concise, strategic summary of the best times and patterns to post. Avoid generic advice.
`, req.Subject, req.WindowDays, top.String(), summary.String())
}
