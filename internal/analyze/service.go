package analyze

import (
	"context"
	"time"

	"go-peak-window/internal/batch"
	"go-peak-window/internal/heatmap"
	"go-peak-window/internal/model"
)

// Service 为 HTTP/CLI 层使用的请求入口。
type Service struct {
	pipeline *Pipeline
	orch     *batch.Orchestrator
}

// NewService 以流水线作为批量任务的执行单元创建 Service。
func NewService(p *Pipeline, opts batch.Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = p.deps.Metrics
	}
	return &Service{pipeline: p, orch: batch.New(p, opts)}
}

// AnalyzeOne 分析单个主体。
func (s *Service) AnalyzeOne(ctx context.Context, subject string, days int) (model.AnalysisResult, error) {
	return s.pipeline.Run(ctx, subject, days)
}

// AnalyzeBatch 批量分析，仅在输入非法时返回错误。
func (s *Service) AnalyzeBatch(ctx context.Context, subjects []string, days int) (model.BatchResult, error) {
	return s.orch.Run(ctx, subjects, days)
}

// BatchInZone 对批量结果中的成功项做时区换算，单个结果直接使用 heatmap.Localize。
func BatchInZone(b model.BatchResult, loc *time.Location) model.BatchResult {
	if loc == nil || loc == time.UTC {
		return b
	}
	out := b
	out.Results = make([]model.SubjectResult, len(b.Results))
	for i, r := range b.Results {
		if r.Result != nil {
			local := heatmap.Localize(*r.Result, loc)
			r.Result = &local
		}
		out.Results[i] = r
	}
	return out
}
