// 包 batch 负责批量分析编排：
// - 清洗/去重主体列表并在启动任何任务前校验
// - 以固定大小的信号量限制同时在途的任务数，每发出一组任务后短暂停顿
// - 每个任务独立超时，单个失败只记录在对应结果中，不影响其它任务
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-peak-window/internal/cache"
	"go-peak-window/internal/errs"
	"go-peak-window/internal/logx"
	"go-peak-window/internal/metrics"
	"go-peak-window/internal/model"
)

// 默认值
const (
	DefaultMaxSubjects = 10
	DefaultSize        = 3
	DefaultPause       = 200 * time.Millisecond
	DefaultJobTimeout  = 20 * time.Second
)

// Runner 为单主体分析契约。
type Runner interface {
	Run(ctx context.Context, subject string, days int) (model.AnalysisResult, error)
}

// RunnerFunc 将普通函数适配为 Runner。
type RunnerFunc func(ctx context.Context, subject string, days int) (model.AnalysisResult, error)

func (f RunnerFunc) Run(ctx context.Context, subject string, days int) (model.AnalysisResult, error) {
	return f(ctx, subject, days)
}

// Options 为编排参数，零值字段使用默认值。
type Options struct {
	MaxSubjects int
	// Size 为同时在途的任务上限，也是一组的大小。
	Size int
	// Pause 为每发出一组任务后的停顿，最后一组之后不停顿。
	Pause      time.Duration
	JobTimeout time.Duration
	Metrics    *metrics.Metrics
}

// Orchestrator 批量执行器。
type Orchestrator struct {
	run  Runner
	opts Options
}

// New 创建 Orchestrator。
func New(r Runner, opts Options) *Orchestrator {
	if opts.MaxSubjects <= 0 {
		opts.MaxSubjects = DefaultMaxSubjects
	}
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Pause < 0 {
		opts.Pause = 0
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	return &Orchestrator{run: r, opts: opts}
}

// Clean 按缓存键同样的规则（cache.Normalize）归一化，丢弃空串，并按首次出现顺序去重。
func Clean(subjects []string) []string {
	seen := make(map[string]struct{}, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		s = cache.Normalize(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Validate 清洗并校验主体列表，返回清洗后的结果。
func (o *Orchestrator) Validate(subjects []string, days int) ([]string, error) {
	if len(subjects) == 0 {
		return nil, errs.Validation("subject list is empty")
	}
	if days <= 0 {
		return nil, errs.Validation("days must be positive, got %d", days)
	}
	cleaned := Clean(subjects)
	if len(cleaned) == 0 {
		return nil, errs.Validation("no valid subjects after cleaning")
	}
	if len(cleaned) > o.opts.MaxSubjects {
		return nil, errs.Validation("too many subjects: %d > %d", len(cleaned), o.opts.MaxSubjects)
	}
	return cleaned, nil
}

// Run 执行一次批量分析；仅在校验失败时返回错误。
// 结果与清洗后的输入一一对应且顺序一致。
func (o *Orchestrator) Run(ctx context.Context, subjects []string, days int) (model.BatchResult, error) {
	cleaned, err := o.Validate(subjects, days)
	if err != nil {
		return model.BatchResult{}, err
	}
	batch := model.BatchResult{
		ID:      uuid.NewString(),
		Days:    days,
		Results: make([]model.SubjectResult, len(cleaned)),
	}
	log := logx.With("batch", batch.ID)
	log.Info("批量分析开始", "subjects", len(cleaned), "days", days, "size", o.opts.Size)
	start := time.Now()

	sem := make(chan struct{}, o.opts.Size)
	var wg sync.WaitGroup
	launched := 0
schedule:
	for i, subject := range cleaned {
		if i > 0 && i%o.opts.Size == 0 {
			if err := pause(ctx, o.opts.Pause); err != nil {
				break schedule
			}
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break schedule
		}
		launched++
		wg.Add(1)
		go func(i int, subject string) {
			defer wg.Done()
			defer func() { <-sem }()
			batch.Results[i] = o.runJob(ctx, batch.ID, subject, days)
		}(i, subject)
	}
	// 调度被取消时，未启动的主体直接记为失败
	for i := launched; i < len(cleaned); i++ {
		batch.Results[i] = failed(cleaned[i], errs.FromContext(ctx.Err()))
	}
	wg.Wait()

	log.Info("批量分析结束", "failed", batch.Failed(), "elapsed", time.Since(start).Round(time.Millisecond))
	return batch, nil
}

type outcome struct {
	res model.AnalysisResult
	err error
}

// runJob 执行单个任务；Runner 未及时响应取消时仍在超时后返回。
func (o *Orchestrator) runJob(ctx context.Context, batchID, subject string, days int) model.SubjectResult {
	done := o.opts.Metrics.JobStarted()
	jctx, cancel := context.WithTimeout(ctx, o.opts.JobTimeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := o.run.Run(jctx, subject, days)
		ch <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-ch:
	case <-jctx.Done():
		out.err = jctx.Err()
	}
	if out.err != nil && errors.Is(jctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		if k := errs.Kind(out.err); k == errs.KindInternal || k == errs.KindTimeout {
			out.err = fmt.Errorf("%w after %s", errs.ErrTimeout, o.opts.JobTimeout)
		}
	}

	log := logx.With("batch", batchID, "subject", subject)
	if out.err != nil {
		kind := errs.Kind(out.err)
		done(kind)
		log.Warn("主体分析失败", "kind", kind, "err", out.err)
		return failed(subject, out.err)
	}
	done("ok")
	log.Debug("主体分析完成", "items", out.res.ItemCount)
	res := out.res
	return model.SubjectResult{Subject: subject, Result: &res}
}

func failed(subject string, err error) model.SubjectResult {
	if err == nil {
		err = errors.New("not started")
	}
	return model.SubjectResult{Subject: subject, Error: err.Error(), ErrorKind: errs.Kind(err)}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
