// 包 errs 定义分析流程的错误分类，调用方通过 errors.Is 或 Kind 判断失败类别。
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation 输入非法（空列表/超限/空主体），不会启动任何任务。
	ErrValidation = errors.New("validation error")
	// ErrNoData 抓取成功但没有任何条目。
	ErrNoData = errors.New("no data")
	// ErrUpstream 数据源返回非成功状态或传输失败。
	ErrUpstream = errors.New("upstream error")
	// ErrTimeout 单个任务或其抓取超出时限。
	ErrTimeout = errors.New("timeout")
	// ErrInsightUnavailable 洞察生成失败，仅在内部降级使用。
	ErrInsightUnavailable = errors.New("insight unavailable")
)

// 错误类别，用于结果/指标/HTTP 映射。
const (
	KindValidation = "validation"
	KindNoData     = "no_data"
	KindUpstream   = "upstream"
	KindTimeout    = "timeout"
	KindInternal   = "internal"
)

// UpstreamError 携带上游 HTTP 状态码（传输失败时为 0）。
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrUpstream) 对所有 UpstreamError 成立。
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Upstream 包装上游失败；err 为超时类错误时直接归为 ErrTimeout。
func Upstream(status int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	if status == 0 && isDeadline(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &UpstreamError{Status: status, Err: err}
}

// Validation 生成带说明的校验错误。
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// FromContext 将 context 超时转换为 ErrTimeout，其余错误原样返回。
func FromContext(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if isDeadline(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Kind 返回错误类别；nil 返回空串。
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNoData):
		return KindNoData
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}

// HTTPStatus 将错误类别映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNoData:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
