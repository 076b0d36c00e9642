// 包 source 提供数据源协作者：按页抓取某个主体（社区）的最新条目。
// 实现包括 Reddit JSON API、RSS/Atom 订阅与按规则解析的 HTML 列表页。
package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go-peak-window/internal/errs"
	"go-peak-window/internal/logx"
	"go-peak-window/internal/model"
)

// DefaultMaxPages 为单次抓取的默认页数上限。
const DefaultMaxPages = 5

// Source 为数据源契约：cursor 为空表示第一页；返回的 Page.Next 为空表示没有更多。
// 传输/鉴权失败须返回 errs.ErrUpstream 类错误。
type Source interface {
	FetchPage(ctx context.Context, subject, cursor string) (model.Page, error)
}

// Func 将普通函数适配为 Source。
type Func func(ctx context.Context, subject, cursor string) (model.Page, error)

func (f Func) FetchPage(ctx context.Context, subject, cursor string) (model.Page, error) {
	return f(ctx, subject, cursor)
}

// FetchRecent 跟随 Next 逐页抓取直至无下一页或达到 maxPages，拼接全部条目。
// 每页之前检查 ctx，超时返回 errs.ErrTimeout。
func FetchRecent(ctx context.Context, src Source, subject string, maxPages int) ([]model.RawItem, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	var items []model.RawItem
	cursor := ""
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.FromContext(err)
		}
		p, err := src.FetchPage(ctx, subject, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", subject, page+1, errs.FromContext(err))
		}
		items = append(items, p.Items...)
		logx.Debugf("[%s] 第 %d 页：%d 条", subject, page+1, len(p.Items))
		if p.Next == "" {
			break
		}
		cursor = p.Next
	}
	return items, nil
}

// expand 将模板中的 {subject} 替换为转义后的主体名。
func expand(tmpl, subject string) string {
	return strings.ReplaceAll(tmpl, "{subject}", url.PathEscape(subject))
}
