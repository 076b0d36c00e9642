package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"go-peak-window/internal/errs"
	"go-peak-window/internal/fetch"
	"go-peak-window/internal/logx"
	"go-peak-window/internal/model"
)

// DefaultFeedURL 为 RSS 数据源的默认地址模板。
const DefaultFeedURL = "https://www.reddit.com/r/{subject}/new/.rss"

// Feed 通过 RSS/Atom/JSON Feed 获取条目，仅有发布时间；订阅不携带互动数，score/comments 记为 0。
// 订阅只有一页，Next 恒为空。
type Feed struct {
	cl   *fetch.Client
	tmpl string
}

// NewFeed 创建订阅数据源，tmpl 中的 {subject} 会被替换。
func NewFeed(cl *fetch.Client, tmpl string) *Feed {
	if tmpl == "" {
		tmpl = DefaultFeedURL
	}
	return &Feed{cl: cl, tmpl: tmpl}
}

// FetchPage 拉取并解析订阅；地址返回的是 HTML 页面时，按页面声明的订阅地址再试一次。
func (f *Feed) FetchPage(ctx context.Context, subject, _ string) (model.Page, error) {
	feed, err := f.parse(ctx, expand(f.tmpl, subject), true)
	if err != nil {
		return model.Page{}, err
	}
	page := model.Page{Items: make([]model.RawItem, 0, len(feed.Items))}
	for _, it := range feed.Items {
		created := pickTime(it.PublishedParsed, it.UpdatedParsed)
		if created.IsZero() {
			continue
		}
		page.Items = append(page.Items, model.RawItem{CreatedAt: created.Unix()})
	}
	return page, nil
}

func (f *Feed) parse(ctx context.Context, feedURL string, discover bool) (*gofeed.Feed, error) {
	resp, err := f.cl.Get(ctx, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("GET feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()
	// gofeed 不直接接收自定义 http.Client，因此先用自定义客户端抓取后再交给 gofeed 解析
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errs.Upstream(0, fmt.Errorf("read feed %s: %w", feedURL, err))
	}
	feed, perr := gofeed.NewParser().Parse(bytes.NewReader(b))
	if perr == nil {
		return feed, nil
	}
	if discover {
		if alt := discoverLink(b, feedURL); alt != "" && alt != feedURL {
			logx.Debugf("从 <link> 发现订阅：%s", alt)
			return f.parse(ctx, alt, false)
		}
	}
	return nil, errs.Upstream(0, fmt.Errorf("malformed feed body from %s: %w", feedURL, perr))
}

// discoverLink 从 HTML 中查找 rel=alternate 的订阅声明。
func discoverLink(body []byte, base string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("link").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		t := strings.ToLower(s.AttrOr("type", ""))
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || !strings.Contains(rel, "alternate") {
			return true
		}
		if strings.Contains(t, "rss") || strings.Contains(t, "atom") || strings.Contains(t, "json") {
			found = abs(base, href)
			return false
		}
		return true
	})
	return found
}

func pickTime(a, b *time.Time) time.Time {
	if a != nil {
		return *a
	}
	if b != nil {
		return *b
	}
	return time.Time{}
}
