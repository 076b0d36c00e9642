package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"go-peak-window/internal/errs"
	"go-peak-window/internal/fetch"
	"go-peak-window/internal/model"
	"go-peak-window/internal/rules"
)

// DefaultListingURL 为 HTML 列表页的默认地址模板。
const DefaultListingURL = "https://old.reddit.com/r/{subject}/new/"

// Listing 根据规则预设的 CSS 选择器从 HTML 列表页抽取条目，下一页链接作为游标。
type Listing struct {
	cl     *fetch.Client
	tmpl   string
	preset rules.Listing
}

// NewListing 创建列表页数据源；preset 缺失时返回错误。
func NewListing(cl *fetch.Client, tmpl string, preset rules.Preset) (*Listing, error) {
	if preset.Listing == nil || preset.Listing.Item == "" || preset.Listing.Created == "" {
		return nil, fmt.Errorf("listing preset requires item and created selectors")
	}
	if tmpl == "" {
		tmpl = DefaultListingURL
	}
	return &Listing{cl: cl, tmpl: tmpl, preset: *preset.Listing}, nil
}

// FetchPage 抓取列表页；cursor 非空时为上一页解析出的下一页绝对地址。
func (l *Listing) FetchPage(ctx context.Context, subject, cursor string) (model.Page, error) {
	pageURL := cursor
	if pageURL == "" {
		pageURL = expand(l.tmpl, subject)
	}
	resp, err := l.cl.Get(ctx, pageURL, nil)
	if err != nil {
		return model.Page{}, fmt.Errorf("GET listing %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return model.Page{}, errs.Upstream(0, fmt.Errorf("malformed listing body from %s: %w", pageURL, err))
	}
	return parseListing(doc, pageURL, l.preset), nil
}

func parseListing(doc *goquery.Document, pageURL string, p rules.Listing) model.Page {
	var page model.Page
	doc.Find(p.Item).Each(func(_ int, s *goquery.Selection) {
		created, ok := parseTimestamp(getVal(s, p.Created))
		if !ok {
			return
		}
		page.Items = append(page.Items, model.RawItem{
			CreatedAt: created,
			Score:     parseCount(getVal(s, p.Score)),
			Comments:  parseCount(getVal(s, p.Comments)),
		})
	})
	if p.Next != "" {
		page.Next = abs(pageURL, getVal(doc.Selection, p.Next))
	}
	return page
}

// getVal 解析表达式并支持使用 "||" 作为回退分隔，例如："@data-score||.score"。
func getVal(scope *goquery.Selection, expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ""
	}
	for _, part := range strings.Split(expr, "||") {
		if v := getValSingle(scope, strings.TrimSpace(part)); v != "" {
			return v
		}
	}
	return ""
}

// getValSingle 解析单个表达式：文本（"sel" 或 "."）或属性（"sel@attr" / "@attr"）。
func getValSingle(scope *goquery.Selection, expr string) string {
	if expr == "" {
		return ""
	}
	if expr == "." {
		return strings.TrimSpace(scope.Text())
	}
	if at := strings.Index(expr, "@"); at != -1 {
		sel := strings.TrimSpace(expr[:at])
		attr := strings.TrimSpace(expr[at+1:])
		if sel == "" {
			val, _ := scope.Attr(attr)
			return strings.TrimSpace(val)
		}
		val, _ := scope.Find(sel).First().Attr(attr)
		return strings.TrimSpace(val)
	}
	return strings.TrimSpace(scope.Find(expr).First().Text())
}

// parseTimestamp 接受秒/毫秒级时间戳或 RFC3339 字符串。
func parseTimestamp(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		if n > 1e11 {
			n /= 1000
		}
		return int64(n), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.Unix(), true
	}
	return 0, false
}

// parseCount 解析 "12"、"1.2k"、"34 comments" 等形式的计数，无法解析时为 0。
func parseCount(v string) float64 {
	v = strings.ToLower(strings.TrimSpace(v))
	end := 0
	for end < len(v) && (v[end] >= '0' && v[end] <= '9' || v[end] == '.' || v[end] == ',' || (end == 0 && v[end] == '-')) {
		end++
	}
	num := strings.ReplaceAll(v[:end], ",", "")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	switch rest := v[end:]; {
	case strings.HasPrefix(rest, "k"):
		n *= 1e3
	case strings.HasPrefix(rest, "m"):
		n *= 1e6
	}
	return n
}

// abs 将相对链接转换为绝对 URL。
func abs(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}
