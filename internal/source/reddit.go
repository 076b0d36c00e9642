package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"go-peak-window/internal/errs"
	"go-peak-window/internal/fetch"
	"go-peak-window/internal/model"
)

const (
	redditPublicBase = "https://www.reddit.com"
	redditOAuthBase  = "https://oauth.reddit.com"
	redditTokenURL   = "https://www.reddit.com/api/v1/access_token"
	defaultPageLimit = 100
)

// RedditOptions 为 Reddit 数据源参数；提供 ClientID 时使用 OAuth（密码模式），否则访问公开接口。
type RedditOptions struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	PageLimit    int
}

// Reddit 读取 /r/{subject}/new 列表，after 作为游标。
type Reddit struct {
	cl     *fetch.Client
	base   string
	limit  int
	tokens *passwordTokens
}

// NewReddit 创建 Reddit 数据源。
func NewReddit(cl *fetch.Client, opts RedditOptions) *Reddit {
	r := &Reddit{cl: cl, base: strings.TrimRight(opts.BaseURL, "/"), limit: opts.PageLimit}
	if r.limit <= 0 || r.limit > 100 {
		r.limit = defaultPageLimit
	}
	if opts.ClientID != "" {
		tokenURL := opts.TokenURL
		if tokenURL == "" {
			tokenURL = redditTokenURL
		}
		r.tokens = &passwordTokens{
			conf: &oauth2.Config{
				ClientID:     opts.ClientID,
				ClientSecret: opts.ClientSecret,
				Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInHeader},
			},
			user: opts.Username,
			pass: opts.Password,
			hc:   userAgentClient(cl),
		}
		if r.base == "" {
			r.base = redditOAuthBase
		}
	}
	if r.base == "" {
		r.base = redditPublicBase
	}
	return r
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
		After *string `json:"after"`
	} `json:"data"`
}

// redditPost 字段均为指针：上游可能省略任意字段。
type redditPost struct {
	CreatedUTC  *float64 `json:"created_utc"`
	Score       *float64 `json:"score"`
	NumComments *float64 `json:"num_comments"`
}

// FetchPage 抓取一页（最多 limit 条）。
func (r *Reddit) FetchPage(ctx context.Context, subject, cursor string) (model.Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(r.limit))
	q.Set("raw_json", "1")
	if cursor != "" {
		q.Set("after", cursor)
	}
	pageURL := fmt.Sprintf("%s/r/%s/new.json?%s", r.base, url.PathEscape(subject), q.Encode())

	header := http.Header{}
	if r.tokens != nil {
		tok, err := r.tokens.token(ctx)
		if err != nil {
			return model.Page{}, tokenError(err)
		}
		header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	var listing redditListing
	if err := r.cl.GetJSON(ctx, pageURL, header, &listing); err != nil {
		return model.Page{}, err
	}
	page := model.Page{Items: make([]model.RawItem, 0, len(listing.Data.Children))}
	for _, c := range listing.Data.Children {
		if c.Data.CreatedUTC == nil {
			continue
		}
		page.Items = append(page.Items, model.RawItem{
			CreatedAt: int64(*c.Data.CreatedUTC),
			Score:     deref(c.Data.Score),
			Comments:  deref(c.Data.NumComments),
		})
	}
	if listing.Data.After != nil {
		page.Next = *listing.Data.After
	}
	return page, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return errs.Upstream(re.Response.StatusCode, fmt.Errorf("token: %w", err))
	}
	return errs.Upstream(0, fmt.Errorf("token: %w", err))
}

// passwordTokens 以密码模式获取并缓存令牌，过期后重新获取。
type passwordTokens struct {
	mu   sync.Mutex
	conf *oauth2.Config
	user string
	pass string
	hc   *http.Client
	tok  *oauth2.Token
}

func (p *passwordTokens) token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tok.Valid() {
		return p.tok, nil
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.hc)
	tok, err := p.conf.PasswordCredentialsToken(ctx, p.user, p.pass)
	if err != nil {
		return nil, err
	}
	p.tok = tok
	return tok, nil
}

// userAgentClient 复用 fetch 客户端的传输层，并为令牌请求补充 User-Agent。
func userAgentClient(cl *fetch.Client) *http.Client {
	base := cl.HTTP()
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   base.Timeout,
		Transport: uaTransport{base: rt, ua: cl.UserAgent()},
	}
}

type uaTransport struct {
	base http.RoundTripper
	ua   string
}

func (t uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r)
}
