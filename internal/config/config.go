// 包 config 负责加载与校验应用配置（settings.yaml），
// 对外提供结构体 Config 及默认值/合法性校验；凭据类配置从环境变量（.env）读取。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Source       Source        `yaml:"SOURCE"`
	Cache        Cache         `yaml:"CACHE"`
	Batch        Batch         `yaml:"BATCH"`
	Insight      Insight       `yaml:"INSIGHT"`
	Server       Server        `yaml:"SERVER"`
	Kafka        Kafka         `yaml:"KAFKA"`
	Proxy        Proxy         `yaml:"PROXY"`
	FetchTimeout time.Duration `yaml:"FETCH_TIMEOUT"`
	Retry        int           `yaml:"RETRY"`
	LogLevel     string        `yaml:"LOG_LEVEL"`
	LogFormat    string        `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale    string        `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor     string        `yaml:"LOG_COLOR"`  // auto|always|never

	// 以下字段仅来自环境变量
	Reddit       RedditAuth `yaml:"-"`
	GoogleAPIKey string     `yaml:"-"`
	OpenAIAPIKey string     `yaml:"-"`
}

type Source struct {
	// Type：数据源类型 reddit（JSON 接口）|feed（RSS/Atom）|listing（HTML 列表页按规则解析）
	Type      string `yaml:"type"`
	URL       string `yaml:"url"` // 可选地址模板，{subject} 为占位符
	UserAgent string `yaml:"user_agent"`
	MaxPages  int    `yaml:"max_pages"`
	PageLimit int    `yaml:"page_limit"`
	Theme     string `yaml:"theme"` // listing 使用的规则预设
	Rules     string `yaml:"rules"` // 可选的外部规则文件
}

type Cache struct {
	Type       string        `yaml:"type"` // memory|sqlite
	DSN        string        `yaml:"dsn"`
	MaxAge     time.Duration `yaml:"max_age"`
	MaxEntries int           `yaml:"max_entries"`
}

type Batch struct {
	MaxSubjects int           `yaml:"max_subjects"`
	Size        int           `yaml:"size"`
	Pause       time.Duration `yaml:"pause"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
}

type Insight struct {
	Provider string        `yaml:"provider"` // none|gemini|openai
	Model    string        `yaml:"model"`
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Server struct {
	Addr       string        `yaml:"addr"`
	RateLimit  int           `yaml:"rate_limit"` // 每个客户端 IP 在 rate_window 内的请求上限，0 表示不限制
	RateWindow time.Duration `yaml:"rate_window"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

// RedditAuth 为 OAuth 密码模式凭据，ClientID 为空时走公开接口。
type RedditAuth struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// Default 返回全部字段均已填充默认值的配置。
func Default() *Config {
	c := &Config{}
	_ = c.Validate()
	return c
}

// Load 从文件读取 YAML 并反序列化为 Config，随后合并环境变量并校验。
// path 为空时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadDotEnv 读取 .env 文件到进程环境，文件不存在时忽略；已存在的环境变量不被覆盖。
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv 从环境变量读取凭据，并允许少量运行参数被覆盖。
func (c *Config) ApplyEnv() {
	c.Reddit = RedditAuth{
		ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		Username:     os.Getenv("REDDIT_USERNAME"),
		Password:     os.Getenv("REDDIT_PASSWORD"),
		UserAgent:    os.Getenv("REDDIT_USER_AGENT"),
	}
	c.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("PEAK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PEAK_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	c.Source.Type = strings.ToLower(strings.TrimSpace(c.Source.Type))
	switch c.Source.Type {
	case "":
		c.Source.Type = "reddit"
	case "reddit", "feed", "listing":
	default:
		return fmt.Errorf("unsupported source type: %s", c.Source.Type)
	}
	if c.Source.MaxPages < 0 || c.Source.PageLimit < 0 {
		return errors.New("SOURCE.max_pages and SOURCE.page_limit must be >= 0")
	}
	if c.Source.MaxPages == 0 {
		c.Source.MaxPages = 5
	}
	if c.Source.PageLimit == 0 {
		c.Source.PageLimit = 100
	}
	if c.Source.Theme == "" {
		c.Source.Theme = "default"
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = c.Reddit.UserAgent
	}

	switch c.Cache.Type {
	case "":
		c.Cache.Type = "memory"
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}
	if c.Cache.Type == "sqlite" && c.Cache.DSN == "" {
		c.Cache.DSN = "./cache.db"
	}
	if c.Cache.MaxAge < 0 || c.Cache.MaxEntries < 0 {
		return errors.New("CACHE.max_age and CACHE.max_entries must be >= 0")
	}
	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = 24 * time.Hour
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}

	if c.Batch.MaxSubjects < 0 || c.Batch.Size < 0 || c.Batch.Pause < 0 || c.Batch.JobTimeout < 0 {
		return errors.New("BATCH values must be >= 0")
	}
	if c.Batch.MaxSubjects == 0 {
		c.Batch.MaxSubjects = 10
	}
	if c.Batch.Size == 0 {
		c.Batch.Size = 3
	}
	if c.Batch.Pause == 0 {
		c.Batch.Pause = 200 * time.Millisecond
	}
	if c.Batch.JobTimeout == 0 {
		c.Batch.JobTimeout = 20 * time.Second
	}

	c.Insight.Provider = strings.ToLower(strings.TrimSpace(c.Insight.Provider))
	switch c.Insight.Provider {
	case "":
		c.Insight.Provider = "none"
	case "none", "gemini", "openai":
	default:
		return fmt.Errorf("unsupported insight provider: %s", c.Insight.Provider)
	}
	if c.Insight.Timeout <= 0 {
		c.Insight.Timeout = 30 * time.Second
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimit < 0 {
		return errors.New("SERVER.rate_limit must be >= 0")
	}
	if c.Server.RateWindow <= 0 {
		c.Server.RateWindow = time.Minute
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		c.Kafka.Topic = "peak-window.results"
	}

	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.Retry < 0 {
		c.Retry = 0
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}
