package insight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go-peak-window/internal/errs"
	"go-peak-window/internal/fetch"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4"
)

// OpenAIConfig 为 OpenAI 兼容接口配置。
type OpenAIConfig struct {
	URL    string
	APIKey string // 为空时读取 OPENAI_API_KEY
	Model  string
}

// OpenAI 通过 chat/completions 接口生成洞察，复用 fetch 客户端。
type OpenAI struct {
	cl  *fetch.Client
	cfg OpenAIConfig
}

// NewOpenAI 创建 OpenAI 生成器。
func NewOpenAI(cl *fetch.Client, cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.URL == "" {
		cfg.URL = defaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return &OpenAI{cl: cl, cfg: cfg}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate 发送单条用户消息并返回首个选项的内容。
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       o.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: BuildPrompt(req)}},
		Temperature: 0.7,
	}
	var out chatResponse
	header := http.Header{"Authorization": {"Bearer " + o.cfg.APIKey}}
	if err := o.cl.PostJSON(ctx, o.cfg.URL, header, body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrInsightUnavailable, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", errs.ErrInsightUnavailable)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
