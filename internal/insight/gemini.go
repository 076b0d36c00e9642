package insight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"go-peak-window/internal/errs"
)

// GeminiConfig 为 Gemini 生成器配置。
type GeminiConfig struct {
	APIKey string // 为空时读取 GOOGLE_API_KEY
	Model  string // 为空时读取 GOOGLE_MODEL，再回退到默认模型
}

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini 通过 Google GenAI 生成洞察。
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini 创建 Gemini 生成器。
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = os.Getenv("GOOGLE_MODEL")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate 调用模型并拼接首个候选的全部文本片段。
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	temperature := float32(0.7)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(req)),
		&genai.GenerateContentConfig{Temperature: &temperature})
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %v", errs.ErrInsightUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates from gemini", errs.ErrInsightUnavailable)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty gemini response", errs.ErrInsightUnavailable)
	}
	return text, nil
}

// Model 返回使用的模型名。
func (g *Gemini) Model() string { return g.model }
