// 包 rules 负责加载并提供 HTML 列表页解析规则（rules.yaml），
// 以预设名（如 default/old-reddit）组织 CSS 选择器，用于从列表页抽取条目时间与互动数。
package rules

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules 表示全部规则集合：键为预设名，值为具体规则。
type Rules struct {
	Presets map[string]Preset `yaml:",inline"`
}

// Preset 为单个站点预设的解析规则集合。
type Preset struct {
	Listing *Listing `yaml:"listing"`
}

// Listing 描述列表页的选择器：
// - item：每个条目容器
// - created/score/comments：取文本或属性（支持 "sel@attr"、"@attr"、"."、"a||b" 回退）
// - next：下一页链接（为空表示单页）
type Listing struct {
	Item     string `yaml:"item"`
	Created  string `yaml:"created"`
	Score    string `yaml:"score"`
	Comments string `yaml:"comments"`
	Next     string `yaml:"next"`
}

// Builtin 为内置预设，未提供 rules.yaml 时使用。
func Builtin() *Rules {
	oldReddit := Preset{Listing: &Listing{
		Item:     "div.thing[data-timestamp]",
		Created:  "@data-timestamp",
		Score:    "@data-score||.score.unvoted@title",
		Comments: "@data-comments-count||a.comments",
		Next:     "span.next-button a@href",
	}}
	return &Rules{Presets: map[string]Preset{
		"default":    oldReddit,
		"old-reddit": oldReddit,
	}}
}

// Load 从文件加载 YAML 到 Rules.Presets。
func Load(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var r Rules
	if err := yaml.Unmarshal(b, &r.Presets); err != nil {
		return nil, fmt.Errorf("unmarshal rules %s: %w", path, err)
	}
	return &r, nil
}

// GetPreset 按名称获取预设（不区分大小写），若为空或不存在则回退到 "default"。
func (r *Rules) GetPreset(name string) (Preset, bool) {
	if r == nil || len(r.Presets) == 0 {
		return Preset{}, false
	}
	if name == "" {
		name = "default"
	}
	if p, ok := r.Presets[name]; ok {
		return p, true
	}
	lower := strings.ToLower(name)
	for k, v := range r.Presets {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	if p, ok := r.Presets["default"]; ok {
		return p, true
	}
	return Preset{}, false
}
