// 包 export 负责导出分析结果：JSON（带缩进）、CSV 与终端表格。
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSON 将任意结果以两空格缩进写入 w。
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// ToFile 创建 path 并交给 write 写入；path 为 "-" 或空时写到 stdout。
func ToFile(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
