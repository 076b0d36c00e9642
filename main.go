// 命令行入口：
// - 读取 .env 与 settings.yaml
// - serve 启动 HTTP 服务，analyze/bulk 直接在终端输出结果
package main

import (
	"context"
	"fmt"
	"os"

	"go-peak-window/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
