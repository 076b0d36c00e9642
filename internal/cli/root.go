// 包 cli 提供命令行入口：serve（HTTP 服务）、analyze（单主体）、bulk（批量）。
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"go-peak-window/internal/config"
	"go-peak-window/internal/export"
	"go-peak-window/internal/logx"
)

const defaultConfigPath = "settings.yaml"

type rootOptions struct {
	configPath string
	envPath    string
	logLevel   string
	cfg        *config.Config
}

// NewRootCommand 创建根命令。
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "peak-window",
		Short: "Find the hours a community engages most",
		Long: `peak-window buckets a community's recent posts by UTC day and hour,
ranks the windows with the highest average engagement and optionally asks an LLM for a summary.

Commands:
  serve     HTTP API (/api/analyze, /api/bulk-analyze)
  analyze   analyze one subject
  bulk      analyze up to 10 subjects`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to settings.yaml")
	root.PersistentFlags().StringVar(&opts.envPath, "env", ".env", "dotenv file with credentials")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error|off)")

	root.AddCommand(newServeCommand(opts), newAnalyzeCommand(opts), newBulkCommand(opts))
	return root
}

// load 读取 .env 与配置并初始化日志；默认配置文件不存在时仅使用默认值。
func (o *rootOptions) load() error {
	if err := config.LoadDotEnv(o.envPath); err != nil {
		return err
	}
	path := o.configPath
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logx.InitWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor)
	o.cfg = cfg
	return nil
}

// outputOptions 为 analyze/bulk 共用的输出参数。
type outputOptions struct {
	days   int
	tz     string
	format string
	out    string
}

func (o *outputOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.days, "days", "d", 30, "trailing window in days")
	cmd.Flags().StringVar(&o.tz, "tz", "", "IANA time zone for labels (default UTC)")
	cmd.Flags().StringVarP(&o.format, "format", "f", "table", "output format: table|json|csv")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "write output to file instead of stdout")
}

func (o *outputOptions) validate() error {
	switch strings.ToLower(o.format) {
	case "table", "json", "csv":
		o.format = strings.ToLower(o.format)
		return nil
	}
	return fmt.Errorf("unsupported format %q (table|json|csv)", o.format)
}

// write 输出到 --out 指定的文件或命令的标准输出。
func (o *outputOptions) write(cmd *cobra.Command, fn func(io.Writer) error) error {
	if o.out == "" || o.out == "-" {
		return fn(cmd.OutOrStdout())
	}
	if err := export.ToFile(o.out, fn); err != nil {
		return err
	}
	logx.Infof("已写入 %s", o.out)
	return nil
}
