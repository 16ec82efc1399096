package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/rhtrucks/internal/app/run"
	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/infra/fsx"
	"github.com/John-Robertt/rhtrucks/internal/logx"
	"github.com/John-Robertt/rhtrucks/internal/metrics"
	"github.com/John-Robertt/rhtrucks/internal/store/mongostore"
)

func main() {
	// .env 可选；已存在的环境变量优先。
	_ = godotenv.Load()

	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// stageFunc 是一个子命令真正执行的阶段（run.Collect 等）。
type stageFunc func(ctx context.Context, eff config.Effective, d run.Deps) domain.RunReport

// cli 保存一次进程调用的输出端与退出码；子命令通过它共享 runStage。
type cli struct {
	stdout io.Writer
	stderr io.Writer

	exitCode int

	dryRun   bool
	mongoURI string
}

// execute 解析参数并运行子命令，返回进程退出码：0 成功，1 有失败条目，2 用法错误。
func execute(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stderr)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		_ = root.Usage()
		return 2
	}
	return c.exitCode
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "rhtrucks",
		Short: "roaminghunger.com 餐车目录抓取",
		Long: `rhtrucks 分两步抓取 roaminghunger.com 的餐车目录：

  collect  按 city-urls.json 翻页收集每个城市的餐车详情页 URL，写出 truck-urls.json
  harvest  逐个抓取详情页，写出 <state>/<city>/<slug>.json（已存在则跳过）

辅助命令：
  cities   从站点索引页生成 city-urls.json
  import   把输出树中的记录导入 MongoDB`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("dir", "", "工作目录（读取 rhtrucks.yaml、相对路径的基准；默认当前目录）")
	pf.String("site-root", "", "站点根地址（默认 "+config.DefaultSiteRoot+"）")
	pf.Int("max-pages", 0, fmt.Sprintf("每个城市最多翻页数（默认 %d）", config.DefaultMaxPages))
	pf.String("proxy", "", "HTTP 代理，例如 http://127.0.0.1:7890")
	pf.Duration("timeout", 0, fmt.Sprintf("单个请求的总超时（默认 %s）", config.DefaultTimeout))
	pf.Bool("archive-html", false, "把抓到的详情页 HTML 归档到 <out>/cache/pages/")
	pf.String("metrics-file", "", "运行结束后写出 Prometheus 文本格式指标")
	pf.String("log-level", "", "日志级别：debug|info|warn|error")
	pf.String("log-format", "", "日志格式：console|json")

	root.AddCommand(
		&cobra.Command{
			Use:   "cities",
			Short: "从站点索引页生成种子文件（city-urls.json）",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.runStage(cmd, domain.StageCities, false, run.Cities)
			},
		},
		&cobra.Command{
			Use:   "collect",
			Short: "翻页收集详情页 URL，写出 truck-urls.json",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.runStage(cmd, domain.StageCollect, false, run.Collect)
			},
		},
		newHarvestCmd(c),
		newImportCmd(c),
	)
	return root
}

func newHarvestCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "抓取详情页，写出 <state>/<city>/<slug>.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStage(cmd, domain.StageHarvest, c.dryRun, func(ctx context.Context, eff config.Effective, d run.Deps) domain.RunReport {
				return run.Harvest(ctx, eff, c.dryRun, d)
			})
		},
	}
	cmd.Flags().BoolVar(&c.dryRun, "dry-run", false, "只规划：不抓取、不写文件")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "把输出树中的记录 upsert 到 MongoDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStage(cmd, domain.StageImport, false, importStage)
		},
	}
	cmd.Flags().StringVar(&c.mongoURI, "mongo-uri", "", "MongoDB 连接串（也可用 RHTRUCKS_MONGO_URI）")
	return cmd
}

func importStage(ctx context.Context, eff config.Effective, d run.Deps) domain.RunReport {
	if eff.Mongo.URI == "" {
		return run.Import(ctx, eff, nil, d)
	}
	st, err := mongostore.Connect(ctx, eff.Mongo.URI, eff.Mongo.Database, eff.Mongo.Collection)
	if err != nil {
		return syntheticReport(domain.StageImport, eff.OutDir, false, domain.ErrCodeStoreFailed, err.Error())
	}
	defer func() { _ = st.Close(context.Background()) }()
	if err := st.EnsureIndex(ctx); err != nil {
		return syntheticReport(domain.StageImport, eff.OutDir, false, domain.ErrCodeStoreFailed, err.Error())
	}
	return run.Import(ctx, eff, st, d)
}

// cliArgs 把 cobra flag 转成 config.CLIArgs，保留“是否显式指定”。
func (c *cli) cliArgs(cmd *cobra.Command) config.CLIArgs {
	f := cmd.Flags()
	var a config.CLIArgs

	a.Dir, _ = f.GetString("dir")
	a.SiteRoot, _ = f.GetString("site-root")
	a.SiteRootSet = f.Changed("site-root")
	a.MaxPages, _ = f.GetInt("max-pages")
	a.MaxPagesSet = f.Changed("max-pages")
	a.Proxy, _ = f.GetString("proxy")
	a.ProxySet = f.Changed("proxy")
	a.Timeout, _ = f.GetDuration("timeout")
	a.TimeoutSet = f.Changed("timeout")
	a.ArchiveHTML, _ = f.GetBool("archive-html")
	a.ArchiveHTMLSet = f.Changed("archive-html")
	a.MetricsFile, _ = f.GetString("metrics-file")
	a.MetricsFileSet = f.Changed("metrics-file")
	a.LogLevel, _ = f.GetString("log-level")
	a.LogLevelSet = f.Changed("log-level")
	a.LogFormat, _ = f.GetString("log-format")
	a.LogFormatSet = f.Changed("log-format")
	if f.Lookup("mongo-uri") != nil {
		a.MongoURI = c.mongoURI
		a.MongoURISet = f.Changed("mongo-uri")
	}
	return a
}

func (c *cli) runStage(cmd *cobra.Command, stage string, dryRun bool, exec stageFunc) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("读取当前目录失败：%w", err)
	}
	cwdAbs, _ := filepath.Abs(cwd)

	args := c.cliArgs(cmd)
	if strings.TrimSpace(args.Dir) != "" {
		dir := args.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cwdAbs, dir)
		}
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}

	eff, err := config.Load(cwd, args)
	if err != nil {
		code := config.Code(err)
		if code == "" {
			code = domain.ErrCodeConfigInvalid
		}
		c.emitReport(syntheticReport(stage, cwdAbs, dryRun, code, err.Error()))
		c.exitCode = 1
		return nil
	}

	log, err := logx.New(eff.LogLevel, eff.LogFormat)
	if err != nil {
		c.emitReport(syntheticReport(stage, eff.Dir, dryRun, domain.ErrCodeConfigInvalid, err.Error()))
		c.exitCode = 1
		return nil
	}
	defer func() { _ = log.Sync() }()

	progressW, interactive := pickProgressWriter(c.stdout, c.stderr)
	var obs run.Observer
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	} else {
		obs = run.NewLogObserver(log)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	rr := exec(ctx, eff, run.Deps{Metrics: m, Observer: obs, Log: log})
	if ui != nil {
		ui.Close()
	}

	c.exitCode = 0
	if !rr.OK() {
		c.exitCode = 1
	}

	// 非 dry-run：写入 <out>/cache/report.json；dry-run 禁止落盘。
	if !rr.DryRun {
		if err := writeReportFile(eff.OutDir, rr); err != nil {
			fmt.Fprintf(c.stderr, "写入 report.json 失败：%v\n", err)
			c.exitCode = 1
		}
	}
	if eff.MetricsFile != "" {
		if err := m.WriteTextfile(eff.MetricsFile); err != nil {
			log.Warn("write metrics textfile failed", zap.String("path", eff.MetricsFile), zap.Error(err))
		}
	}

	c.emitReport(rr)
	if interactive {
		emitLocations(progressW, stage, eff, rr)
	}
	return nil
}

func (c *cli) emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：processed=%d skipped=%d planned=%d failed=%d",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Planned, rr.Summary.Failed,
	)
	if rr.Aborted {
		summary += "（已中止）"
	}

	if isTTY(c.stdout) {
		fmt.Fprintln(c.stdout, summary)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				fmt.Fprintf(c.stderr, "%s %s: %s\n", itemKey(it), it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(c.stderr, summary)
}

// syntheticReport 构造只有一条合成失败条目的 report（配置错误、连接失败等无法进入阶段的情况）。
func syntheticReport(stage, path string, dryRun bool, code, msg string) domain.RunReport {
	now := time.Now().UTC()
	item := domain.NewItem("", "")
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Stage:      stage,
		Path:       path,
		DryRun:     dryRun,
		StartedAt:  now,
		FinishedAt: now,
		Items:      []domain.ItemResult{item},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(outDir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(outDir, "cache"), "report.json", b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, stage string, eff config.Effective, rr domain.RunReport) {
	// 这几行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	if !rr.DryRun {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.OutDir, "cache", "report.json"))
	}
	switch stage {
	case domain.StageCities:
		fmt.Fprintf(w, "seed: %s\n", eff.SeedFile)
	case domain.StageCollect:
		if !rr.Aborted {
			fmt.Fprintf(w, "url_map: %s\n", eff.URLMapFile)
		}
	case domain.StageHarvest:
		fmt.Fprintf(w, "out: %s\n", eff.OutDir)
	}
	if eff.MetricsFile != "" {
		fmt.Fprintf(w, "metrics: %s\n", eff.MetricsFile)
	}
}
