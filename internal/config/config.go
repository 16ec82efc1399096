package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// 配置文件名（不含扩展名）：<dir>/rhtrucks.yaml、rhtrucks.json 等 viper 支持的格式均可。
const FileName = "rhtrucks"

// 环境变量前缀：RHTRUCKS_MAX_PAGES、RHTRUCKS_MONGO_URI ...
const EnvPrefix = "RHTRUCKS"

const (
	DefaultSiteRoot   = "http://roaminghunger.com"
	DefaultSeedFile   = "city-urls.json"
	DefaultURLMapFile = "truck-urls.json"
	DefaultMaxPages   = 100
	DefaultTimeout    = 20 * time.Second
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultMongoDB    = "entree"
	DefaultMongoColl  = "trucks"
)

// CLIArgs 是 CLI 暴露的覆盖项，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --archive-html=false 必须能覆盖配置文件里的 true。
type CLIArgs struct {
	Dir string

	SiteRoot    string
	SiteRootSet bool

	MaxPages    int
	MaxPagesSet bool

	Proxy    string
	ProxySet bool

	Timeout    time.Duration
	TimeoutSet bool

	ArchiveHTML    bool
	ArchiveHTMLSet bool

	MetricsFile    string
	MetricsFileSet bool

	LogLevel    string
	LogLevelSet bool

	LogFormat    string
	LogFormatSet bool

	MongoURI    string
	MongoURISet bool
}

// Effective 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
// 所有文件路径都已是绝对路径。
type Effective struct {
	Dir        string `validate:"required"`
	ConfigFile string // 实际读到的配置文件；未找到时为空

	SiteRoot string `validate:"required,http_url"`
	IndexURL string `validate:"required,http_url"`

	SeedFile   string `validate:"required"`
	URLMapFile string `validate:"required"`
	OutDir     string `validate:"required"`

	MaxPages int           `validate:"gte=1,lte=10000"`
	ProxyURL string        `validate:"omitempty,url"`
	Timeout  time.Duration `validate:"gt=0"`

	ArchiveHTML bool
	MetricsFile string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`

	Mongo MongoConfig
}

type MongoConfig struct {
	URI        string `validate:"omitempty,startswith=mongodb"`
	Database   string `validate:"required"`
	Collection string `validate:"required"`
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var validate = validator.New()

// Load 读取 <dir>/rhtrucks.*（可选）与 RHTRUCKS_* 环境变量，再与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI 显式指定 > 环境变量 > 配置文件 > 内置默认。
// dir 为空时使用 cwd。
func Load(cwd string, cli CLIArgs) (Effective, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	dir := cwdAbs
	if strings.TrimSpace(cli.Dir) != "" {
		dir = absCleanFrom(cwdAbs, cli.Dir)
	}

	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(dir, FileName), Err: err}
		}
	}
	cfgPath := v.ConfigFileUsed()
	applyCLI(v, cli)

	siteRoot := strings.TrimRight(strings.TrimSpace(v.GetString("site_root")), "/")
	indexURL := strings.TrimSpace(v.GetString("index_url"))
	if indexURL == "" {
		indexURL = siteRoot + "/food-trucks/"
	}

	eff := Effective{
		Dir:        dir,
		ConfigFile: cfgPath,

		SiteRoot: siteRoot,
		IndexURL: indexURL,

		SeedFile:   absCleanFrom(dir, v.GetString("seed_file")),
		URLMapFile: absCleanFrom(dir, v.GetString("url_map_file")),
		OutDir:     absCleanFrom(dir, v.GetString("out_dir")),

		MaxPages: v.GetInt("max_pages"),
		ProxyURL: strings.TrimSpace(v.GetString("proxy.url")),
		Timeout:  v.GetDuration("timeout"),

		ArchiveHTML: v.GetBool("archive_html"),
		MetricsFile: "",

		LogLevel:  strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
		LogFormat: strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),

		Mongo: MongoConfig{
			URI:        strings.TrimSpace(v.GetString("mongo.uri")),
			Database:   strings.TrimSpace(v.GetString("mongo.database")),
			Collection: strings.TrimSpace(v.GetString("mongo.collection")),
		},
	}
	if mf := strings.TrimSpace(v.GetString("metrics_file")); mf != "" {
		eff.MetricsFile = absCleanFrom(dir, mf)
	}

	if err := validate.Struct(eff); err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: humanizeValidation(err)}
	}
	return eff, nil
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(FileName)
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv 只对“已知 key”生效，因此每个 key 都必须有默认值。
	v.SetDefault("site_root", DefaultSiteRoot)
	v.SetDefault("index_url", "")
	v.SetDefault("seed_file", DefaultSeedFile)
	v.SetDefault("url_map_file", DefaultURLMapFile)
	v.SetDefault("out_dir", ".")
	v.SetDefault("max_pages", DefaultMaxPages)
	v.SetDefault("proxy.url", "")
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("archive_html", false)
	v.SetDefault("metrics_file", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", DefaultMongoDB)
	v.SetDefault("mongo.collection", DefaultMongoColl)
	return v
}

func applyCLI(v *viper.Viper, cli CLIArgs) {
	if cli.SiteRootSet {
		v.Set("site_root", cli.SiteRoot)
	}
	if cli.MaxPagesSet {
		v.Set("max_pages", cli.MaxPages)
	}
	if cli.ProxySet {
		v.Set("proxy.url", cli.Proxy)
	}
	if cli.TimeoutSet {
		v.Set("timeout", cli.Timeout)
	}
	if cli.ArchiveHTMLSet {
		v.Set("archive_html", cli.ArchiveHTML)
	}
	if cli.MetricsFileSet {
		v.Set("metrics_file", cli.MetricsFile)
	}
	if cli.LogLevelSet {
		v.Set("log.level", cli.LogLevel)
	}
	if cli.LogFormatSet {
		v.Set("log.format", cli.LogFormat)
	}
	if cli.MongoURISet {
		v.Set("mongo.uri", cli.MongoURI)
	}
}

// 字段名 -> 配置 key，用于把 validator 的错误翻译成用户写在配置里的名字。
var fieldKeys = map[string]string{
	"Dir":        "dir",
	"SiteRoot":   "site_root",
	"IndexURL":   "index_url",
	"SeedFile":   "seed_file",
	"URLMapFile": "url_map_file",
	"OutDir":     "out_dir",
	"MaxPages":   "max_pages",
	"ProxyURL":   "proxy.url",
	"Timeout":    "timeout",
	"LogLevel":   "log.level",
	"LogFormat":  "log.format",
	"URI":        "mongo.uri",
	"Database":   "mongo.database",
	"Collection": "mongo.collection",
}

func humanizeValidation(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		key := fieldKeys[fe.Field()]
		if key == "" {
			key = fe.Field()
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s 不满足 %s=%s（实际 %v）", key, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			parts = append(parts, fmt.Sprintf("%s 不满足 %s（实际 %v）", key, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(parts, "；"))
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
