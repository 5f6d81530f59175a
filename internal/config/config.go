package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	FileName           = "petwatch.yaml"
	DotEnvName         = ".env"
	DefaultCategoryURL = "https://www.eslite.com/category/3/123"
	DefaultOrigin      = "https://www.eslite.com"
	DefaultMaxPages    = 50
	MaxPagesLimit      = 500
	DefaultFetcher     = FetcherBrowser
	DefaultPageTimeout = 60 * time.Second
	DefaultSettleDelay = 5 * time.Second
	DefaultBackend     = "json"
	DefaultJSONPath    = "previous_books.json"
	DefaultSQLitePath  = "petwatch.db"
	DefaultMongoDB     = "petwatch"
	DefaultTimezone    = "Asia/Taipei"
	DefaultServeAddr   = ":8080"
	DefaultSMTPServer  = "smtp.gmail.com"
	DefaultSMTPPort    = 587
)

const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

// DefaultAnchors 是 watch 模式的默认整点（本地时区）。
var DefaultAnchors = []int{9, 21}

// 环境变量名沿用旧版脚本，已有的 .env 可以直接复用。
const (
	EnvSMTPServer     = "SMTP_SERVER"
	EnvSMTPPort       = "SMTP_PORT"
	EnvSenderEmail    = "SENDER_EMAIL"
	EnvSenderPassword = "SENDER_PASSWORD"
	EnvRecipientEmail = "RECIPIENT_EMAIL"
	EnvMongoURI       = "PETWATCH_MONGO_URI"
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --max-pages 必须能覆盖配置文件。
type CLIArgs struct {
	ConfigPath string

	MaxPages    int
	MaxPagesSet bool

	Fetcher    string
	FetcherSet bool

	SnapshotPath    string
	SnapshotPathSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 petwatch.yaml 的解析结构。
type FileConfig struct {
	CategoryURL  string        `yaml:"category_url"`
	Origin       string        `yaml:"origin"`
	MaxPages     int           `yaml:"max_pages"`
	Fetcher      string        `yaml:"fetcher"`
	PageTimeout  string        `yaml:"page_timeout"`
	SettleDelay  string        `yaml:"settle_delay"`
	Proxy        *ProxyConfig  `yaml:"proxy"`
	Snapshot     *SnapshotFile `yaml:"snapshot"`
	TaxonomyFile string        `yaml:"taxonomy_file"`
	SMTP         *SMTPFile     `yaml:"smtp"`
	Watch        *WatchFile    `yaml:"watch"`
	Serve        *ServeFile    `yaml:"serve"`
	Log          *LogFile      `yaml:"log"`
}

type ProxyConfig struct {
	URL string `yaml:"url"`
}

type SnapshotFile struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
}

type SMTPFile struct {
	Server     string   `yaml:"server"`
	Port       int      `yaml:"port"`
	Sender     string   `yaml:"sender"`
	Password   string   `yaml:"password"`
	Recipients []string `yaml:"recipients"`
}

type WatchFile struct {
	Anchors  []int  `yaml:"anchors"`
	Timezone string `yaml:"timezone"`
}

type ServeFile struct {
	Addr string `yaml:"addr"`
}

type LogFile struct {
	Level string `yaml:"level"`
	Dev   *bool  `yaml:"dev"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigFile 是实际读取到的配置文件；未读取任何文件时为空。
	ConfigFile string

	CategoryURL string
	Origin      string
	MaxPages    int

	Fetcher     string
	PageTimeout time.Duration
	SettleDelay time.Duration
	ProxyURL    string

	Snapshot SnapshotConfig

	// TaxonomyFile 为空表示使用内置分类表。
	TaxonomyFile string

	SMTP SMTPConfig

	Watch WatchConfig

	ServeAddr string

	LogLevel string
	LogDev   bool
}

type SnapshotConfig struct {
	Backend  string
	Path     string
	MongoURI string
	MongoDB  string
}

type SMTPConfig struct {
	Server     string
	Port       int
	Sender     string
	Password   string
	Recipients []string
}

type WatchConfig struct {
	Anchors  []int
	Timezone string
	Location *time.Location
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
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

// LoadEffective 发现并读取配置文件与 .env，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/petwatch.yaml（可选）
// 3) <cwd>/.env（可选）只补充进程环境变量中缺失的键
//
// 覆盖优先级（固定）：CLI > 环境变量 > .env > 配置文件 > 默认值。
// getenv 为 nil 时使用 os.Getenv。
func LoadEffective(cwd string, cli CLIArgs, getenv func(string) string) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		if required {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		cfgPath = ""
	}

	dotenv, err := readDotEnv(filepath.Join(cwdAbs, DotEnvName))
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwdAbs, DotEnvName), Err: err}
	}
	env := envLookup(getenv, dotenv)

	eff, err := merge(cwdAbs, cli, fc, env)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigFile = cfgPath
	return eff, nil
}

func merge(cwd string, cli CLIArgs, fc FileConfig, env func(string) string) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		CategoryURL: strings.TrimSpace(fc.CategoryURL),
		Origin:      strings.TrimRight(strings.TrimSpace(fc.Origin), "/"),
		ServeAddr:   DefaultServeAddr,
	}
	if eff.CategoryURL == "" {
		eff.CategoryURL = DefaultCategoryURL
	}
	if eff.Origin == "" {
		eff.Origin = DefaultOrigin
	}
	if err := validateHTTPURL("category_url", eff.CategoryURL); err != nil {
		return EffectiveConfig{}, err
	}
	if err := validateHTTPURL("origin", eff.Origin); err != nil {
		return EffectiveConfig{}, err
	}

	// max_pages：CLI > config > 默认；超出范围截断。
	maxPages := fc.MaxPages
	if cli.MaxPagesSet {
		maxPages = cli.MaxPages
	}
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}
	if maxPages < 1 {
		maxPages = 1
	}
	if maxPages > MaxPagesLimit {
		maxPages = MaxPagesLimit
	}
	eff.MaxPages = maxPages

	fetcher := strings.ToLower(strings.TrimSpace(fc.Fetcher))
	if cli.FetcherSet {
		fetcher = strings.ToLower(strings.TrimSpace(cli.Fetcher))
	}
	if fetcher == "" {
		fetcher = DefaultFetcher
	}
	if fetcher != FetcherHTTP && fetcher != FetcherBrowser {
		return EffectiveConfig{}, fmt.Errorf("fetcher 只能是 http 或 browser，实际是 %q", fetcher)
	}
	eff.Fetcher = fetcher

	var err error
	if eff.PageTimeout, err = parseDuration("page_timeout", fc.PageTimeout, DefaultPageTimeout); err != nil {
		return EffectiveConfig{}, err
	}
	if eff.SettleDelay, err = parseDuration("settle_delay", fc.SettleDelay, DefaultSettleDelay); err != nil {
		return EffectiveConfig{}, err
	}

	if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if eff.ProxyURL != "" {
		if _, err := url.Parse(eff.ProxyURL); err != nil {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%w", err)
		}
	}

	if eff.Snapshot, err = mergeSnapshot(cwd, cli, fc.Snapshot, env); err != nil {
		return EffectiveConfig{}, err
	}

	if p := strings.TrimSpace(fc.TaxonomyFile); p != "" {
		eff.TaxonomyFile = absCleanFrom(cwd, p)
	}

	if eff.SMTP, err = mergeSMTP(fc.SMTP, env); err != nil {
		return EffectiveConfig{}, err
	}

	if eff.Watch, err = mergeWatch(fc.Watch); err != nil {
		return EffectiveConfig{}, err
	}

	if fc.Serve != nil && strings.TrimSpace(fc.Serve.Addr) != "" {
		eff.ServeAddr = strings.TrimSpace(fc.Serve.Addr)
	}

	if fc.Log != nil {
		eff.LogLevel = strings.TrimSpace(fc.Log.Level)
		if fc.Log.Dev != nil {
			eff.LogDev = *fc.Log.Dev
		}
	}
	if cli.LogLevelSet {
		eff.LogLevel = strings.TrimSpace(cli.LogLevel)
	}
	return eff, nil
}

func mergeSnapshot(cwd string, cli CLIArgs, sf *SnapshotFile, env func(string) string) (SnapshotConfig, error) {
	var sc SnapshotConfig
	if sf != nil {
		sc = SnapshotConfig{
			Backend:  strings.ToLower(strings.TrimSpace(sf.Backend)),
			Path:     strings.TrimSpace(sf.Path),
			MongoURI: strings.TrimSpace(sf.MongoURI),
			MongoDB:  strings.TrimSpace(sf.MongoDB),
		}
	}
	if sc.Backend == "" {
		sc.Backend = DefaultBackend
	}
	if cli.SnapshotPathSet {
		sc.Path = strings.TrimSpace(cli.SnapshotPath)
	}
	if v := env(EnvMongoURI); v != "" {
		sc.MongoURI = v
	}

	switch sc.Backend {
	case "json":
		if sc.Path == "" {
			sc.Path = DefaultJSONPath
		}
	case "sqlite":
		if sc.Path == "" {
			sc.Path = DefaultSQLitePath
		}
	case "mongo":
		if sc.MongoURI == "" {
			return SnapshotConfig{}, errors.New("snapshot.backend=mongo 但 snapshot.mongo_uri 为空")
		}
		if sc.MongoDB == "" {
			sc.MongoDB = DefaultMongoDB
		}
		return sc, nil
	default:
		return SnapshotConfig{}, fmt.Errorf("snapshot.backend 只能是 json、sqlite 或 mongo，实际是 %q", sc.Backend)
	}
	sc.Path = absCleanFrom(cwd, sc.Path)
	return sc, nil
}

func mergeSMTP(sf *SMTPFile, env func(string) string) (SMTPConfig, error) {
	var sc SMTPConfig
	if sf != nil {
		sc = SMTPConfig{
			Server:     strings.TrimSpace(sf.Server),
			Port:       sf.Port,
			Sender:     strings.TrimSpace(sf.Sender),
			Password:   sf.Password,
			Recipients: splitList(sf.Recipients...),
		}
	}
	if v := env(EnvSMTPServer); v != "" {
		sc.Server = v
	}
	if v := env(EnvSMTPPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return SMTPConfig{}, fmt.Errorf("%s 不是合法端口：%q", EnvSMTPPort, v)
		}
		sc.Port = p
	}
	if v := env(EnvSenderEmail); v != "" {
		sc.Sender = v
	}
	if v := env(EnvSenderPassword); v != "" {
		sc.Password = v
	}
	if v := env(EnvRecipientEmail); v != "" {
		sc.Recipients = splitList(v)
	}
	if sc.Server == "" {
		sc.Server = DefaultSMTPServer
	}
	if sc.Port == 0 {
		sc.Port = DefaultSMTPPort
	}
	if sc.Port < 1 || sc.Port > 65535 {
		return SMTPConfig{}, fmt.Errorf("smtp.port 超出范围：%d", sc.Port)
	}
	return sc, nil
}

func mergeWatch(wf *WatchFile) (WatchConfig, error) {
	wc := WatchConfig{Timezone: DefaultTimezone}
	var anchors []int
	if wf != nil {
		anchors = wf.Anchors
		if tz := strings.TrimSpace(wf.Timezone); tz != "" {
			wc.Timezone = tz
		}
	}
	if len(anchors) == 0 {
		anchors = DefaultAnchors
	}

	seen := make(map[int]struct{}, len(anchors))
	for _, h := range anchors {
		if h < 0 || h > 23 {
			return WatchConfig{}, fmt.Errorf("watch.anchors 必须在 0..23 之间，实际 %d", h)
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		wc.Anchors = append(wc.Anchors, h)
	}
	sort.Ints(wc.Anchors)

	loc, err := time.LoadLocation(wc.Timezone)
	if err != nil {
		return WatchConfig{}, fmt.Errorf("watch.timezone 无效：%w", err)
	}
	wc.Location = loc
	return wc, nil
}

func validateHTTPURL(field, s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, s)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, s)
	}
	return nil
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s 无效：%w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s 必须大于 0：%q", field, s)
	}
	return d, nil
}

// splitList 支持逗号分隔，去空白、去空项、去重（保持顺序）。
func splitList(in ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

func envLookup(getenv func(string) string, dotenv map[string]string) func(string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	return func(key string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(dotenv[key])
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// readDotEnv 读取 .env；文件不存在时返回空表。
func readDotEnv(path string) (map[string]string, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return m, nil
}
