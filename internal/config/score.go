package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"beamerscore/pkg/contract"
	"beamerscore/pkg/registry"
)

// iniOptions 与 Python configparser 写出的 mailsend.ini 兼容：
// 缩进续行为多行值；# 与 ; 不作为行内注释（HTML 模板中常见）；键名大小写不敏感。
var iniOptions = ini.LoadOptions{
	AllowPythonMultilineValues: true,
	IgnoreInlineComment:        true,
	InsensitiveKeys:            true,
}

// 已知分区名（ENV 覆盖时按大写匹配回原名）。
var scoreSections = []string{"Debug", "Sending", "Mail", "Data", "Server", "Logging", "Flaky"}

// ScoreDefaults 返回带有安全默认值的 Score 雏形；未出现在 INI 中的键保留这些值。
func ScoreDefaults() Score {
	return Score{
		Sending: Sending{StartingNo: 1, WaitSec: 10},
		Mail:    Mail{PlainText: true},
		Server:  Server{Domain: "163.com"},
		Logging: Logging{Level: "info", Dir: "logs"},
	}
}

// ScoreFile 为已加载（并叠加 ENV）的 INI 文件；仅供本进程读取，不回写。
type ScoreFile struct {
	Path string
	file *ini.File
}

// LoadScoreINI 从文件路径或原始字节加载 INI。
func LoadScoreINI(path string, raw []byte) (*ScoreFile, error) {
	var src any = path
	if len(raw) > 0 {
		src = raw
	} else if path == "" {
		return nil, fmt.Errorf("%w: no config source provided", contract.ErrConfig)
	}
	f, err := ini.LoadSources(iniOptions, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", contract.ErrConfig, path, err)
	}
	return &ScoreFile{Path: path, file: f}, nil
}

// ScoreEnvOverlay 将 SCOREREPORT_<SECTION>__<KEY>=val 写入内存中的 INI（不回写磁盘）。
// 例如 SCOREREPORT_SENDING__STARTING_NO=3。未知分区忽略。
func ScoreEnvOverlay(sf *ScoreFile, environ []string) {
	const prefix = "SCOREREPORT_"
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		sec, k, ok := strings.Cut(strings.TrimPrefix(key, prefix), "__")
		if !ok || k == "" {
			continue
		}
		for _, name := range scoreSections {
			if strings.EqualFold(name, sec) {
				sf.file.Section(name).Key(strings.ToLower(k)).SetValue(val)
				break
			}
		}
	}
}

// Settings 将 INI 映射为只读 Score（缺省键保留默认值）。
func (sf *ScoreFile) Settings() (Score, error) {
	s := ScoreDefaults()
	if err := sf.file.MapTo(&s); err != nil {
		return s, fmt.Errorf("%w: %w", contract.ErrConfig, err)
	}
	// configparser 的 %% 插值转义
	s.Mail.Contents = unescapePercent(s.Mail.Contents)
	s.Mail.Sender = unescapePercent(s.Mail.Sender)
	s.Mail.Subject = unescapePercent(s.Mail.Subject)
	return s, nil
}

// Section 返回分区的解码器，供注册表工厂解析后端选项。
func (sf *ScoreFile) Section(name string) registry.Decoder {
	return func(v any) error {
		if err := sf.file.Section(name).MapTo(v); err != nil {
			return fmt.Errorf("%w: [%s]: %w", contract.ErrConfig, name, err)
		}
		return nil
	}
}

// HasKey 报告分区中是否存在键。
func (sf *ScoreFile) HasKey(section, key string) bool {
	sec, err := sf.file.GetSection(section)
	return err == nil && sec.HasKey(key)
}

// ValidateScore 对最小必要边界做静态校验。
func ValidateScore(sf *ScoreFile, s Score) error {
	bad := func(format string, a ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{contract.ErrConfig}, a...)...)
	}
	if s.Sending.StartingNo < 0 {
		return bad("starting_no must be >= 0")
	}
	if s.Sending.WaitSec < 0 {
		return bad("waitsec must be >= 0")
	}
	if s.Sending.MaxPerMinute < 0 {
		return bad("max_per_minute must be >= 0")
	}
	if s.Debug.Trials < 0 {
		return bad("trials must be >= 0")
	}
	if s.Debug.DebugMode && strings.TrimSpace(s.Debug.DumpAddress) == "" {
		return bad("dumpaddress required in debug mode")
	}
	if strings.TrimSpace(s.Mail.Contents) == "" {
		return bad("[Mail] contents empty")
	}
	if strings.TrimSpace(s.Server.Domain) == "" {
		return bad("[Server] domain empty")
	}
	for _, k := range []string{"filename", "score_range", "size"} {
		if !sf.HasKey("Data", k) {
			return bad("[Data] %s missing", k)
		}
	}
	if registry.Mailer[s.BackendName()] == nil {
		return bad("mail backend %q not registered", s.BackendName())
	}
	return validLevel(s.Logging.Level)
}

func unescapePercent(s string) string { return strings.ReplaceAll(s, "%%", "%") }
