package config

import "os"

// Beamer: beamergen 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。
type Beamer struct {
	Input        string   `yaml:"input"`
	Output       string   `yaml:"output"`
	CaptureNames []string `yaml:"capture_names"`
	// KeepPlain: 是否透传普通行；nil 使用默认（true）。
	KeepPlain  *bool  `yaml:"keep_plain"`
	DefaultExt string `yaml:"default_ext"`
	// MaxDepth: \input 最大嵌套深度（防环）。
	MaxDepth int           `yaml:"max_depth"`
	Writer   WriterOptions `yaml:"writer"`
	Logging  Logging       `yaml:"logging"`
}

// WriterOptions: 输出文件写入方式。
// Root 非空时 output 按 Root 下的相对路径解析，不可越界；权限为 0 使用默认。
type WriterOptions struct {
	Root     string      `yaml:"root"`
	Atomic   *bool       `yaml:"atomic"`
	Backup   bool        `yaml:"backup"`
	PermFile os.FileMode `yaml:"perm_file"`
	PermDir  os.FileMode `yaml:"perm_dir"`
	BufSize  int         `yaml:"buf_size"`
}

// Logging: 控制台级别与文件目录；文件恒为 debug 级并按大小轮转。
type Logging struct {
	Level string `yaml:"level" ini:"level"`
	Dir   string `yaml:"dir" ini:"dir"`
}

// Score: scorereport 运行期只读设置，对应 mailsend.ini 各分区。
// 各后端自身的选项（[Server] 的 host/port、[Debug] 的离线转储、[Data]）由注册表工厂解码。
type Score struct {
	Debug   Debug   `ini:"Debug"`
	Sending Sending `ini:"Sending"`
	Mail    Mail    `ini:"Mail"`
	Server  Server  `ini:"Server"`
	Logging Logging `ini:"Logging"`
}

// Debug 分区。
type Debug struct {
	DebugMode   bool   `ini:"debugmode"`
	OfflineMode bool   `ini:"offlinemode"`
	DumpAddress string `ini:"dumpaddress"`
	Trials      int    `ini:"trials"`
}

// Sending 分区。
type Sending struct {
	StartingNo     int     `ini:"starting_no"`
	AddrChar       string  `ini:"addr_char"`
	ContinueUnsent bool    `ini:"continue_unsent"`
	WaitSec        float64 `ini:"waitsec"`
	MaxPerMinute   int     `ini:"max_per_minute"`
}

// Mail 分区。
type Mail struct {
	Contents  string `ini:"contents"`
	Sender    string `ini:"sender"`
	Subject   string `ini:"subject"`
	Sanitize  bool   `ini:"sanitize"`
	PlainText bool   `ini:"plaintext"`
}

// Server 分区（调度相关部分）。
type Server struct {
	// Backend: smtp | offline | flaky；为空时由 offlinemode 决定。
	Backend string `ini:"backend"`
	Domain  string `ini:"domain"`
}

// ResumePolicy 报告是否持久化续发断点（continue_unsent 且非调试模式）。
func (s Score) ResumePolicy() bool { return s.Sending.ContinueUnsent && !s.Debug.DebugMode }

// BackendName 返回生效的发送后端名。
func (s Score) BackendName() string {
	if s.Server.Backend != "" {
		return s.Server.Backend
	}
	if s.Debug.OfflineMode {
		return "offline"
	}
	return "smtp"
}
