package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// 模板文件名。
const (
	BeamerYAMLFile = "beamer.yaml"
	ScoreINIFile   = "mailsend.ini"
	DotEnvFile     = ".env"
)

// scoreTemplate: mailsend.ini 默认模板。contents 为缩进续行的多行值。
const scoreTemplate = `[Debug]
debugmode = True
offlinemode = True
offlinedumpfile = offline_dump.txt
offlineerrorpercentile = 5
offlineseed = 0
dumpaddress = me@example.com
trials = 3

[Sending]
starting_no = 1
addr_char = @
continue_unsent = True
waitsec = 10
max_per_minute = 0

[Mail]
sender = 课程助教
subject = 成绩通知-
sanitize = False
plaintext = True
contents = <html><body>
	<p>{name} 同学：</p>
	<p>你的成绩为 <b>{score}</b>，排名第 {ranking}。</p>
	</body></html>

[Data]
filename = scores.xlsx
score_range = E2:E101
size = 100

[Server]
backend =
host = smtp.163.com
port = 465
starttls = False
domain = 163.com

[Flaky]
failures = 0
fatal_at = 0

[Logging]
level = info
dir = logs
`

// dotEnvTemplate: .env 默认模板（邮箱凭据）。
const dotEnvTemplate = `# scorereport .env 模板（由 --init-config 生成）
# 已存在的环境变量优先，不会被本文件覆盖。
SCOREREPORT_MAILBOX=
SCOREREPORT_PASSWD=
`

// BeamerTemplate 返回 beamer.yaml 的默认内容。
func BeamerTemplate() ([]byte, error) {
	keep, atomic := true, true
	cfg := BeamerDefaults()
	cfg.KeepPlain = &keep
	cfg.Writer.Atomic = &atomic
	return yaml.Marshal(cfg)
}

// WriteTemplates 在 dir 下生成 beamer.yaml、mailsend.ini 与 .env 模板。
// 已存在的文件跳过，不覆盖、不合并；返回实际写出的路径。
func WriteTemplates(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	by, err := BeamerTemplate()
	if err != nil {
		return nil, err
	}
	files := []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{BeamerYAMLFile, by, 0o644},
		{ScoreINIFile, []byte(scoreTemplate), 0o644},
		{DotEnvFile, []byte(dotEnvTemplate), 0o600},
	}
	var written []string
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		ok, err := writeExclusive(p, f.data, f.perm)
		if err != nil {
			return written, fmt.Errorf("write %s: %w", p, err)
		}
		if ok {
			written = append(written, p)
		}
	}
	return written, nil
}

// writeExclusive 仅在文件不存在时创建；已存在返回 false。
func writeExclusive(path string, data []byte, perm os.FileMode) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
