package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"beamerscore/pkg/contract"
)

// DefaultCaptureNames 默认捕获的环境名（按优先级）。
var DefaultCaptureNames = []string{
	"theorem", "thm", "lemma", "prop", "cor", "eg", "conj", "remark", "assume", "definition", "figure", "itemize",
}

// BeamerDefaults 返回带有安全默认值的 Beamer 雏形。
func BeamerDefaults() Beamer {
	return Beamer{
		Input:        "main.tex",
		Output:       "main-beamer.tex",
		CaptureNames: cloneStrings(DefaultCaptureNames),
		DefaultExt:   ".tex",
		MaxDepth:     32,
		Logging:      Logging{Level: "info", Dir: "logs"},
	}
}

// LoadBeamerYAML 从文件路径或原始 YAML 解析 Beamer（严格拒绝未知字段）。
func LoadBeamerYAML(path string, raw []byte) (Beamer, error) {
	var cfg Beamer
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", contract.ErrConfig, err)
		}
		defer f.Close()
		r = f
	default:
		return cfg, fmt.Errorf("%w: no config source provided", contract.ErrConfig)
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: %s: %w", contract.ErrConfig, path, err)
	}
	return cfg, nil
}

// MergeBeamer 按优先级合并（后者覆盖前者）；空值不覆盖。
func MergeBeamer(base, over Beamer) Beamer {
	out := base
	if strings.TrimSpace(over.Input) != "" {
		out.Input = strings.TrimSpace(over.Input)
	}
	if strings.TrimSpace(over.Output) != "" {
		out.Output = strings.TrimSpace(over.Output)
	}
	if len(over.CaptureNames) > 0 {
		out.CaptureNames = cloneStrings(over.CaptureNames)
	}
	if over.KeepPlain != nil {
		v := *over.KeepPlain
		out.KeepPlain = &v
	}
	if over.DefaultExt != "" {
		out.DefaultExt = over.DefaultExt
	}
	if over.MaxDepth != 0 {
		out.MaxDepth = over.MaxDepth
	}
	if over.Writer.Atomic != nil {
		v := *over.Writer.Atomic
		out.Writer.Atomic = &v
	}
	if over.Writer.Backup {
		out.Writer.Backup = true
	}
	if strings.TrimSpace(over.Writer.Root) != "" {
		out.Writer.Root = strings.TrimSpace(over.Writer.Root)
	}
	if over.Writer.PermFile != 0 {
		out.Writer.PermFile = over.Writer.PermFile
	}
	if over.Writer.PermDir != 0 {
		out.Writer.PermDir = over.Writer.PermDir
	}
	if over.Writer.BufSize != 0 {
		out.Writer.BufSize = over.Writer.BufSize
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Dir) != "" {
		out.Logging.Dir = strings.TrimSpace(over.Logging.Dir)
	}
	return out
}

// BeamerEnvOverlay 从环境变量构建覆盖（前缀 BEAMER_；未知键忽略）。
// 支持：INPUT, OUTPUT, CAPTURE_NAMES（逗号分隔）, KEEP_PLAIN, DEFAULT_EXT, MAX_DEPTH, LOG_LEVEL, LOG_DIR
func BeamerEnvOverlay(environ []string) (Beamer, error) {
	var over Beamer
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "BEAMER_") {
			continue
		}
		switch strings.TrimPrefix(key, "BEAMER_") {
		case "INPUT":
			over.Input = strings.TrimSpace(val)
		case "OUTPUT":
			over.Output = strings.TrimSpace(val)
		case "CAPTURE_NAMES":
			over.CaptureNames = splitComma(val)
		case "KEEP_PLAIN":
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return over, fmt.Errorf("%w: BEAMER_KEEP_PLAIN=%q", contract.ErrConfig, val)
			}
			over.KeepPlain = &b
		case "DEFAULT_EXT":
			over.DefaultExt = strings.TrimSpace(val)
		case "MAX_DEPTH":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return over, fmt.Errorf("%w: BEAMER_MAX_DEPTH=%q", contract.ErrConfig, val)
			}
			over.MaxDepth = n
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOG_DIR":
			over.Logging.Dir = strings.TrimSpace(val)
		}
	}
	return over, nil
}

// ValidateBeamer 对最小必要边界做静态校验。
func ValidateBeamer(cfg Beamer) error {
	if strings.TrimSpace(cfg.Input) == "" || strings.TrimSpace(cfg.Output) == "" {
		return fmt.Errorf("%w: input and output must be set", contract.ErrConfig)
	}
	out := cfg.Output
	if cfg.Writer.Root != "" {
		out = filepath.Join(cfg.Writer.Root, out)
	}
	if contract.NormalizeDocPath(cfg.Input) == contract.NormalizeDocPath(out) {
		return fmt.Errorf("%w: output %q is the input file", contract.ErrConfig, cfg.Output)
	}
	if len(cfg.CaptureNames) == 0 {
		return fmt.Errorf("%w: capture_names empty", contract.ErrConfig)
	}
	for _, n := range cfg.CaptureNames {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%w: capture name cannot be empty", contract.ErrConfig)
		}
	}
	if cfg.MaxDepth < 1 {
		return fmt.Errorf("%w: max_depth must be >= 1", contract.ErrConfig)
	}
	if cfg.Writer.Root != "" && filepath.IsAbs(cfg.Output) {
		return fmt.Errorf("%w: output %q must be relative to writer.root", contract.ErrConfig, cfg.Output)
	}
	if cfg.Writer.BufSize < 0 {
		return fmt.Errorf("%w: writer.buf_size must be >= 0", contract.ErrConfig)
	}
	if cfg.DefaultExt != "" && !strings.HasPrefix(cfg.DefaultExt, ".") {
		return fmt.Errorf("%w: default_ext %q must start with '.'", contract.ErrConfig, cfg.DefaultExt)
	}
	return validLevel(cfg.Logging.Level)
}

func validLevel(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("%w: logging level %q", contract.ErrConfig, s)
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
