package texinput

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"beamerscore/pkg/contract"
)

// Options 为 LaTeX 行源的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `yaml:"buf_size"`
	// DefaultExt: 被引用路径不以该后缀结尾时自动追加。默认 ".tex"。
	DefaultExt string `yaml:"default_ext"`
	// MaxDepth: 最大嵌套引用深度（根文档为 0）。默认 32；超出返回 ErrInvalidInput。
	MaxDepth int `yaml:"max_depth"`
}

const (
	defaultBuf   = 64 * 1024
	defaultExt   = ".tex"
	defaultDepth = 32
)

// 假设：\input 独占一行；同一行至多一个引用标记。
var inputRe = regexp.MustCompile(`\\input\{(.*?)\}`)

// frame 为一个打开中的文档（每层引用深度一个句柄）。
type frame struct {
	name string
	rc   io.ReadCloser
	br   *bufio.Reader
}

// Source 实现 contract.LineSource：按行惰性读取，遇到 \input{...} 时深度优先内联被引用文档，
// 被引用文档读尽后插入一个空行分隔，再恢复外层。
type Source struct {
	open     contract.Opener
	ext      string
	maxDepth int
	bufSize  int

	stack []*frame
	line  string
	err   error
}

var _ contract.LineSource = (*Source)(nil)

// Open 打开根文档并返回行源。根文档不存在时返回 ErrSourceNotFound。
func Open(open contract.Opener, name string, opts *Options) (*Source, error) {
	if open == nil {
		open = OSOpener
	}
	s := &Source{open: open, ext: defaultExt, maxDepth: defaultDepth, bufSize: defaultBuf}
	if opts != nil {
		if opts.BufSize > 0 {
			s.bufSize = opts.BufSize
		}
		if opts.DefaultExt != "" {
			s.ext = opts.DefaultExt
		}
		if opts.MaxDepth > 0 {
			s.maxDepth = opts.MaxDepth
		}
	}
	if err := s.push(name); err != nil {
		return nil, err
	}
	return s, nil
}

// Next 前进到下一行；结束或出错时返回 false。
func (s *Source) Next() bool {
	if s.err != nil {
		return false
	}
	for len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		raw, err := top.br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			s.fail(fmt.Errorf("texinput: read %s: %w", top.name, err))
			return false
		}
		if raw == "" {
			// 当前文档读尽：释放句柄
			if cerr := s.pop(); cerr != nil {
				s.fail(cerr)
				return false
			}
			if len(s.stack) > 0 {
				// 被内联文档结束，输出一个分隔空行
				s.line = "\n"
				return true
			}
			return false
		}
		line := normalizeEOL(raw)
		if m := inputRe.FindStringSubmatch(line); m != nil {
			if err := s.push(m[1]); err != nil {
				s.fail(err)
				return false
			}
			continue
		}
		s.line = line
		return true
	}
	return false
}

// Line 返回当前行（含换行；文档末行无换行时原样返回）。
func (s *Source) Line() string { return s.line }

// Err 返回首个错误；正常结束为 nil。
func (s *Source) Err() error { return s.err }

// Depth 返回当前打开的文档层数（根文档计 1）。
func (s *Source) Depth() int { return len(s.stack) }

// Close 释放所有仍打开的句柄；可重复调用。
func (s *Source) Close() error {
	var errs []error
	for len(s.stack) > 0 {
		if err := s.pop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Source) push(ref string) error {
	if len(s.stack) > s.maxDepth {
		return fmt.Errorf("texinput: %w: include depth exceeds %d at %q", contract.ErrInvalidInput, s.maxDepth, ref)
	}
	name := contract.NormalizeDocPath(contract.EnsureExt(ref, s.ext))
	rc, err := s.open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("texinput: %w: %s: %w", contract.ErrSourceNotFound, name, err)
		}
		return fmt.Errorf("texinput: open %s: %w", name, err)
	}
	s.stack = append(s.stack, &frame{name: name, rc: rc, br: bufio.NewReaderSize(rc, s.bufSize)})
	return nil
}

func (s *Source) pop() error {
	n := len(s.stack)
	top := s.stack[n-1]
	s.stack[n-1] = nil
	s.stack = s.stack[:n-1]
	return top.rc.Close()
}

// fail 记录首错并释放全部句柄。
func (s *Source) fail(err error) {
	s.err = err
	s.line = ""
	_ = s.Close()
}

// normalizeEOL 仅做 CRLF→LF 的最小必要归一。
func normalizeEOL(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2] + "\n"
	}
	return s
}

// OSOpener 通过操作系统文件系统打开文档（路径相对于当前工作目录）。
func OSOpener(name string) (io.ReadCloser, error) {
	return os.Open(filepath.FromSlash(name))
}

// FSOpener 将 fs.FS 适配为 Opener（测试中配合 fstest.MapFS 使用）。
func FSOpener(fsys fs.FS) contract.Opener {
	return func(name string) (io.ReadCloser, error) {
		return fsys.Open(name)
	}
}
