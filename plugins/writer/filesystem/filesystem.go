package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"beamerscore/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Root: 输出根目录。为空时 ArtifactID 视为普通路径（相对于工作目录或绝对路径）；
	// 非空时 ArtifactID 必须是 Root 下的相对路径，禁止越界。
	Root string `yaml:"root"`
	// Atomic: 是否使用原子替换（同目录临时文件 + rename）。
	// 默认 true；显式 false 可关闭。
	Atomic *bool `yaml:"atomic"`
	// Backup: 替换已存在文件前，将旧内容保留为 <dest>.bak（用于配置回写）。
	Backup bool `yaml:"backup"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认。
	PermFile os.FileMode `yaml:"perm_file"`
	PermDir  os.FileMode `yaml:"perm_dir"`
	// BufSize: 写缓冲区大小；<=0 使用默认。
	BufSize int `yaml:"buf_size"`
}

// FS 为文件系统 Writer。
type FS struct {
	root    string
	atomic  bool
	backup  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer 实现；opts 可为 nil。
func New(opts *Options) *FS {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	w := &FS{root: strings.TrimSpace(o.Root), atomic: true, backup: o.Backup, permF: 0o644, permD: 0o755, bufSize: 64 * 1024}
	if o.Atomic != nil {
		w.atomic = *o.Atomic
	}
	if o.PermFile != 0 {
		w.permF = o.PermFile
	}
	if o.PermDir != 0 {
		w.permD = o.PermDir
	}
	if o.BufSize > 0 {
		w.bufSize = o.BufSize
	}
	return w
}

var _ contract.Writer = (*FS)(nil)

// Write 将 r 的全部字节写入 id 映射的目标路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.backup {
		if err := copyIfExists(dest, dest+".bak", w.permF); err != nil {
			return err
		}
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// mapPath: Clean + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(strings.TrimSpace(string(id)))
	if rel == "." || rel == "" || strings.HasSuffix(string(id), string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	if w.root == "" {
		return rel, nil
	}
	// 有根：禁止绝对路径、父级逃逸、Windows 卷名
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", contract.ErrPathInvalid
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return cleanup(err)
	}
	if err := bw.Flush(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 最佳努力：同步父目录元数据
	_ = syncDir(dir)
	return nil
}

// copyIfExists 将 src 复制为 dst；src 不存在时静默跳过。
func copyIfExists(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
