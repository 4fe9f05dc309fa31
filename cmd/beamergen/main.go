// Command beamergen 将 LaTeX 文档中的定理类环境抽取为 beamer frame。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "beamerscore/internal/config"
	"beamerscore/internal/diag"
	"beamerscore/internal/pipeline"
	"beamerscore/pkg/contract"
)

const defaultConfigFile = "beamer.yaml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// options: 命令行参数（空值表示未覆盖）。
type options struct {
	config   string
	yes      bool
	logLevel string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var o options
	cmd := newRootCmd(&o, stdin, stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fprintf(stderr, "beamergen: %v\n", err)
	}
	return diag.ExitCode(err)
}

func newRootCmd(o *options, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "beamergen [input] [output]",
		Short:         "将定理/引理/图等环境抽取为 beamer frame",
		Args:          maxArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return convert(ctx, o, args, stdin, stdout, stderr)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", contract.ErrConfig, err)
	})
	f := cmd.Flags()
	f.StringVar(&o.config, "config", "", "配置文件路径（YAML）；缺省读取 ./beamer.yaml（若存在）")
	f.BoolVarP(&o.yes, "yes", "y", false, "跳过交互确认（输出已存在时直接覆盖）")
	f.StringVar(&o.logLevel, "log-level", "", "控制台日志级别（debug|info|warn|error）")
	return cmd
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) > n {
			return fmt.Errorf("%w: at most %d positional arguments, got %d", contract.ErrConfig, n, len(args))
		}
		return nil
	}
}

func convert(ctx context.Context, o *options, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := resolveConfig(o, args, os.Environ())
	if err != nil {
		return err
	}

	if !o.yes {
		fprintf(stdout, "Welcome to Beamer generator.\n\n")
		in, out, err := confirmPaths(newPrompter(stdin, stdout), cfg.Input, cfg.Output)
		if err != nil {
			return err
		}
		cfg.Input, cfg.Output = in, out
	}
	if err := cfgpkg.ValidateBeamer(cfg); err != nil {
		return err
	}

	logger, closeLog, err := diag.NewLogger(diag.Options{
		Level:   cfg.Logging.Level,
		Dir:     cfg.Logging.Dir,
		Name:    "beamergen",
		CorrID:  uuid.NewString(),
		Console: stderr,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = closeLog() }()
	logger.Debug("effective config",
		zap.String("input", cfg.Input),
		zap.String("output", cfg.Output),
		zap.Strings("capture_names", cfg.CaptureNames),
		zap.Int("max_depth", cfg.MaxDepth))

	comp, set, err := cfgpkg.AssembleBeamer(cfg)
	if err != nil {
		return err
	}
	t := diag.Start(logger, "pipeline", "convert")
	st, err := pipeline.Convert(ctx, comp, set, logger)
	if err != nil {
		t.Fail("convert failed", err)
		return err
	}
	t.Finish("convert", zap.Int("frames", st.Frames), zap.Int("lines", st.Lines))
	fprintf(stdout, "Done. Have a nice day.\n")
	return nil
}

// resolveConfig: Defaults → YAML → ENV → CLI。
func resolveConfig(o *options, args []string, environ []string) (cfgpkg.Beamer, error) {
	cfg := cfgpkg.BeamerDefaults()
	path := strings.TrimSpace(o.config)
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		base, err := cfgpkg.LoadBeamerYAML(path, nil)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.MergeBeamer(cfg, base)
	}
	env, err := cfgpkg.BeamerEnvOverlay(environ)
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.MergeBeamer(cfg, env)

	var cli cfgpkg.Beamer
	if len(args) > 0 {
		cli.Input = args[0]
	}
	if len(args) > 1 {
		cli.Output = args[1]
	}
	cli.Logging.Level = o.logLevel
	return cfgpkg.MergeBeamer(cfg, cli), nil
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
