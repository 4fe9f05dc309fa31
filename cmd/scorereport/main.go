// Command scorereport 读取成绩表，为每位学生发送包含分数与名次的 HTML 邮件。
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
	"beamerscore/internal/dispatch"
	"beamerscore/pkg/contract"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	config   string
	env      string
	status   bool
	logLevel string
	initDir  string
}

func run(args []string, stdout, stderr io.Writer) int {
	var o options
	cmd := newRootCmd(&o, stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fprintf(stderr, "scorereport: %v\n", err)
	}
	return diag.ExitCode(err)
}

func newRootCmd(o *options, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "scorereport",
		Short:         "按成绩表逐个发送成绩与名次通知邮件",
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(o.initDir) != "" {
				return initConfig(strings.TrimSpace(o.initDir), stdout)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return send(ctx, o, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", contract.ErrConfig, err)
	})
	f := cmd.Flags()
	f.StringVar(&o.config, "config", cfgpkg.ScoreINIFile, "配置文件路径（INI）；starting_no 会被回写")
	f.StringVar(&o.env, "env", cfgpkg.DotEnvFile, ".env 路径（不覆盖已存在的环境变量）")
	f.BoolVar(&o.status, "status", false, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	f.StringVar(&o.logLevel, "log-level", "", "控制台日志级别（覆盖 [Logging] level）")
	f.StringVar(&o.initDir, "init-config", "", "在指定目录生成 beamer.yaml、mailsend.ini 与 .env 模板（已存在则跳过）；不带值时为当前目录")
	f.Lookup("init-config").NoOptDefVal = "."
	return cmd
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", contract.ErrConfig, args)
	}
	return nil
}

func initConfig(dir string, stdout io.Writer) error {
	written, err := cfgpkg.WriteTemplates(dir)
	if err != nil {
		return fmt.Errorf("%w: init-config: %w", contract.ErrConfig, err)
	}
	if len(written) == 0 {
		fprintf(stdout, "所有模板均已存在，未做修改。\n")
	}
	for _, p := range written {
		fprintf(stdout, "已生成 %s\n", p)
	}
	return nil
}

func send(ctx context.Context, o *options, stderr io.Writer) error {
	if err := cfgpkg.LoadDotEnv(o.env); err != nil {
		return err
	}
	sf, err := cfgpkg.LoadScoreINI(o.config, nil)
	if err != nil {
		return err
	}
	cfgpkg.ScoreEnvOverlay(sf, os.Environ())
	s, err := sf.Settings()
	if err != nil {
		return err
	}
	if lv := strings.TrimSpace(o.logLevel); lv != "" {
		s.Logging.Level = lv
	}
	if err := cfgpkg.ValidateScore(sf, s); err != nil {
		return err
	}
	cred, err := cfgpkg.Credentials(os.Getenv, cfgpkg.PasswordRequired(s))
	if err != nil {
		return err
	}

	logger, closeLog, err := diag.NewLogger(diag.Options{
		Level:   s.Logging.Level,
		Dir:     s.Logging.Dir,
		Name:    "scorereport",
		CorrID:  uuid.NewString(),
		Console: stderr,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = closeLog() }()
	logger.Debug("effective config",
		zap.String("backend", s.BackendName()),
		zap.Bool("debugmode", s.Debug.DebugMode),
		zap.Int("starting_no", s.Sending.StartingNo),
		zap.String("addr_char", s.Sending.AddrChar),
		zap.Float64("waitsec", s.Sending.WaitSec),
		zap.Bool("resume", s.ResumePolicy()),
		zap.Stringer("account", cred))

	comp, set, err := cfgpkg.AssembleScore(sf, s, cred)
	if err != nil {
		return err
	}
	term := diag.NewTerminal(stderr, o.status)
	comp.Term = term
	term.RunStart(s.BackendName())

	sum, err := dispatch.Run(ctx, comp, set, logger)
	detail := fmt.Sprintf("sent %d | skipped %d | retries %d", sum.Sent, sum.Skipped, sum.Retries)
	if sum.Persisted {
		detail += fmt.Sprintf(" | starting_no=%d", sum.Resume)
	}
	term.RunFinish(err == nil, detail)
	return err
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
