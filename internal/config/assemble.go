package config

import (
	"fmt"
	"time"

	"beamerscore/internal/dispatch"
	"beamerscore/internal/pipeline"
	"beamerscore/internal/rate"
	"beamerscore/pkg/contract"
	"beamerscore/pkg/registry"
	"beamerscore/plugins/emitter/beamer"
	mhtml "beamerscore/plugins/message/html"
	"beamerscore/plugins/segmenter/envblock"
	"beamerscore/plugins/source/texinput"
	wfs "beamerscore/plugins/writer/filesystem"
)

// mailerSection: 各发送后端的选项所在分区。
var mailerSection = map[string]string{
	"smtp":    "Server",
	"offline": "Debug",
	"flaky":   "Flaky",
}

// AssembleBeamer 基于已校验配置装配转换流水线组件。
func AssembleBeamer(cfg Beamer) (pipeline.Components, pipeline.Settings, error) {
	var comp pipeline.Components
	seg, err := envblock.New(cfg.CaptureNames)
	if err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("%w: capture_names: %w", contract.ErrConfig, err)
	}
	newW := registry.Writer["fs"]
	if newW == nil {
		return comp, pipeline.Settings{}, fmt.Errorf("%w: writer fs not registered", contract.ErrConfig)
	}
	w, err := newW(registry.Value(wfs.Options{
		Root:     cfg.Writer.Root,
		Atomic:   cfg.Writer.Atomic,
		Backup:   cfg.Writer.Backup,
		PermFile: cfg.Writer.PermFile,
		PermDir:  cfg.Writer.PermDir,
		BufSize:  cfg.Writer.BufSize,
	}))
	if err != nil {
		return comp, pipeline.Settings{}, err
	}
	srcOpts := &texinput.Options{DefaultExt: cfg.DefaultExt, MaxDepth: cfg.MaxDepth}
	comp = pipeline.Components{
		Open: func(name string) (contract.LineSource, error) {
			return texinput.Open(texinput.OSOpener, name, srcOpts)
		},
		Segment: func(src contract.LineSource) contract.SegmentStream { return seg.Stream(src) },
		Emitter: beamer.New(&beamer.Options{KeepPlain: cfg.KeepPlain}),
		Writer:  w,
	}
	return comp, pipeline.Settings{Input: cfg.Input, Output: cfg.Output}, nil
}

// AssembleScore 基于已校验设置装配派发组件。
// cred 为邮箱凭据；Mailbox 同时作为发件地址的用户名部分。
func AssembleScore(sf *ScoreFile, s Score, cred contract.Credentials) (dispatch.Components, dispatch.Settings, error) {
	var comp dispatch.Components
	backend := s.BackendName()
	newM := registry.Mailer[backend]
	if newM == nil {
		return comp, dispatch.Settings{}, fmt.Errorf("%w: mail backend %q not registered", contract.ErrConfig, backend)
	}
	var dec registry.Decoder
	if sec, ok := mailerSection[backend]; ok {
		dec = sf.Section(sec)
	}
	m, err := newM(dec)
	if err != nil {
		return comp, dispatch.Settings{}, fmt.Errorf("mailer %s: %w", backend, err)
	}

	src, err := registry.RecordSource["xlsx"](sf.Section("Data"))
	if err != nil {
		return comp, dispatch.Settings{}, fmt.Errorf("records: %w", err)
	}

	b, err := mhtml.New(mhtml.Options{
		Contents:    s.Mail.Contents,
		Sender:      s.Mail.Sender,
		Subject:     s.Mail.Subject,
		Mailbox:     cred.Username,
		Domain:      s.Server.Domain,
		DebugMode:   s.Debug.DebugMode,
		DumpAddress: s.Debug.DumpAddress,
		Sanitize:    &s.Mail.Sanitize,
		PlainText:   &s.Mail.PlainText,
	})
	if err != nil {
		return comp, dispatch.Settings{}, fmt.Errorf("message: %w", err)
	}

	newW := registry.Writer["fs"]
	w, err := newW(nil)
	if err != nil {
		return comp, dispatch.Settings{}, err
	}

	comp = dispatch.Components{
		Source:  src,
		Builder: b,
		Mailer:  m,
		Store:   &INIResumeStore{Path: sf.Path, Writer: w},
	}
	if t := rate.NewThrottle(s.Sending.MaxPerMinute); t != nil {
		comp.Gate = t
	}
	set := dispatch.Settings{
		Filter: dispatch.Filter{
			StartingNo: s.Sending.StartingNo,
			AddrFilter: s.Sending.AddrChar,
			DebugMode:  s.Debug.DebugMode,
			Trials:     s.Debug.Trials,
		},
		Credentials: cred,
		Wait:        time.Duration(s.Sending.WaitSec * float64(time.Second)),
		Resume:      s.ResumePolicy(),
	}
	return comp, set, nil
}

// PasswordRequired 报告当前后端是否需要邮箱口令（模拟后端不需要）。
func PasswordRequired(s Score) bool { return s.BackendName() == "smtp" }
