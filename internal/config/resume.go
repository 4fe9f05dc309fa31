package config

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"

	"beamerscore/pkg/contract"
)

// INIResumeStore 将续发断点回写到 [Sending] starting_no。
// 每次保存都重新读取磁盘文件，只改这一个键；ENV 覆盖值不会被写回。
type INIResumeStore struct {
	Path   string
	Writer contract.Writer
}

var _ contract.ResumeStore = (*INIResumeStore)(nil)

// SaveResume 原子替换配置文件。
func (s *INIResumeStore) SaveResume(no int) error {
	f, err := ini.LoadSources(iniOptions, s.Path)
	if err != nil {
		return fmt.Errorf("resume: reload %s: %w", s.Path, err)
	}
	f.Section("Sending").Key("starting_no").SetValue(strconv.Itoa(no))
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("resume: encode: %w", err)
	}
	// 退出路径上调用：ctx 可能已取消，断点仍需落盘
	if err := s.Writer.Write(context.Background(), contract.ArtifactID(s.Path), &buf); err != nil {
		return fmt.Errorf("resume: write %s: %w", s.Path, err)
	}
	return nil
}
