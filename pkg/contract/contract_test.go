package contract

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

// TestNormalizeDocPath 验证路径规范化逻辑。
func TestNormalizeDocPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"普通相对路径", "chapters/intro", "chapters/intro"},
		{"反斜杠", "chapters\\intro", "chapters/intro"},
		{"清理当前目录", "./a/./b", "a/b"},
		{"处理父目录", "a/b/../c", "a/c"},
		{"首尾空白", "  sec/x  ", "sec/x"},
		{"绝对路径", "/home/u/../v/doc", "/home/v/doc"},
		{"空串", "", "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDocPath(tt.input); got != tt.expected {
				t.Errorf("NormalizeDocPath(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestEnsureExt 扩展名补全。
func TestEnsureExt(t *testing.T) {
	cases := map[string]string{
		"intro":     "intro.tex",
		"intro.tex": "intro.tex",
		"intro.TEX": "intro.TEX.tex",
		"fig.tikz":  "fig.tikz.tex",
		"a/b/c":     "a/b/c.tex",
	}
	for in, want := range cases {
		if got := EnsureExt(in, ".tex"); got != want {
			t.Fatalf("EnsureExt(%q) = %q, 预期 %q", in, got, want)
		}
	}
	if EnsureExt("x", "") != "x" {
		t.Fatalf("空扩展名不应修改路径")
	}
}

// TestKind 失败分类：仅 TransientError（含包装链）为瞬时。
func TestKind(t *testing.T) {
	te := &TransientError{Op: "send", Err: io.ErrUnexpectedEOF}
	if Kind(te) != Transient {
		t.Fatalf("TransientError 应为瞬时")
	}
	wrapped := fmt.Errorf("no.5: %w", te)
	if !IsTransient(wrapped) {
		t.Fatalf("包装后仍应为瞬时")
	}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Fatalf("应可解包到底层错误")
	}
	if Kind(errors.New("boom")) != Unclassified {
		t.Fatalf("普通错误应为未分类")
	}
	if Kind(nil) != Unclassified {
		t.Fatalf("nil 视为未分类")
	}
	if Transient.String() != "transient" || Unclassified.String() != "unclassified" {
		t.Fatalf("String 错误")
	}
}

// TestTransientErrorMessage 错误信息包含操作名与底层原因。
func TestTransientErrorMessage(t *testing.T) {
	e := &TransientError{Op: "smtp send", Err: errors.New("421 busy")}
	if e.Error() != "smtp send: transient send failure: 421 busy" {
		t.Fatalf("unexpected msg %q", e.Error())
	}
	if (&TransientError{Op: "x"}).Error() != "x: transient send failure" {
		t.Fatalf("无底层错误时的信息不正确")
	}
}

// TestMessageFromAndCredentials 发件人头与口令脱敏。
func TestMessageFromAndCredentials(t *testing.T) {
	m := Message{FromName: "教务处", FromAddr: "box@163.com"}
	if m.From() != "教务处<box@163.com>" {
		t.Fatalf("From = %q", m.From())
	}
	if (Message{FromAddr: "a@b"}).From() != "a@b" {
		t.Fatalf("无显示名时应只返回地址")
	}
	c := Credentials{Username: "box", Password: "secret"}
	if s := fmt.Sprintf("%v", c); s != "box:***" {
		t.Fatalf("口令未脱敏: %q", s)
	}
	if !(Segment{Name: "thm"}).Captured() || (Segment{}).Captured() {
		t.Fatalf("Captured 判定错误")
	}
}
