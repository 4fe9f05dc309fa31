package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（哨兵）。
var (
	// ErrSourceNotFound: 被引用的文档不存在（致命，不恢复）。
	ErrSourceNotFound = errors.New("source not found")
	// ErrInvalidInput: 输入不满足前置条件（格式、范围、深度等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径。
	ErrPathInvalid = errors.New("path invalid")
	// ErrConfig: 配置缺失或非法。
	ErrConfig = errors.New("config invalid")
	// ErrTransientSend: 可恢复的协议级发送失败；派发循环原地无限重试。
	ErrTransientSend = errors.New("transient send failure")
)

// FailureKind: 发送失败的两级分类。
type FailureKind int

const (
	// Unclassified: 除已知瞬时失败外的一切错误；终止循环并持久化断点。
	Unclassified FailureKind = iota
	// Transient: 已知的瞬时发送失败；固定间隔重试。
	Transient
)

func (k FailureKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "unclassified"
}

// TransientError 包装底层协议错误，标记为可重试。
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrTransientSend.Error()
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrTransientSend.Error(), e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrTransientSend) 成立。
func (e *TransientError) Is(target error) bool { return target == ErrTransientSend }

// Kind 返回错误的失败分类；nil 视为 Unclassified（调用方不应传 nil）。
func Kind(err error) FailureKind {
	if err != nil && errors.Is(err, ErrTransientSend) {
		return Transient
	}
	return Unclassified
}

// IsTransient 是 Kind(err) == Transient 的简写。
func IsTransient(err error) bool { return Kind(err) == Transient }
