package diag

import (
	"context"
	"errors"
	"net"
	"os"

	"beamerscore/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志字段，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeTransient Code = "transient"
	CodeNotFound  Code = "not_found"
	CodeInvalid   Code = "invalid"
	CodeConfig    Code = "config"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if contract.IsTransient(err) {
		return CodeTransient
	}
	if errors.Is(err, contract.ErrConfig) {
		return CodeConfig
	}
	if errors.Is(err, contract.ErrSourceNotFound) || errors.Is(err, os.ErrNotExist) {
		return CodeNotFound
	}
	if errors.Is(err, contract.ErrInvalidInput) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvalid
	}
	// 网络（连接/超时等）先于 I/O：*net.OpError 也可能包裹 *os.SyscallError
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// 进程退出码。
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitConfig  = 3
)

// ExitCode 将错误映射为进程退出码。
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, contract.ErrConfig):
		return ExitConfig
	default:
		return ExitRuntime
	}
}
