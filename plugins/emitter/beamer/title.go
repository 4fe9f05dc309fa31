package beamer

import (
	"regexp"
	"strings"
)

var (
	// 定理名：\begin{thm}[Pigeonhole]，锚定在块首
	optArgRe = regexp.MustCompile(`^\\begin\{.*?\}\[(.*?)\]`)
	// 标签：\label{lem:pigeon} → pigeon；无分类前缀时取全部
	labelRe = regexp.MustCompile(`\\label\{(?:.*?:)?(.*?)\}`)
)

// placeholderTitle 保证 \frametitle{} 的花括号内非空。
const placeholderTitle = " "

// GuessTitle 由捕获块推断 frame 标题（纯函数，恒返回非空串）：
//  1. 块首 begin 标记后的方括号可选参数；
//  2. 否则块内首个 \label{...}，取冒号之后的部分；
//  3. 否则单个空格。
func GuessTitle(block string) string {
	if m := optArgRe.FindStringSubmatch(strings.TrimSpace(block)); m != nil {
		return m[1]
	}
	if m := labelRe.FindStringSubmatch(block); m != nil {
		return m[1]
	}
	return placeholderTitle
}
