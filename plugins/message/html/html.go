// Package html 把成绩记录渲染成 HTML 通知邮件。
package html

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"

	"beamerscore/pkg/contract"
)

// 可用占位符。
const (
	KeyName    = "name"
	KeyScore   = "score"
	KeyRanking = "ranking"
)

// Options: 渲染所需的全部设置（来自 [Mail] 与 [Debug]）。
type Options struct {
	Contents string // HTML 模板
	Sender   string // 发件人显示名
	Subject  string // 主题前缀，后接学号
	Mailbox  string // 发件邮箱用户名
	Domain   string // 发件邮箱域名

	DebugMode   bool
	DumpAddress string // 调试模式下所有邮件改投此地址

	// Sanitize: 清洗模板（去除脚本等，保留邮件常用排版属性）；默认 false，模板按原样发送。
	Sanitize *bool
	// PlainText: 附带由 HTML 派生的纯文本备选；默认 true。
	PlainText *bool
}

// Builder 实现 contract.MessageBuilder。
type Builder struct {
	opts   Options
	from   string
	pieces []piece
	plain  bool
}

// New 预编译模板；模板非法返回 ErrConfig。
func New(opts Options) (*Builder, error) {
	if strings.TrimSpace(opts.Mailbox) == "" || strings.TrimSpace(opts.Domain) == "" {
		return nil, fmt.Errorf("%w: mailbox and domain are required", contract.ErrConfig)
	}
	if opts.DebugMode && strings.TrimSpace(opts.DumpAddress) == "" {
		return nil, fmt.Errorf("%w: dumpaddress is required in debug mode", contract.ErrConfig)
	}
	tpl := opts.Contents
	if opts.Sanitize != nil && *opts.Sanitize {
		tpl = emailPolicy().Sanitize(tpl)
	}
	pieces, err := compile(tpl, map[string]bool{KeyName: true, KeyScore: true, KeyRanking: true})
	if err != nil {
		return nil, err
	}
	b := &Builder{
		opts:   opts,
		from:   opts.Mailbox + "@" + opts.Domain,
		pieces: pieces,
		plain:  opts.PlainText == nil || *opts.PlainText,
	}
	return b, nil
}

var _ contract.MessageBuilder = (*Builder)(nil)

// Build 渲染单条记录；纯计算，不做 I/O。
func (b *Builder) Build(ctx context.Context, r contract.Record) (contract.Message, error) {
	if err := ctx.Err(); err != nil {
		return contract.Message{}, err
	}
	body := render(b.pieces, map[string]string{
		KeyName:    html.EscapeString(r.Name),
		KeyScore:   html.EscapeString(FormatScore(r.Score)),
		KeyRanking: strconv.Itoa(r.Rank),
	})
	to := r.Address
	if b.opts.DebugMode {
		to = b.opts.DumpAddress
	}
	m := contract.Message{
		Subject:  b.opts.Subject + r.StudentID,
		FromName: b.opts.Sender,
		FromAddr: b.from,
		To:       to,
		HTML:     body,
	}
	if b.plain {
		text, err := htmltomarkdown.ConvertString(body)
		if err != nil {
			return contract.Message{}, fmt.Errorf("html: text alternative for no.%d: %w", r.No, err)
		}
		m.Text = text
	}
	return m, nil
}

// emailPolicy: UGC 策略之上放开 HTML 邮件常见的排版属性与 <font>。
func emailPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowStyling()
	p.AllowElements("font")
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowAttrs("bgcolor", "align", "valign", "width", "height").Globally()
	return p
}

// FormatScore 以最短形式输出分数（95 而非 95.000000）。
func FormatScore(s float64) string { return strconv.FormatFloat(s, 'f', -1, 64) }
