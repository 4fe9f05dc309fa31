// Package smtp 基于 go-mail 的真实 SMTP 发送端（默认隐式 TLS）。
package smtp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"

	"beamerscore/pkg/contract"
)

// Options 对应 [Server] 分区。
type Options struct {
	Host string `ini:"host"`
	Port int    `ini:"port"`
	// StartTLS: 默认隐式 TLS（465）；true 时改用 STARTTLS 强制策略。
	StartTLS bool `ini:"starttls"`
	// Auth: plain | login；为空使用 plain。
	Auth string `ini:"auth"`
	// TimeoutSec: 建连/读写超时（秒）；<=0 使用默认 30s。
	TimeoutSec int `ini:"timeout_sec"`
}

// ErrNotLoggedIn: 未完成 Login 即调用 Send。
var ErrNotLoggedIn = errors.New("smtp: not logged in")

// Mailer：每次 Connect 新建客户端；Login 拨号并认证。
type Mailer struct {
	host    string
	opts    []mail.Option
	client  *mail.Client
	dialed  bool
	newFunc func(host string, opts ...mail.Option) (*mail.Client, error)
}

// New 校验选项；不建立网络连接。
func New(o Options) (*Mailer, error) {
	host := strings.TrimSpace(o.Host)
	if host == "" {
		host = "smtp.163.com"
	}
	port := o.Port
	if port == 0 {
		port = 465
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: smtp port %d", contract.ErrConfig, port)
	}
	auth, err := authType(o.Auth)
	if err != nil {
		return nil, err
	}
	timeout := 30 * time.Second
	if o.TimeoutSec > 0 {
		timeout = time.Duration(o.TimeoutSec) * time.Second
	}
	// TLS 策略会改写端口，必须先于 WithPort
	var opts []mail.Option
	if !o.StartTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	opts = append(opts, mail.WithPort(port), mail.WithSMTPAuth(auth), mail.WithTimeout(timeout))
	return &Mailer{host: host, opts: opts, newFunc: mail.NewClient}, nil
}

func authType(s string) (mail.SMTPAuthType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain":
		return mail.SMTPAuthPlain, nil
	case "login":
		return mail.SMTPAuthLogin, nil
	default:
		return "", fmt.Errorf("%w: smtp auth %q", contract.ErrConfig, s)
	}
}

// Connect 丢弃旧客户端并新建一个（重连到真实端点）。
func (m *Mailer) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.client != nil {
		_ = m.Close()
	}
	c, err := m.newFunc(m.host, m.opts...)
	if err != nil {
		return fmt.Errorf("smtp: new client %s: %w", m.host, err)
	}
	m.client = c
	return nil
}

// Login 拨号并认证；认证失败不属于瞬时失败。
func (m *Mailer) Login(ctx context.Context, cred contract.Credentials) error {
	if m.client == nil {
		if err := m.Connect(ctx); err != nil {
			return err
		}
	}
	m.client.SetUsername(cred.Username)
	m.client.SetPassword(cred.Password)
	if err := m.client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp: login %s as %s: %w", m.host, cred.Username, err)
	}
	m.dialed = true
	return nil
}

// Send 发送单封邮件；协议级失败（*mail.SendError）包装为 TransientError。
func (m *Mailer) Send(ctx context.Context, msg contract.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.client == nil || !m.dialed {
		return ErrNotLoggedIn
	}
	mm, err := toMsg(msg)
	if err != nil {
		return err
	}
	if err := m.client.Send(mm); err != nil {
		return classify(err)
	}
	return nil
}

// Close 断开当前连接；未连接时为空操作。
func (m *Mailer) Close() error {
	if m.client == nil || !m.dialed {
		return nil
	}
	m.dialed = false
	return m.client.Close()
}

func classify(err error) error {
	var se *mail.SendError
	if errors.As(err, &se) {
		return &contract.TransientError{Op: "smtp send", Err: err}
	}
	return err
}

// toMsg 将渲染结果转为 go-mail 消息：HTML 正文 + 可选纯文本备选。
func toMsg(m contract.Message) (*mail.Msg, error) {
	mm := mail.NewMsg()
	if err := mm.FromFormat(m.FromName, m.FromAddr); err != nil {
		return nil, fmt.Errorf("%w: from %q: %w", contract.ErrInvalidInput, m.FromAddr, err)
	}
	if err := mm.To(m.To); err != nil {
		return nil, fmt.Errorf("%w: to %q: %w", contract.ErrInvalidInput, m.To, err)
	}
	mm.Subject(m.Subject)
	mm.SetBodyString(mail.TypeTextHTML, m.HTML)
	if m.Text != "" {
		mm.AddAlternativeString(mail.TypeTextPlain, m.Text)
	}
	return mm, nil
}

var _ contract.Mailer = (*Mailer)(nil)
