package contract

// Segment: 分段器输出的最小单元。
// - Name 为空：普通行（原样透传，含行尾换行）；
// - Name 非空：被捕获环境的完整文本（含 \begin/\end 两行，逐字拼接）。
type Segment struct {
	Text string
	Name string
}

// Captured 报告该段是否为被捕获的环境块。
func (s Segment) Captured() bool { return s.Name != "" }

// Record: 成绩表中的一行（表头之后）。
// Rank 为派生值，由整列分数计算，非输入字段。
type Record struct {
	No          int // 序号，亦即续发断点
	StudentID   string
	EnglishName string
	Address     string
	Score       float64
	Name        string // 显示名（模板中的 {name}）
	Rank        int
}

// Message: 已渲染的通知载荷。
// HTML 为正文；Text 为可选的纯文本备选部分（空则不附带）。
type Message struct {
	Subject  string
	FromName string
	FromAddr string
	To       string
	HTML     string
	Text     string
}

// From 返回 `name<addr>` 形式的发件人头（与模板配置保持一致）。
func (m Message) From() string {
	if m.FromName == "" {
		return m.FromAddr
	}
	return m.FromName + "<" + m.FromAddr + ">"
}

// Credentials: 邮箱账号与口令。仅在内存中传递，禁止写入日志。
type Credentials struct {
	Username string
	Password string
}

// String 脱敏输出，避免口令经 %v 泄露到日志。
func (c Credentials) String() string { return c.Username + ":***" }
