package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"

	"github.com/John-Robertt/petwatch/internal/domain"
)

// SMTPConfig 是邮件投递所需的设置。
type SMTPConfig struct {
	Server     string
	Port       int
	Sender     string
	Password   string
	Recipients []string
}

// Complete 判断设置是否足以发信；不完整时调用方应退回 ConsoleNotifier。
func (c SMTPConfig) Complete() bool {
	return strings.TrimSpace(c.Server) != "" && c.Port > 0 &&
		strings.TrimSpace(c.Sender) != "" && c.Password != "" && len(c.Recipients) > 0
}

func (c SMTPConfig) addr() string { return c.Server + ":" + strconv.Itoa(c.Port) }

// SendFunc 投递一封已组装好的邮件（测试可替换）。
type SendFunc func(addr string, auth smtp.Auth, tlsConfig *tls.Config, e *email.Email) error

// EmailNotifier 给每个收件人单独发一封（一个收件人失败不影响其他人）。
type EmailNotifier struct {
	Config SMTPConfig
	Log    *zap.Logger
	Send   SendFunc
}

func NewEmailNotifier(cfg SMTPConfig, log *zap.Logger) *EmailNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailNotifier{Config: cfg, Log: log, Send: defaultSend}
}

// 465 为隐式 TLS；其他端口由 smtp.SendMail 自动协商 STARTTLS。
func defaultSend(addr string, auth smtp.Auth, tlsConfig *tls.Config, e *email.Email) error {
	if tlsConfig != nil {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}

func (n *EmailNotifier) Notify(ctx context.Context, records []domain.Record) Result {
	var res Result
	if len(records) == 0 {
		return res
	}

	text := TextBody(records)
	html, err := HTMLBody(records)
	if err != nil {
		res.Failed = len(n.Config.Recipients)
		res.Errors = append(res.Errors, fmt.Errorf("生成邮件内容失败：%w", err))
		return res
	}

	for _, to := range n.Config.Recipients {
		if err := ctx.Err(); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("%s：%w", to, err))
			continue
		}

		e := email.NewEmail()
		e.From = n.Config.Sender
		e.To = []string{to}
		e.Subject = Subject(len(records))
		e.Text = text
		e.HTML = html

		if err := n.send(e); err != nil {
			n.Log.Warn("邮件发送失败", zap.String("recipient", to), zap.Error(err))
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("%s：%w", to, err))
			continue
		}
		n.Log.Info("邮件已发送", zap.String("recipient", to), zap.Int("new", len(records)))
		res.Sent++
	}
	return res
}

func (n *EmailNotifier) send(e *email.Email) error {
	c := n.Config
	var tlsConfig *tls.Config
	if c.Port == 465 {
		tlsConfig = &tls.Config{ServerName: c.Server}
	}
	send := n.Send
	if send == nil {
		send = defaultSend
	}

	err := send(c.addr(), smtp.PlainAuth("", c.Sender, c.Password, c.Server), tlsConfig, e)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = send(c.addr(), nil, tlsConfig, e)
	}
	return err
}

// Subject 返回通知邮件的主旨。
func Subject(n int) string {
	return fmt.Sprintf("📚 誠品寵物書籍新書通知 - %d 本新書上架！", n)
}

// TextBody 生成纯文本正文。
func TextBody(records []domain.Record) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "誠品寵物書籍有 %d 本新書上架！\n\n", len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "書名：%s\n", r.Title)
		fmt.Fprintf(&b, "作者：%s\n", r.Author)
		fmt.Fprintf(&b, "售價：%s\n", r.PriceText)
		if cat := r.CombinedCategoryString(); cat != "" {
			fmt.Fprintf(&b, "分類：%s\n", cat)
		}
		fmt.Fprintf(&b, "連結：%s\n\n", r.LinkURL)
	}
	return b.Bytes()
}

var htmlTmpl = template.Must(template.New("mail").Parse(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; background: #f5f5f5; padding: 20px; }
.container { max-width: 600px; margin: 0 auto; background: white; border-radius: 10px; padding: 20px; }
h1 { color: #667eea; }
.book-card { border: 1px solid #ddd; border-radius: 8px; padding: 15px; margin: 15px 0; display: flex; gap: 15px; }
.book-card img { width: 80px; height: 120px; object-fit: cover; border-radius: 4px; }
.book-info h3 { margin: 0 0 8px 0; color: #333; }
.book-info p { margin: 4px 0; color: #666; font-size: 14px; }
.price { color: #e53935; font-weight: bold; font-size: 18px; }
.btn { display: inline-block; background: #667eea; color: white; padding: 8px 16px; border-radius: 5px; text-decoration: none; margin-top: 10px; }
</style>
</head>
<body>
<div class="container">
<h1>📚 誠品寵物書籍新書通知</h1>
<p>有 <strong>{{len .}}</strong> 本新書上架！</p>
{{range .}}<div class="book-card">
{{if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.Title}}">{{end}}
<div class="book-info">
<h3>{{.Title}}</h3>
<p>作者：{{.Author}}</p>
<p class="price">{{.PriceText}}</p>
{{with .CombinedCategoryString}}<p>分類：{{.}}</p>{{end}}
{{if .LinkURL}}<a href="{{.LinkURL}}" class="btn">前往購買</a>{{end}}
</div>
</div>
{{end}}<p style="color: #999; font-size: 12px; margin-top: 30px;">此郵件由誠品寵物書籍新書通知系統自動發送</p>
</div>
</body>
</html>
`))

// HTMLBody 生成 HTML 正文（字段均经过转义）。
func HTMLBody(records []domain.Record) ([]byte, error) {
	if records == nil {
		return nil, errors.New("records 为空")
	}
	var b bytes.Buffer
	if err := htmlTmpl.Execute(&b, records); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
