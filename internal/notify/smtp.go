package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/feedbackhq/feedbackhq/internal/logutil"
)

// SMTPConfig holds SMTP delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier delivers mail over SMTP with STARTTLS.
type SMTPNotifier struct {
	cfg SMTPConfig
	log *slog.Logger
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(cfg SMTPConfig, log *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, log: logutil.NoopIfNil(log)}
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, email, code string) error {
	err := n.send(email, "Your verification code", fmt.Sprintf("Your verification code is: %s\n\nIt expires in 5 minutes.", code))
	if err != nil {
		n.log.Error("otp delivery failed", "email", email, "error", err)
		return err
	}
	n.log.Info("otp sent", "email", email)
	return nil
}

func (n *SMTPNotifier) SendInvite(ctx context.Context, email, workspaceName, inviterName, url string) error {
	body := fmt.Sprintf("Hi,\n\n%s has invited you to join the workspace %q.\nOpen the dashboard here: %s", inviterName, workspaceName, url)
	return n.send(email, "You're invited to join a workspace", body)
}

func (n *SMTPNotifier) SendFeedbackNotice(ctx context.Context, email string, feedbackID uint, feedbackName, url string) error {
	body := fmt.Sprintf("You've received new feedback: %s\n\nView it here:\n%s", feedbackName, url)
	return n.send(email, "Feedback: "+feedbackName, body)
}

func (n *SMTPNotifier) send(to, subject, body string) error {
	addr := net.JoinHostPort(n.cfg.Host, fmt.Sprintf("%d", n.cfg.Port))
	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	// smtp.SendMail negotiates STARTTLS when the server advertises it.
	return smtp.SendMail(addr, auth, n.cfg.From, []string{to}, []byte(msg.String()))
}

var _ Notifier = (*SMTPNotifier)(nil)
