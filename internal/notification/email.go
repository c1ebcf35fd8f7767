// Package notification delivers password reset links.
package notification

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"net/url"
	"time"

	"github.com/shelfmart/authcore/pkg/domain"
)

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	// ResetBaseURL is the page that receives the reset token as ?token=.
	ResetBaseURL string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService sends reset links through an SMTP relay.
type EmailService struct {
	config   EmailConfig
	sendMail sendMailFunc
}

func NewEmailService(config EmailConfig) *EmailService {
	return &EmailService{config: config, sendMail: smtp.SendMail}
}

// SendPasswordReset implements auth.ResetNotifier.
func (s *EmailService) SendPasswordReset(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resetURL, err := ResetURL(s.config.ResetBaseURL, token)
	if err != nil {
		return err
	}

	// net/smtp takes no context; an expired ctx abandons the relay call.
	errc := make(chan error, 1)
	go func() {
		errc <- s.SendPasswordResetEmail(user.Email, resetURL, time.Until(expiresAt))
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("password reset delivery abandoned: %w", ctx.Err())
	}
}

func (s *EmailService) SendPasswordResetEmail(to, resetURL string, validFor time.Duration) error {
	subject := "Reset Your Password"
	link := html.EscapeString(resetURL)
	body := fmt.Sprintf(`<html><body>
		<h2>Reset Your Password</h2>
		<p>A password reset has been requested for your account.</p>
		<p><a href="%s">Click here to reset your password</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire in %s.</p>
		<p>If you did not request this password reset, please ignore this email.</p>
	</body></html>`, link, link, humanDuration(validFor))
	return s.sendEmail(to, subject, body)
}

func (s *EmailService) sendEmail(to, subject, body string) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body)

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.sendMail(addr, auth, s.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// ResetURL appends token to base as the token query parameter.
func ResetURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid reset base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func humanDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "a few moments"
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hour(s)", int(d/time.Hour))
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}

// LogNotifier records that a reset was issued without delivering it. It
// stands in when no SMTP relay is configured and never logs the token.
type LogNotifier struct {
	Logger *slog.Logger
}

// SendPasswordReset implements auth.ResetNotifier.
func (n LogNotifier) SendPasswordReset(ctx context.Context, user *domain.User, _ string, expiresAt time.Time) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "password reset issued but no mail relay is configured",
		"user_id", user.ID,
		"expires_at", expiresAt,
	)
	return nil
}
